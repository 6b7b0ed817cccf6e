package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/chroma/v2/quick"
	"gopkg.in/yaml.v3"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// printHighlighted writes s, colored with the chroma lexer when w is a
// terminal.
func printHighlighted(w io.Writer, s, lexer string) error {
	if isTerminal(w) {
		return quick.Highlight(w, s, lexer, "terminal256", "monokai")
	}
	_, err := io.WriteString(w, s)
	return err
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return printHighlighted(w, string(data)+"\n", "json")
}

func printYAML(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return printHighlighted(w, buf.String(), "yaml")
}

// printKeyValue renders key-value pairs with bold labels when on a terminal.
func printKeyValue(out io.Writer, fn func(w io.Writer)) error {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fn(w)
	w.Flush()

	output := buf.String()
	if isTerminal(out) {
		output = colorizeLabels(output)
	}
	_, err := io.WriteString(out, output)
	return err
}

func colorizeLabels(s string) string {
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	var out strings.Builder
	for _, line := range lines {
		if label, rest, ok := splitAtGap(line); ok {
			out.WriteString(ansiBold)
			out.WriteString(label)
			out.WriteString(ansiReset)
			out.WriteString(rest)
		} else {
			out.WriteString(line)
		}
		out.WriteByte('\n')
	}
	return out.String()
}

// splitAtGap splits a line at its first run of two or more spaces.
func splitAtGap(line string) (label, rest string, ok bool) {
	if i := strings.Index(line, "  "); i >= 0 {
		return line[:i], line[i:], true
	}
	return "", "", false
}

func sectionHeader(w io.Writer, s string) {
	if isTerminal(w) {
		s = ansiBold + s + ansiReset
	}
	fmt.Fprintln(w, s)
}
