package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var passwordEnv = []string{"PFX_PASSWORD", "PKCS12_PASSWORD"}

// readPassword returns the password from --password, the environment or an
// interactive prompt, in that order. An environment variable that is set
// but empty selects the empty password.
func (o *rootOptions) readPassword(cmd *cobra.Command, prompt string) ([]byte, error) {
	if o.password != "" {
		return []byte(o.password), nil
	}
	for _, env := range passwordEnv {
		if pw, ok := os.LookupEnv(env); ok {
			return []byte(pw), nil
		}
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("no password given and stdin is not a terminal (use --password or PFX_PASSWORD)")
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return pw, nil
}
