package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	console "github.com/phsym/console-slog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

const defaultConfigFile = "pfx.yaml"

type rootOptions struct {
	verbose    bool
	password   string
	configFile string
	allowNoMAC bool

	v *viper.Viper
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}
	opts.v.SetEnvPrefix("PFX")
	opts.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	opts.v.AutomaticEnv()
	setProfileDefaults(opts.v)

	rootCmd := &cobra.Command{
		Use:   "pfx",
		Short: "Inspect, verify and create PKCS#12 files",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			godotenv.Load()
			setupLogging(cmd.ErrOrStderr(), opts.verbose)
			return opts.loadConfig()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&opts.password, "password", "", "PKCS#12 password (env: PFX_PASSWORD, PKCS12_PASSWORD)")
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default: "+defaultConfigFile+" if present)")
	flags.BoolVar(&opts.allowNoMAC, "allow-no-mac", false, "accept files without MAC")

	rootCmd.AddCommand(newInspectCmd(opts))
	rootCmd.AddCommand(newVerifyCmd(opts))
	rootCmd.AddCommand(newCreateCmd(opts))
	rootCmd.AddCommand(newExportCmd(opts))
	rootCmd.AddCommand(newConvertCmd(opts))
	rootCmd.AddCommand(newKDFCmd(opts))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})

	return rootCmd
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if os.Getenv("PRETTY_LOGS") == "false" {
		slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
		return
	}
	slog.SetDefault(slog.New(console.NewHandler(w, &console.HandlerOptions{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))
}

// loadConfig reads the config file named by --config, or pfx.yaml in the
// working directory when it exists.
func (o *rootOptions) loadConfig() error {
	path := o.configFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return nil
		}
		path = defaultConfigFile
	}
	o.v.SetConfigFile(path)
	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	slog.Debug("Loaded config", "file", o.v.ConfigFileUsed())
	return nil
}
