// Command server runs the mandi chat relay and manages its lexicon.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/NicolasHaas/mandichat/pkg/logging"
	"github.com/NicolasHaas/mandichat/pkg/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "mandichat",
		Short:         "Multilingual chat relay for marketplace rooms",
		Long:          "mandichat relays chat messages between room members and translates each delivery into the recipient's preferred language.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnvFile(opts.envFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (default ./"+server.DefaultConfigName+".yaml if present)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newLexiconCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// loadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the config for cmd and installs the configured logger
// writing to w.
func loadConfig(cmd *cobra.Command, opts *rootOptions, w io.Writer) (server.Config, error) {
	cfg, err := server.LoadConfig(logging.Discard(), opts.configFile, cmd.Flags())
	if err != nil {
		return server.Config{}, err
	}
	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: w,
	}); err != nil {
		return server.Config{}, fmt.Errorf("invalid logging config: %w", err)
	}
	return cfg, nil
}
