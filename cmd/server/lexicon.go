package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/mandichat/pkg/lexicon"
	"github.com/NicolasHaas/mandichat/pkg/logging"
	"github.com/NicolasHaas/mandichat/pkg/server"
)

func newLexiconCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Import and export translation tables",
	}
	cmd.PersistentFlags().String("lexicon-db", "", "SQLite lexicon database path")

	cmd.AddCommand(
		newLexiconImportCmd(opts),
		newLexiconExportCmd(opts),
	)
	return cmd
}

func newLexiconImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Add or replace lexicon entries from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, os.Stderr)
			if err != nil {
				return err
			}
			if cfg.LexiconDB == "" {
				return fmt.Errorf("lexicon import: --lexicon-db is required")
			}
			cfg.LexiconFile = ""

			st, err := server.OpenLexicon(cmd.Context(), cfg, logging.Component("lexicon"))
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := lexicon.LoadYAMLFile(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries into %s\n", n, cfg.LexiconDB)
			return err
		},
	}
}

func newLexiconExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the lexicon as YAML to stdout",
		Long:  "Write the lexicon as YAML to stdout. Without --lexicon-db the built-in tables are exported.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts, os.Stderr)
			if err != nil {
				return err
			}

			st, err := server.OpenLexicon(cmd.Context(), cfg, logging.Component("lexicon"))
			if err != nil {
				return err
			}
			defer st.Close()

			return lexicon.ExportYAML(cmd.Context(), st, cmd.OutOrStdout())
		},
	}
}
