package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/mandichat/pkg/logging"
	"github.com/NicolasHaas/mandichat/pkg/server"
	"github.com/NicolasHaas/mandichat/pkg/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	d := server.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts, os.Stdout)
			if err != nil {
				return err
			}

			lex, err := server.OpenLexicon(cmd.Context(), cfg, logging.Component("lexicon"))
			if err != nil {
				return err
			}

			slog.Info("starting mandi chat relay",
				"version", version.String(),
				"listen", cfg.ListenAddr,
				"metrics", cfg.MetricsAddr,
				"default_language", cfg.DefaultLanguage,
			)
			srv := server.New(cfg, server.Dependencies{Lexicon: lex, Logger: slog.Default()})
			return srv.Run(cmd.Context())
		},
	}

	// Defaults mirror server.DefaultConfig; viper reads unchanged flags last.
	f := cmd.Flags()
	f.String("listen", d.ListenAddr, "HTTP and websocket bind address")
	f.String("metrics", d.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	f.StringSlice("origins", d.AllowedOrigins, "allowed CORS and websocket origins")
	f.String("lexicon-db", d.LexiconDB, "SQLite lexicon database path (empty for in-memory)")
	f.String("lexicon-file", d.LexiconFile, "YAML lexicon imported on startup")
	f.String("default-language", d.DefaultLanguage, "language for sessions that never chose one")
	f.Duration("typing-timeout", d.TypingTimeout, "delay before an automatic stop-typing notice")
	f.Duration("translate-timeout", d.TranslateTimeout, "per-delivery translation timeout (0 to disable)")
	f.String("log-level", d.LogLevel, "log level: "+logging.LevelNames())
	f.String("log-format", d.LogFormat, "log format: text or json")
	return cmd
}
