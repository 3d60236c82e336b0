package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"midiseq/debug"
	"midiseq/remote"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run headless with the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Remote.Addr = serveAddr
		}
		if cfg.Log.File == "" {
			// No TUI owns the terminal, so log to stderr.
			debug.EnableWriter(os.Stderr)
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}
		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := remote.New(a.storage, a.seq, cfg.Remote.AllowedOrigins)
		return a.run(ctx, func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, cfg.Remote.Addr)
		})
	},
}
