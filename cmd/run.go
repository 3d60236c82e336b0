package cmd

import (
	"context"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"midiseq/theme"
	"midiseq/tui"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the sequencer with the terminal editor",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}
	th, err := theme.Load(cfg.UI.Palette)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.run(ctx, func(ctx context.Context) error {
		p := tea.NewProgram(tui.NewModel(a.storage, a.seq, th), tea.WithAltScreen(), tea.WithContext(ctx))
		_, err := p.Run()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}
