package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"midiseq/midi"
)

var portsTimeout time.Duration

func init() {
	portsCmd.Flags().DurationVar(&portsTimeout, "timeout", 3*time.Second, "give up if the MIDI system does not answer")
	rootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports and the configured routing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		names, err := midi.ListOutPorts(portsTimeout)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "=== MIDI Output Ports ===")
		if len(names) == 0 {
			fmt.Fprintln(out, "  (none)")
		}
		for i, n := range names {
			fmt.Fprintf(out, "  %d: %s\n", i, n)
		}

		fmt.Fprintln(out, "\n=== Configured Outputs ===")
		if len(cfg.Outputs) == 0 {
			fmt.Fprintln(out, "  (none, every port is silent)")
		}
		present := make(map[string]bool, len(names))
		for _, n := range names {
			present[n] = true
		}
		for i, o := range cfg.Outputs {
			status := "missing"
			if present[o.Name] {
				status = "ok"
			}
			fmt.Fprintf(out, "  port %d: %s (%s)\n", i, o.Name, status)
		}
		return nil
	},
}
