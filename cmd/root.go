package cmd

import (
	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver
)

// Persistent flags; empty values leave the config file in charge.
var (
	configPath string
	logLevel   string
	logFile    string
	project    string
)

var rootCmd = &cobra.Command{
	Use:   "midiseq",
	Short: "MIDI sequencer",
	Long: `midiseq plays tracks of clips to MIDI output ports.

With no subcommand it starts the terminal editor.`,
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.config/midiseq/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&logFile, "log-file", "", "write logs to this file")
	flags.StringVar(&project, "project", "", "project to load and autosave")
}

func Execute() {
	defer gomidi.CloseDriver()
	cobra.CheckErr(rootCmd.Execute())
}
