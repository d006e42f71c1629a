// Package main is the entry point for the lipsync CLI.
// It estimates viseme timelines for speech, renders mouth weights offline
// and serves them live to renderer clients.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/avneetpandey82/Lip-Sync/internal/config"
	"github.com/avneetpandey82/Lip-Sync/internal/logging"
)

var version = "0.1.0"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgPath string
	verbose bool
	logDir  string

	store *config.Store
	cfg   *config.Config
	log   *logging.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "lipsync",
		Short: "Speech-to-viseme synchronization for talking avatars",
		Long: `lipsync turns text and synthesized speech into timed mouth shapes:
  • Dictionary and rule based phoneme estimation with stress-aware timing
  • Amplitude envelope extraction from 16-bit PCM
  • Optional refinement through an external phoneme extraction tool
  • Per-frame blend shape weights streamed to renderers over WebSocket

Estimate a timeline:   lipsync timeline --duration 1.2 "Hello there"
Render frames:         lipsync render --audio speech.wav "Hello there"
Serve a renderer feed: lipsync serve --audio speech.wav "Hello there"`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.log != nil {
				return a.log.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file path (default ~/.lipsync/lipsync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&a.logDir, "log-dir", "", "also write logs to this directory")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lipsync v%s\n", version)
		},
	})

	rootCmd.AddCommand(a.phonemesCmd())
	rootCmd.AddCommand(a.timelineCmd())
	rootCmd.AddCommand(a.envelopeCmd())
	rootCmd.AddCommand(a.renderCmd())
	rootCmd.AddCommand(a.serveCmd())
	rootCmd.AddCommand(a.configCmd())

	return rootCmd
}

// init loads configuration and sets up logging before any subcommand runs.
func (a *app) init(cmd *cobra.Command, args []string) error {
	store, err := config.New(a.cfgPath)
	if err != nil {
		return err
	}
	a.store = store
	a.cfg = store.Config()

	logCfg := a.cfg.Logging
	if a.logDir != "" {
		logCfg.Dir = a.logDir
	}
	if a.verbose {
		logCfg.Level = logging.LevelDebug
	}
	logCfg.Output = cmd.ErrOrStderr()

	a.log, err = logging.New(&logCfg)
	if err != nil {
		return err
	}
	if a.verbose {
		a.log.Debug("cli", "Configuration loaded", map[string]any{"file": store.File()})
	}
	return nil
}

func (a *app) component(name string) zerolog.Logger {
	if a.log == nil {
		return zerolog.Nop()
	}
	return a.log.Component(name)
}
