package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "greenlight",
	Short: "Greenlight - stage-gated initiative interview engine",
	Long: `Greenlight conducts a structured five-stage interview for a proposed
initiative: problem framing, objectives and metrics, solution approach,
risks and constraints, resources and timeline.

Every response is quality-assessed before it counts, every stage is
validated before the interview advances, and a cross-stage consistency
check decides whether the initiative is greenlit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("Greenlight v0.1.0")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: built-in defaults plus GREENLIGHT_* env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(versionCmd)
}
