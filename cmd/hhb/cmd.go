package main

import (
	"github.com/spf13/cobra"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/client"
)

// NewCommand builds the hhb root command.
func NewCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hhb",
		Short: "Control battery charge thresholds on Linux laptops",
		Long: `hhb limits how far your battery charges to prolong its lifespan.

It reads the kernel charge-control files under /sys/class/power_supply and
delegates all writes to an already-installed privileged helper, so the daemon
itself never needs to run threshold writes as root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			apiClient = client.NewClient(unixSocketPath)
			return setupLogger()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", logLevel, "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "Path to the daemon unix socket")

	for _, g := range commandGroups {
		rootCmd.AddGroup(&cobra.Group{ID: g, Title: g})
	}

	rootCmd.AddCommand(
		NewVersionCommand(),
		NewStatusCommand(),
		NewLimitCommand(),
		NewDisableCommand(),
		NewForceDischargeCommand(),
		NewHealthCommand(),
		NewRefreshCommand(),
		NewWatchCommand(),
		NewDaemonCommand(),
	)

	return rootCmd
}
