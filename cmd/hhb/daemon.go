package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/daemon"
)

func NewDaemonCommand() *cobra.Command {
	var allowNonRootAccess bool

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run the hhb daemon",
		GroupID: gAdvanced,
		Long: `Run the hhb daemon in the foreground.

The daemon discovers the controllable batteries, keeps their state in sync
with the kernel, and serves the control API on a unix socket. It is normally
started by a systemd unit, not by hand.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			// A stale socket from an unclean shutdown blocks the listener.
			if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
				logrus.Warnf("failed to remove stale socket %s: %v", unixSocketPath, err)
			}
			return daemon.Run(configPath, unixSocketPath, allowNonRootAccess)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", configPath, "Path to the config file")
	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false,
		"Allow non-root users to access the daemon socket")

	return cmd
}
