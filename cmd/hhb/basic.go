package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s\n", version.Version)
		},
	}
}

func NewLimitCommand() *cobra.Command {
	var start int

	cmd := &cobra.Command{
		Use:     "limit [percentage]",
		Short:   "Set charge thresholds",
		GroupID: gBasic,
		Long: `Set the end charge threshold, and optionally the start threshold.

The end threshold is the percentage at which charging stops. On batteries
with a start threshold, charging resumes only once the charge drops below
the start threshold; it must be below the end threshold.`,
		RunE: func(_ *cobra.Command, args []string) error {
			end, err := parseIntArg(args, "limit")
			if err != nil {
				return err
			}

			if start < 0 {
				// Keep a small hysteresis window by default.
				start = end - 5
				if start < 0 {
					start = 0
				}
			}

			ret, err := apiClient.SetThresholds(start, end)
			if err != nil {
				return fmt.Errorf("failed to set thresholds: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set charge thresholds to %d-%d%%", start, end)

			return nil
		},
	}

	cmd.Flags().IntVarP(&start, "start", "s", -1, "Start threshold (defaults to 5 below the limit)")

	return cmd
}

func NewDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "disable",
		Short:   "Disable charge limiting",
		GroupID: gBasic,
		Long: `Disable charge limiting.

Resets the end threshold to 100% so the battery charges fully, which is the
firmware's default behavior.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.SetThresholds(95, 100)
			if err != nil {
				return fmt.Errorf("failed to disable charge limiting: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully disabled charge limiting. To re-enable, set a limit using \"hhb limit\".")

			return nil
		},
	}
}

func NewForceDischargeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "force-discharge",
		Short:   "Force the battery to discharge on AC power",
		GroupID: gBasic,
		Long: `Force the battery to discharge even while plugged in.

Useful for calibration or for lowering the charge without unplugging. The
write is verified against the hardware; if the firmware never switches
modes, the previous state is restored and reported.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "on",
			Short: "Enable force-discharge",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.SetForceDischarge(true)
				if err != nil {
					return fmt.Errorf("failed to enable force-discharge: %v", err)
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "off",
			Short: "Disable force-discharge",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.SetForceDischarge(false)
				if err != nil {
					return fmt.Errorf("failed to disable force-discharge: %v", err)
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}
				return nil
			},
		},
	)

	return cmd
}

func NewHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "health",
		Short:   "Show battery health",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			health, ok, err := apiClient.GetHealth()
			if err != nil {
				return fmt.Errorf("failed to get battery health: %v", err)
			}
			if !ok {
				cmd.Println("Battery health: unknown (no usable health counters)")
				return nil
			}
			cmd.Printf("Battery health: %d%% of design capacity\n", health)
			return nil
		},
	}
}

func parseIntArg(args []string, valueName string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}
