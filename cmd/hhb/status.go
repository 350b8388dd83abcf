package main

import (
	"fmt"

	"github.com/distatus/battery"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/client"
)

var apiClient = client.NewClient(unixSocketPath)

type statusData struct {
	thresholds     client.ThresholdPair
	forceDischarge bool
	level          int
	health         int
	healthKnown    bool
	caps           client.Capabilities
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	caps, err := apiClient.GetCapabilities()
	if err != nil {
		return nil, fmt.Errorf("failed to get capabilities: %w", err)
	}

	thresholds, err := apiClient.GetThresholds()
	if err != nil {
		return nil, fmt.Errorf("failed to get thresholds: %w", err)
	}

	forceDischarge, err := apiClient.GetForceDischarge()
	if err != nil {
		return nil, fmt.Errorf("failed to get force-discharge state: %w", err)
	}

	level, err := apiClient.GetBatteryLevel()
	if err != nil {
		return nil, fmt.Errorf("failed to get battery level: %w", err)
	}

	health, healthKnown, err := apiClient.GetHealth()
	if err != nil {
		return nil, fmt.Errorf("failed to get battery health: %w", err)
	}

	return &statusData{
		thresholds:     thresholds,
		forceDischarge: forceDischarge,
		level:          level,
		health:         health,
		healthKnown:    healthKnown,
		caps:           caps,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of hhb",
		Long:    `Get charge thresholds, battery info, and device capabilities.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			cmd.Println(bold("Device:"))
			cmd.Printf("  Name: %s (%s)\n", data.caps.Name, data.caps.Kind)
			if data.caps.NeedsHelper {
				cmd.Println("  " + color.RedString("The privileged helper is missing; control is read-only."))
			}

			cmd.Println(bold("Charging thresholds:"))
			if data.caps.HasStartThreshold {
				cmd.Printf("  Charging stops at %d%% and resumes below %d%%.\n",
					data.thresholds.End, data.thresholds.Start)
			} else {
				cmd.Printf("  Charging stops at %d%%.\n", data.thresholds.End)
			}

			if data.caps.SupportsForceDischarge {
				cmd.Println("  Force discharge: " + bool2Text(data.forceDischarge))
			}

			cmd.Println(bold("Battery:"))
			cmd.Printf("  Current charge: %d%%\n", data.level)
			if data.healthKnown {
				cmd.Printf("  Health: %d%% of design capacity\n", data.health)
			}

			// Local battery state straight from the OS, independent of the
			// daemon's control surface.
			if bats, err := battery.GetAll(); err == nil {
				for i, bat := range bats {
					cmd.Printf("  OS reports battery %d: %s, %.0f/%.0f mWh\n",
						i, bat.State.String(), bat.Current, bat.Full)
				}
			}

			return nil
		},
	}
}

func bold(s string) string {
	return color.New(color.Bold).Sprint(s)
}

func bool2Text(b bool) string {
	if b {
		return color.GreenString("enabled")
	}
	return color.New(color.Faint).Sprint("disabled")
}
