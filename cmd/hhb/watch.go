package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Stream device change notifications",
		GroupID: gAdvanced,
		Long: `Stream threshold, force-discharge and partial-failure notifications from
the daemon as they happen. Useful for debugging out-of-band changes made by
firmware or other tools.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := apiClient.Stream(cmd.Context(), "/events")
			if err != nil {
				return fmt.Errorf("failed to subscribe to events: %v", err)
			}
			defer body.Close()

			var event string
			scanner := bufio.NewScanner(body)
			for scanner.Scan() {
				line := scanner.Text()
				switch {
				case strings.HasPrefix(line, "event:"):
					event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				case strings.HasPrefix(line, "data:"):
					data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					cmd.Printf("%s %s\n", event, data)
				}
			}
			return scanner.Err()
		},
	}
}

func NewRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "refresh",
		Short:   "Resynchronize cached state from the hardware",
		GroupID: gAdvanced,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := apiClient.Refresh(); err != nil {
				return fmt.Errorf("failed to refresh: %v", err)
			}
			return nil
		},
	}
}
