package main

import (
	"bufio"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newStatsCmd(_ *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print scheduler_* metrics scraped from a running schedulerctl serve instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get("http://" + addr + "/metrics")
			if err != nil {
				return fmt.Errorf("schedulerctl stats: %w", err)
			}
			defer resp.Body.Close()

			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				line := scanner.Text()
				if strings.HasPrefix(line, "#") {
					continue
				}
				if strings.HasPrefix(line, "scheduler_") {
					fmt.Println(line)
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "address of a running schedulerctl serve instance")
	return cmd
}
