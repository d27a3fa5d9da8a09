package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	scheduler "github.com/go-foundations/scheduler"
)

func newLoadCmd(configPath *string) *cobra.Command {
	var duration time.Duration
	var rate int

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run a synthetic submission load against an in-process scheduler and report queue stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop()

			cfg := scheduler.DefaultConfig()
			if *configPath != "" {
				var err error
				cfg, err = scheduler.LoadConfig(*configPath)
				if err != nil {
					return err
				}
			}

			sched := scheduler.New(cfg, prometheus.NewRegistry(), logger)
			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Shutdown(context.Background()) //nolint:errcheck

			lanes := []scheduler.Lane{
				scheduler.LaneClientFast,
				scheduler.LaneClientAQL,
				scheduler.LaneClusterAdmin,
				scheduler.LaneInternalLow,
			}

			ticker := time.NewTicker(time.Second / time.Duration(max(rate, 1)))
			defer ticker.Stop()

			var submitted int
			for {
				select {
				case <-ctx.Done():
					fmt.Printf("submitted %d tasks over %s\n", submitted, duration)
					stats := sched.QueueStatistics()
					for pr := 0; pr < len(stats); pr++ {
						fmt.Printf("  queue length priority=%s: %d\n", prioritiesByIndex[pr], stats[pr])
					}
					return nil
				case <-ticker.C:
					lane := lanes[rand.IntN(len(lanes))]
					_ = sched.Submit(ctx, lane, func(context.Context) {
						time.Sleep(time.Millisecond)
					})
					submitted++
				}
			}
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to generate load")
	cmd.Flags().IntVar(&rate, "rate", 200, "submissions per second")
	return cmd
}

var prioritiesByIndex = []string{"maintenance", "high", "medium", "low"}
