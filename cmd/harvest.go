package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/harvester/internal/domain/model"
)

func newHarvestCmd(c *cli) *cobra.Command {
	var (
		start, end  int
		playerStats bool
	)
	cmd := &cobra.Command{
		Use:   "harvest [--start <season>] [--end <season>] [--player-stats]",
		Short: "Run one harvest now and print its report.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := c.service(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop(ctx) }()

			req := svc.Defaults()
			flags := cmd.Flags()
			if flags.Changed("start") {
				req.StartSeason = start
				req.EndSeason = start
			}
			if flags.Changed("end") {
				req.EndSeason = end
			}
			if flags.Changed("player-stats") {
				req.IncludePlayerStats = playerStats
			}

			rep, runErr := svc.RunJob(ctx, model.HarvestJob{
				ID:         uuid.NewString(),
				Request:    req,
				Trigger:    model.TriggerCLI,
				EnqueuedAt: time.Now(),
			})
			if rep.RunID != "" {
				if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "first season (default default_start_season)")
	cmd.Flags().IntVar(&end, "end", 0, "last season (default --start, or default_end_season)")
	cmd.Flags().BoolVar(&playerStats, "player-stats", true, "also harvest per-player statistics (default include_player_stats)")
	return cmd
}
