package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQuotaCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect or reset today's request budget.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print today's quota usage.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := c.service(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = svc.Stop(cmd.Context()) }()

				q, err := svc.Quota(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"date":          q.Date,
					"requests_used": q.RequestsUsed,
					"daily_limit":   q.DailyLimit,
					"remaining":     q.Remaining(),
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Zero today's usage, e.g. after the upstream plan changed.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := c.service(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = svc.Stop(cmd.Context()) }()

				if err := svc.ResetQuota(cmd.Context()); err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "quota reset")
				return err
			},
		},
	)
	return cmd
}

func newCursorCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or reset the per-competition resume positions.",
	}

	var competition int
	reset := &cobra.Command{
		Use:   "reset [--competition <id>]",
		Short: "Forget resume positions so the next run starts from its start season.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.service(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop(cmd.Context()) }()

			n, err := svc.ResetCursors(cmd.Context(), competition)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d cursor(s)\n", n)
			return err
		},
	}
	reset.Flags().IntVar(&competition, "competition", 0, "competition id; all when omitted")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the stored resume positions.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := c.service(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = svc.Stop(cmd.Context()) }()

				cursors, err := svc.Cursors(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), cursors)
			},
		},
		reset,
	)
	return cmd
}
