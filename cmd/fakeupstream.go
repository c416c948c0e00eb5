package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/harvester/internal/fakeapi"
	"github.com/okian/harvester/pkg/logger"
)

func newFakeUpstreamCmd(_ *cli) *cobra.Command {
	var (
		addr, apiKey                  string
		pageSize, dailyLimit, failEvery int
	)
	cmd := &cobra.Command{
		Use:   "fake-upstream",
		Short: "Serve a deterministic imitation of API-Football for local runs.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := fakeapi.New(
				fakeapi.WithPageSize(pageSize),
				fakeapi.WithDailyLimit(dailyLimit),
				fakeapi.WithAPIKey(apiKey),
				fakeapi.WithFailEvery(failEvery),
				fakeapi.WithLogger(logger.Get().Named("fakeapi")))
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", ":9090", "listen address")
	flags.StringVar(&apiKey, "api-key", "", "required x-rapidapi-key; any key when empty")
	flags.IntVar(&pageSize, "page-size", 20, "fixtures per page")
	flags.IntVar(&dailyLimit, "daily-limit", 0, "requests before the upstream reports its limit; 0 is unlimited")
	flags.IntVar(&failEvery, "fail-every", 0, "answer every n-th request with 503; 0 never fails")
	return cmd
}
