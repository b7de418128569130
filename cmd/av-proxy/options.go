package main

import (
	"encoding/json"
	"net/url"

	"github.com/Sternrassler/alphavantage-client/pkg/options"
	"github.com/spf13/cobra"
)

func newOptionsCmd(opts *rootOptions) *cobra.Command {
	var date string
	filters := map[string]*string{}

	cmd := &cobra.Command{
		Use:   "options SYMBOL",
		Short: "Fetch a historical option chain and filter it",
		Example: `  av-proxy options IBM --date 2024-01-15 --type call --min-open-interest 100
  av-proxy options IBM --strike-count 2 --price 162.50 --expiration-months 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			for name, value := range filters {
				if *value != "" {
					q.Set(name, *value)
				}
			}
			criteria, err := options.CriteriaFromQuery(q)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := options.NewService(a.fetcher).Chain(cmd.Context(), args[0], date, criteria)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "trading session (YYYY-MM-DD); latest when empty")

	flags := []struct{ name, query, usage string }{
		{"type", options.QueryType, "call, put or ALL"},
		{"min-open-interest", options.QueryMinOpenInterest, "minimum open interest"},
		{"min-volume", options.QueryMinVolume, "minimum volume"},
		{"expiration-months", options.QueryExpirationMonths, "keep expirations within N months of the session"},
		{"strike-count", options.QueryStrikeCount, "keep the 2N+1 strikes nearest --price"},
		{"price", options.QueryPrice, "reference price for --strike-count"},
	}
	for _, f := range flags {
		value := new(string)
		filters[f.query] = value
		cmd.Flags().StringVar(value, f.name, "", f.usage)
	}

	return cmd
}
