package main

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/Sternrassler/alphavantage-client/pkg/shape"
	"github.com/spf13/cobra"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "query FUNCTION [key=value...]",
		Short: "Fetch one upstream function and print the payload",
		Example: `  av-proxy query GLOBAL_QUOTE symbol=IBM
  av-proxy query TIME_SERIES_DAILY symbol=IBM --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseKeyValues(args[1:])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			req := client.ResourceRequest{ResourceType: strings.ToUpper(args[0]), Params: params}
			payload, err := a.fetcher.FetchAPIData(cmd.Context(), req)
			if err != nil {
				return err
			}

			payload, err = shape.LimitSeries(payload, limit)
			if err != nil {
				return err
			}

			out, err := shape.Render(payload)
			if err != nil {
				return err
			}
			if payload.Advisory != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "advisory: %s\n", payload.Advisory)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "keep only the N most recent entries of each time series")

	return cmd
}

// parseKeyValues turns ["symbol=IBM", "interval=5min"] into a param map.
func parseKeyValues(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}
