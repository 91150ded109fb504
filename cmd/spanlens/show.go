package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spanlens/spanlens/backend/dashboard"
	"github.com/spanlens/spanlens/backend/stitch"
	"github.com/spanlens/spanlens/backend/viewer"
)

func showCommand() *cobra.Command {
	var (
		input     string
		focus     string
		scopeName string
		metric    string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the service/operations (and optionally call chains) of a stats or stitched file",
		RunE: func(_ *cobra.Command, _ []string) error {
			view, err := viewer.Load(input)
			if err != nil {
				return err
			}

			m := stitch.MetricNone
			if metric != "" {
				if m, err = stitch.ParseMetric(metric); err != nil {
					return err
				}
			}

			if focus == "" {
				fmt.Println("Service/Operation:")
				for _, item := range view.ProcessList(m) {
					fmt.Printf("%4d: %s (count %d)\n", item.Idx, item.Key, item.AvgCount)
				}
				return nil
			}

			scope, err := viewer.ParseTraceScope(scopeName)
			if err != nil {
				return err
			}
			fmt.Printf("Call chains around %s (%s):\n", focus, scope)
			for _, item := range view.CallChainList(focus, m, scope, nil) {
				fmt.Printf("%4d: [%s] %s\n", item.Idx, item.ChainType, item.Key)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "stats or stitched file to read")
	cmd.Flags().StringVarP(&focus, "focus", "f", "", "list call chains around this service/operation")
	cmd.Flags().StringVar(&scopeName, "scope", "inbound", "chain scope (inbound, end2end, all)")
	cmd.Flags().StringVarP(&metric, "metric", "m", "", "rank on this metric")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func serveCommand() *cobra.Command {
	var (
		input string
		addr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the viewer API over HTTP for a UI front-end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := viewer.Load(input)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.GetServerAddr()
			}
			return dashboard.NewServer(view).ListenAndServe(addr)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "stats or stitched file to serve")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to the configured host:port)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
