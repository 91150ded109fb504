package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/spanlens/spanlens/backend/graph"
	"github.com/spanlens/spanlens/backend/viewer"
)

func mermaidCommand() *cobra.Command {
	var (
		input        string
		serviceOper  string
		callChain    string
		edgeValue    string
		scopeName    string
		compact      bool
		outputFolder string
	)

	cmd := &cobra.Command{
		Use:   "mermaid",
		Short: "Render the service-call topology around a focus service as a Mermaid flowchart",
		RunE: func(_ *cobra.Command, _ []string) error {
			view, err := viewer.Load(input)
			if err != nil {
				return err
			}

			edge, err := graph.ParseEdgeMetric(edgeValue)
			if err != nil {
				return err
			}
			scope, err := graph.ParseScope(scopeName)
			if err != nil {
				return err
			}

			diagram, err := view.MermaidDiagram(serviceOper, callChain, edge, scope, compact)
			if err != nil {
				return err
			}
			if outputFolder == "" {
				fmt.Println(diagram)
				return nil
			}
			path, err := graph.WriteDiagram(outputFolder, serviceOper, diagram)
			if err != nil {
				return err
			}
			log.Info().Str("file", path).Msg("wrote diagram")
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "stats or stitched file to read")
	cmd.Flags().StringVarP(&serviceOper, "service-oper", "s", "", "focus service/operation")
	cmd.Flags().StringVar(&callChain, "call-chain", "", "canonical call-chain key to emphasize")
	cmd.Flags().StringVarP(&edgeValue, "edge-value", "e", "count", "metric shown on edges (count, avg-duration-ms, p75-ms, p90-ms, p95-ms, p99-ms)")
	cmd.Flags().StringVar(&scopeName, "scope", "full", "diagram scope (full, centered, inbound, outbound)")
	cmd.Flags().BoolVarP(&compact, "compact", "c", false, "one node per service, inter-service edges merged")
	cmd.Flags().StringVarP(&outputFolder, "output-folder", "o", "", "write the diagram to this folder instead of stdout")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("service-oper")
	return cmd
}
