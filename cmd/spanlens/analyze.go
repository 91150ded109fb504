package main

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/spanlens/spanlens/backend/analyze"
	"github.com/spanlens/spanlens/internal/report"
)

func analyzeCommand() *cobra.Command {
	var (
		cachingServices string
		cchainFolder    string
		tzMinutes       int
		maxLogMsg       int
		outputExt       string
		writeTraces     bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <file-or-folder>",
		Short: "Analyze a Jaeger trace bundle (or a folder of bundles) into per-endpoint statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := analyze.Options{
				CachingServices: cfg.Analysis.CachingServices,
				CallChainFolder: cfg.Analysis.CallChainFolder,
				OutputExt:       cfg.Analysis.OutputExt,
				TZOffsetMinutes: cfg.Ingest.TimezoneMinutes,
				MaxLogMsgLength: cfg.Ingest.MaxLogMsgLength,
				WriteTraces:     writeTraces,
			}
			if cmd.Flags().Changed("caching-services") {
				opts.CachingServices = splitList(cachingServices)
			}
			if cmd.Flags().Changed("call-chain-folder") {
				opts.CallChainFolder = cchainFolder
			}
			if cmd.Flags().Changed("timezone-minutes") {
				opts.TZOffsetMinutes = tzMinutes
			}
			if cmd.Flags().Changed("max-log-msg") {
				opts.MaxLogMsgLength = maxLogMsg
			}
			if cmd.Flags().Changed("output-ext") {
				opts.OutputExt = outputExt
			}

			folder, err := analyze.Run(args[0], opts)
			if err != nil {
				return err
			}
			reportPath := filepath.Join(folder, "report.txt")
			if err := report.Write(reportPath); err != nil {
				return err
			}
			log.Info().Str("report", reportPath).Msg("analysis complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&cachingServices, "caching-services", "", "comma-separated list of caching services")
	cmd.Flags().StringVar(&cchainFolder, "call-chain-folder", "", "call-chain catalogue folder (relative paths live below the trace folder)")
	cmd.Flags().IntVar(&tzMinutes, "timezone-minutes", 0, "timezone offset in minutes applied to raw timestamps")
	cmd.Flags().IntVar(&maxLogMsg, "max-log-msg", 0, "maximum span log-message length before truncation")
	cmd.Flags().StringVar(&outputExt, "output-ext", "", "stats-file format: json or bincode")
	cmd.Flags().BoolVar(&writeTraces, "write-traces", false, "dump each reconstructed trace to the Traces folder")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
