package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/spanlens/spanlens/backend/stitch"
)

func stitchCommand() *cobra.Command {
	var (
		stitchList  string
		output      string
		statsOutput string
		anomaliesFn string
		dropCount   int
		stWindow    int
	)

	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Stitch the stats of many runs into a time series with trend regressions and anomalies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pars := &stitch.Parameters{
				DropCount: cfg.Stitch.DropCount,
				Anomaly: stitch.AnomalyParameters{
					ScaledSlopeBound:   cfg.Stitch.ScaledSlopeBound,
					ShortTermWindow:    cfg.Stitch.ShortTermWindow,
					ScaledSTSlopeBound: cfg.Stitch.ScaledSTSlopeBound,
					L1DeviationBound:   cfg.Stitch.L1DeviationBound,
				},
			}
			if cmd.Flags().Changed("drop-count") {
				pars.DropCount = dropCount
			}
			if cmd.Flags().Changed("short-term-window") {
				pars.Anomaly.ShortTermWindow = stWindow
			}

			sl, err := stitch.ReadStitchList(stitchList)
			if err != nil {
				return err
			}
			stitched, err := stitch.Build(sl, pars)
			if err != nil {
				return err
			}

			if err := stitched.WriteCSV(output); err != nil {
				return err
			}
			log.Info().Str("file", output).Msg("wrote stitched CSV")

			if statsOutput != "" {
				if err := stitched.WriteFile(statsOutput); err != nil {
					return err
				}
				log.Info().Str("file", statsOutput).Msg("wrote stitched dataset")
			}

			if anomaliesFn != "" {
				num, err := stitched.WriteAnomaliesCSV(anomaliesFn, &pars.Anomaly)
				if err != nil {
					return err
				}
				if num > 0 {
					log.Info().Int("anomalies", num).Str("file", anomaliesFn).Msg("wrote anomaly report")
				} else {
					log.Info().Msg("no anomalies detected")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&stitchList, "stitch-list", "l", "input.stitch", "stitch-list file enumerating the per-run stats files")
	cmd.Flags().StringVarP(&output, "output", "o", "stitched.csv", "stitched CSV output file")
	cmd.Flags().StringVar(&statsOutput, "stats-output", "", "also persist the stitched dataset (.json or .bincode)")
	cmd.Flags().StringVar(&anomaliesFn, "anomalies", "", "write an anomaly CSV to this path")
	cmd.Flags().IntVar(&dropCount, "drop-count", 0, "drop services whose summed call count does not exceed this")
	cmd.Flags().IntVar(&stWindow, "short-term-window", 5, "trailing window for the short-term regression")
	return cmd
}
