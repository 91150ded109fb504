package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spanlens/spanlens/internal/config"
	"github.com/spanlens/spanlens/internal/floatfmt"
)

var (
	cfg        *config.Config
	cfgFile    string
	logLevel   string
	commaFloat bool
)

func main() {
	root := &cobra.Command{
		Use:   "spanlens",
		Short: "Analyze Jaeger trace bundles, stitch runs into trends and draw topology diagrams",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap(cmd.Flags())
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&commaFloat, "comma-float", false, "emit ',' as decimal separator in CSV output")

	root.AddCommand(
		analyzeCommand(),
		stitchCommand(),
		mermaidCommand(),
		showCommand(),
		serveCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootstrap(flags *pflag.FlagSet) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	if level, err := zerolog.ParseLevel(logLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
		if err != nil {
			return err
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	if flags.Changed("comma-float") {
		cfg.Analysis.CommaFloat = commaFloat
	}
	floatfmt.SetCommaFloat(cfg.Analysis.CommaFloat)
	return nil
}
