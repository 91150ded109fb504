// Package analyze orchestrates a full analysis run: ingest raw bundles,
// reconstruct traces, fold statistics per endpoint, repair incomplete traces
// against the call-chain catalogue and write the CSV and stats outputs.
package analyze

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spanlens/spanlens/backend/ingest"
	"github.com/spanlens/spanlens/backend/reconstruct"
	"github.com/spanlens/spanlens/backend/repair"
	"github.com/spanlens/spanlens/backend/stats"
	"github.com/spanlens/spanlens/internal/models"
	"github.com/spanlens/spanlens/internal/report"
)

// Options configure an analysis run.
type Options struct {
	CachingServices []string
	// CallChainFolder holds the catalogue; a relative path is resolved below
	// the trace folder.
	CallChainFolder string
	// OutputExt is "json" or "bincode".
	OutputExt       string
	TZOffsetMinutes int
	MaxLogMsgLength int
	// WriteTraces dumps each reconstructed trace to the Traces folder.
	WriteTraces bool
}

// Run analyzes the file or folder at path and returns the output folder.
func Run(path string, opts Options) (string, error) {
	if opts.OutputExt == "" {
		opts.OutputExt = "json"
	}

	tracker := &ingest.FileTracker{}
	items, folder, err := ingest.ReadFileOrFolder(path, tracker)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", fmt.Errorf("no traces found in %q", path)
	}

	builder := &reconstruct.Builder{
		TZOffset:        time.Duration(opts.TZOffsetMinutes) * time.Minute,
		MaxLogMsgLength: opts.MaxLogMsgLength,
	}
	traces := builder.BuildTraces(items)
	if len(traces) == 0 {
		return "", fmt.Errorf("no usable traces in %q", path)
	}

	if opts.WriteTraces {
		if err := writeTraces(folder, traces); err != nil {
			return "", err
		}
	}

	statsFolder := filepath.Join(folder, "Stats")
	if err := os.MkdirAll(statsFolder, 0o755); err != nil {
		return "", err
	}

	cache, err := repair.NewCache(cchainFolder(folder, opts.CallChainFolder))
	if err != nil {
		return "", err
	}

	// cumulative statistics before any repair, for comparison
	uncorrected := cumulativeStats(traces, opts.CachingServices, tracker.NumFiles())
	total, unrooted := uncorrected.CountCallChains()
	uncorrected.NumCallChains = total
	uncorrected.InitNumUnrootedCC = unrooted
	uncorrected.NumUnrootedCCAfterFixes = unrooted
	if err := writeStats(filepath.Join(statsFolder, "cummulative_trace_stats_uncorrected.csv"), uncorrected, opts.OutputExt); err != nil {
		return "", err
	}

	numEndpoints, numIncomplete, err := processEndpoints(statsFolder, traces, cache, opts)
	if err != nil {
		return "", err
	}

	// cumulative statistics after per-endpoint catalogue updates
	cumulative := cumulativeStats(traces, opts.CachingServices, tracker.NumFiles())
	total, unrooted = cumulative.CountCallChains()
	cumulative.NumCallChains = total
	cumulative.InitNumUnrootedCC = unrooted
	numFixes := cumulative.FixCallChains(cache)
	_, cumulative.NumUnrootedCCAfterFixes = cumulative.CountCallChains()
	cumulative.NumEndpoints = numEndpoints
	if err := writeStats(filepath.Join(statsFolder, "cummulative_trace_stats.csv"), cumulative, opts.OutputExt); err != nil {
		return "", err
	}

	report.Addf(report.Summary, "Processed %d traces covering %d end-points (on average %.1f traces per end-point).",
		len(traces), numEndpoints, float64(len(traces))/float64(numEndpoints))
	report.Addf(report.Summary, "Observed %d incomplete traces, which is %.1f%% of the total; %d repairs applied.",
		numIncomplete, 100.0*float64(numIncomplete)/float64(len(traces)), numFixes)

	return folder, nil
}

// processEndpoints is the reporting unit of the analysis. For each endpoint
// the complete traces are folded first so the catalogue exists, then the
// incomplete ones are added and repaired, then the per-endpoint output is
// written.
func processEndpoints(statsFolder string, traces []*models.Trace, cache *repair.Cache, opts Options) (numEndpoints, numIncomplete int, err error) {
	byEndpoint := make(map[string][]*models.Trace)
	for _, tr := range traces {
		key := tr.EndpointKey()
		byEndpoint[key] = append(byEndpoint[key], tr)
	}

	for endpoint, group := range byEndpoint {
		var complete, incomplete []*models.Trace
		for _, tr := range group {
			if tr.Complete() {
				complete = append(complete, tr)
			} else {
				incomplete = append(incomplete, tr)
			}
		}
		numIncomplete += len(incomplete)

		numFiles := distinctSourceFiles(group)
		cum := stats.NewStatsRec(opts.CachingServices, numFiles)
		for _, tr := range complete {
			cum.ExtendStatistics(tr, false)
		}
		if len(complete) > 0 {
			if err := cache.CreateOrUpdate(endpoint, cum.CallChainKeys()); err != nil {
				return 0, 0, err
			}
		} else {
			log.Info().Str("endpoint", endpoint).Msg("no complete traces, cannot seed the call-chain catalogue")
		}

		if len(incomplete) > 0 {
			frac := 100.0 * float64(len(incomplete)) / float64(len(group))
			report.Addf(report.Analysis, "For end-point (root) %q found %d incomplete out of %d traces (%.1f%%)",
				endpoint, len(incomplete), len(group), frac)
		}
		for _, tr := range incomplete {
			cum.ExtendStatistics(tr, false)
		}

		total, unrooted := cum.CountCallChains()
		cum.NumCallChains = total
		cum.InitNumUnrootedCC = unrooted
		cum.FixCallChains(cache)
		_, cum.NumUnrootedCCAfterFixes = cum.CountCallChains()
		cum.NumEndpoints = 1
		cum.NumIncompleteTraces = len(incomplete)

		if err := writeStats(filepath.Join(statsFolder, endpoint+".csv"), cum, opts.OutputExt); err != nil {
			return 0, 0, err
		}
	}
	return len(byEndpoint), numIncomplete, nil
}

func cumulativeStats(traces []*models.Trace, cachingServices []string, numFiles int) *stats.StatsRec {
	cum := stats.NewStatsRec(cachingServices, numFiles)
	for _, tr := range traces {
		cum.ExtendStatistics(tr, false)
	}
	return cum
}

// writeStats writes the CSV and the serialised stats file next to it.
func writeStats(csvPath string, sr *stats.StatsRec, ext string) error {
	if err := os.WriteFile(csvPath, []byte(sr.ToCSV()), 0o644); err != nil {
		return err
	}
	return sr.WriteFile(stats.StatsPathFor(csvPath, ext))
}

func writeTraces(folder string, traces []*models.Trace) error {
	traceFolder := filepath.Join(folder, "Traces")
	if err := os.MkdirAll(traceFolder, 0o755); err != nil {
		return err
	}
	for _, tr := range traces {
		data, err := json.MarshalIndent(tr, "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(traceFolder, tr.TraceID+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func distinctSourceFiles(traces []*models.Trace) int {
	unique := make(map[int]bool)
	for _, tr := range traces {
		unique[tr.SourceFileIdx] = true
	}
	return len(unique)
}

// cchainFolder resolves the catalogue folder: absolute paths are used as-is,
// relative ones live below the trace folder.
func cchainFolder(folder, ccPath string) string {
	if ccPath == "" {
		ccPath = "CallChain"
	}
	if filepath.IsAbs(ccPath) {
		return ccPath
	}
	return filepath.Join(folder, ccPath)
}
