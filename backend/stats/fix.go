package stats

import (
	"github.com/spanlens/spanlens/backend/chain"
	"github.com/spanlens/spanlens/backend/repair"
	"github.com/spanlens/spanlens/internal/models"
	"github.com/spanlens/spanlens/internal/report"
)

// FixCallChains repairs the unrooted call chains of this record against the
// catalogue and returns the number of repairs applied. Keys that collapse
// onto an existing rooted key after repair are merged: counts are summed and
// the observation vectors concatenated, so the total count over all keys is
// preserved.
func (sr *StatsRec) FixCallChains(cache *repair.Cache) int {
	candidates := sr.catalogueCandidates(cache)
	if len(candidates) == 0 {
		return 0
	}

	numFixes := 0
	for _, stat := range sr.Stats {
		for keyStr, entry := range stat.CallChain {
			if entry.Value.Rooted {
				continue
			}
			key := entry.Key
			remapped, numMatches := repair.Remap(&key, candidates)
			if !remapped {
				if numMatches != 1 {
					report.Addf(report.Details, "NO FIX: %d matches found for non-rooted %q", numMatches, keyStr)
				}
				continue
			}
			numFixes++

			// re-derive the caching label for the extended chain
			key.CachingService = chain.CachingServiceLabel(sr.CachingServices, key.CallChain)

			moved := entry.Value
			moved.Rooted = true
			moved.Depth = len(key.CallChain)
			delete(stat.CallChain, keyStr)

			newKeyStr := key.String()
			if existing, ok := stat.CallChain[newKeyStr]; ok {
				existing.Value.Merge(moved)
				existing.Value.Rooted = true
			} else {
				stat.CallChain[newKeyStr] = &CChainEntry{Key: key, Value: moved}
			}
		}
	}
	sr.NumFixes += numFixes
	return numFixes
}

// catalogueCandidates collects the catalogue chains of every endpoint this
// record covers.
func (sr *StatsRec) catalogueCandidates(cache *repair.Cache) []chain.Key {
	endpoints := make(map[string]bool)
	for _, rootCall := range sr.RootCalls {
		endpoints[models.EndpointKey(rootCall)] = true
	}
	var candidates []chain.Key
	for endpoint := range endpoints {
		candidates = append(candidates, cache.Entry(endpoint)...)
	}
	return candidates
}
