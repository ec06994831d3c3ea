package ingest

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"tradeharvest/internal/store"
)

// GapDetector computes, per (reporter, year), the commodity codes not
// yet persisted. The remote API is the scarce resource, so work must
// never repeat across runs: this is the pipeline's idempotence
// guarantee at the granularity of (reporter, year, code).
type GapDetector struct {
	store store.Store
}

func NewGapDetector(st store.Store) *GapDetector {
	return &GapDetector{store: st}
}

// Missing returns catalog minus the codes already stored for the
// (reporter, year) pair, sorted ascending for deterministic batch
// ordering. If the store is unreachable it assumes nothing exists and
// returns the full catalog: the run degrades to fetching everything
// rather than aborting. Duplicates are cheaper than lost runs.
func (g *GapDetector) Missing(ctx context.Context, reporterISO3 string, year int, catalog []string) []string {
	existing, err := g.store.DistinctCodes(ctx, reporterISO3, year)
	if err != nil {
		log.Warn().Err(err).Str("reporter", reporterISO3).Int("year", year).
			Msg("existing-codes query failed, assuming nothing exists")
		existing = nil
	}

	seen := make(map[string]struct{}, len(existing))
	for _, code := range existing {
		seen[code] = struct{}{}
	}

	missing := make([]string, 0, len(catalog))
	for _, code := range catalog {
		if _, ok := seen[code]; !ok {
			missing = append(missing, code)
		}
	}

	sort.Strings(missing)
	return missing
}
