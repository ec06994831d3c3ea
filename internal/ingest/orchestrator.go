package ingest

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tradeharvest/internal/comtrade"
	"tradeharvest/internal/countrycode"
	"tradeharvest/internal/metrics"
	"tradeharvest/internal/model"
	"tradeharvest/internal/store"
)

// Fetcher is the slice of the API client the orchestrator needs.
type Fetcher interface {
	FetchBatch(ctx context.Context, reporterRef, partnerRef, codesCSV, period string) ([]model.RawRecord, error)
}

type Options struct {
	Reporters []string // reporter ISO3 codes
	Partner   string   // partner ISO3, "ALL" or empty for no filter
	StartYear int
	EndYear   int
	BatchSize int
	Pause     time.Duration // inter-batch sleep, throttles below the API rate limit
}

// Summary is the final run report: fetched vs persisted.
type Summary struct {
	Fetched       int
	Saved         int
	Skipped       int
	Batches       int
	FailedBatches int
	YearsComplete int
}

// Orchestrator drives the run: for each reporter x year, detect gaps,
// batch the missing codes, fetch, ingest, checkpoint. Every committed
// batch is a checkpoint; a crash or quota exhaustion loses no prior
// work. Execution is strictly sequential: one request in flight, one
// batch at a time.
type Orchestrator struct {
	client   Fetcher
	codes    *countrycode.Translator
	gaps     *GapDetector
	ingestor *BatchIngestor
	opts     Options
}

func NewOrchestrator(client Fetcher, st store.Store, codes *countrycode.Translator, ingestor *BatchIngestor, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &Orchestrator{
		client:   client,
		codes:    codes,
		gaps:     NewGapDetector(st),
		ingestor: ingestor,
		opts:     opts,
	}
}

// Run processes all reporters and years against the given catalog.
// Quota exhaustion or an invalid key aborts the whole run immediately;
// remaining slices surface as gaps on the next run. Any other batch
// error is logged and the loop continues.
func (o *Orchestrator) Run(ctx context.Context, catalog []string) (Summary, error) {
	summary := Summary{}

	partnerRef := resolvePartner(ctx, o.codes, o.opts.Partner)

	for _, reporter := range o.opts.Reporters {
		reporter = strings.ToUpper(strings.TrimSpace(reporter))
		if reporter == "" {
			continue
		}

		reporterRef, ok := o.codes.ToReference(ctx, reporter)
		if !ok {
			// Translation failure degrades to pass-through; the remote
			// rejects unknown codes per-request, not per-run.
			log.Warn().Str("reporter", reporter).Msg("reporter code untranslated, passing through")
			reporterRef = reporter
		}

		for year := o.opts.StartYear; year <= o.opts.EndYear; year++ {
			done, err := o.runYear(ctx, &summary, reporter, reporterRef, partnerRef, year, catalog)
			if err != nil {
				return summary, err
			}
			if done {
				summary.YearsComplete++
			}
		}
	}

	return summary, nil
}

// runYear returns done=true when the year was already complete.
func (o *Orchestrator) runYear(ctx context.Context, summary *Summary, reporter, reporterRef, partnerRef string, year int, catalog []string) (bool, error) {
	missing := o.gaps.Missing(ctx, reporter, year, catalog)
	if len(missing) == 0 {
		log.Info().Str("reporter", reporter).Int("year", year).Msg("year already complete, skipping")
		return true, nil
	}

	log.Info().
		Str("reporter", reporter).
		Int("year", year).
		Int("existing", len(catalog)-len(missing)).
		Int("missing", len(missing)).
		Msg("gaps detected")

	batches := chunk(missing, o.opts.BatchSize)
	period := strconv.Itoa(year)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		raw, err := o.client.FetchBatch(ctx, reporterRef, partnerRef, strings.Join(batch, ","), period)
		if err != nil {
			if errors.Is(err, comtrade.ErrQuotaExceeded) || errors.Is(err, comtrade.ErrInvalidKey) {
				return false, err
			}
			summary.FailedBatches++
			metrics.BatchFailures.Inc()
			log.Error().Err(err).Int("batch", i+1).Int("batches", len(batches)).Msg("batch fetch failed")
			continue
		}

		summary.Fetched += len(raw)
		metrics.RecordsFetched.Add(float64(len(raw)))

		result, err := o.ingestor.Ingest(ctx, raw)
		summary.Saved += result.Saved
		summary.Skipped += result.Skipped
		summary.Batches++
		metrics.BatchesProcessed.Inc()
		if err != nil {
			summary.FailedBatches++
			metrics.BatchFailures.Inc()
			log.Error().Err(err).Int("batch", i+1).Msg("batch persistence failed, rolled back")
		} else {
			log.Info().
				Str("reporter", reporter).
				Int("year", year).
				Int("batch", i+1).
				Int("batches", len(batches)).
				Int("fetched", result.Total).
				Int("saved", result.Saved).
				Msg("batch committed")
		}

		if err := sleepWithContext(ctx, o.opts.Pause); err != nil {
			return false, err
		}
	}

	return false, nil
}

// resolvePartner maps the configured partner to its request form.
// "ALL" (or none) means no partner filter: it never participates in
// translation and is omitted from request parameters entirely.
func resolvePartner(ctx context.Context, codes *countrycode.Translator, partner string) string {
	partner = strings.ToUpper(strings.TrimSpace(partner))
	if partner == "" || partner == "ALL" {
		return ""
	}
	ref, ok := codes.ToReference(ctx, partner)
	if !ok {
		log.Warn().Str("partner", partner).Msg("partner code untranslated, passing through")
		return partner
	}
	return ref
}

func chunk(codes []string, size int) [][]string {
	batches := make([][]string, 0, (len(codes)+size-1)/size)
	for start := 0; start < len(codes); start += size {
		end := start + size
		if end > len(codes) {
			end = len(codes)
		}
		batches = append(batches, codes[start:end])
	}
	return batches
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
