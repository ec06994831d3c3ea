package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"tradeharvest/internal/metrics"
	"tradeharvest/internal/model"
	"tradeharvest/internal/normalize"
	"tradeharvest/internal/store"
)

// Result summarizes one batch ingest.
type Result struct {
	Total   int // raw records received
	Saved   int // records persisted
	Skipped int // records dropped by validation
}

// BatchIngestor turns raw API records into validated rows and performs
// one all-or-nothing bulk write per batch. Record-level validation
// failures are skipped and counted; a persistence failure rolls back
// the entire batch so the next run's gap detection sees it as absent.
type BatchIngestor struct {
	store      store.Store
	normalizer *normalize.Normalizer
}

func NewBatchIngestor(st store.Store, normalizer *normalize.Normalizer) *BatchIngestor {
	return &BatchIngestor{store: st, normalizer: normalizer}
}

func (b *BatchIngestor) Ingest(ctx context.Context, raw []model.RawRecord) (Result, error) {
	result := Result{Total: len(raw)}

	payload := make([]model.TradeRecord, 0, len(raw))
	for i, item := range raw {
		record, err := b.normalizer.Normalize(ctx, item)
		if err != nil {
			result.Skipped++
			metrics.RecordsSkipped.Inc()
			log.Debug().Err(err).Int("index", i).Msg("record rejected")
			continue
		}
		payload = append(payload, record)
	}

	if len(payload) == 0 {
		if result.Total > 0 {
			log.Warn().Int("received", result.Total).Msg("batch fetched but no records passed validation")
		}
		return result, nil
	}

	start := time.Now()
	if err := b.store.InsertTrades(ctx, payload); err != nil {
		return result, err
	}
	metrics.BatchInsertDuration.Observe(time.Since(start).Seconds())

	result.Saved = len(payload)
	metrics.RecordsPersisted.Add(float64(result.Saved))
	return result, nil
}
