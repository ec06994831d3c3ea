package store

import (
	"context"

	"tradeharvest/internal/model"
)

// Store is the persistent sink for trade records. InsertTrades must be
// atomic for the whole slice: gap detection on the next run assumes a
// batch is either fully present or fully absent.
type Store interface {
	InsertTrades(ctx context.Context, records []model.TradeRecord) error
	DistinctCodes(ctx context.Context, reporterISO3 string, year int) ([]string, error)
	CountTrades(ctx context.Context) (int64, error)
	Close() error
}

// NopStore discards everything. Used when persistence is disabled.
type NopStore struct{}

func (s *NopStore) InsertTrades(ctx context.Context, records []model.TradeRecord) error {
	_ = ctx
	_ = records
	return nil
}

func (s *NopStore) DistinctCodes(ctx context.Context, reporterISO3 string, year int) ([]string, error) {
	_ = ctx
	_ = reporterISO3
	_ = year
	return nil, nil
}

func (s *NopStore) CountTrades(ctx context.Context) (int64, error) {
	_ = ctx
	return 0, nil
}

func (s *NopStore) Close() error {
	return nil
}
