package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeharvest/internal/comtrade"
	"tradeharvest/internal/model"
)

func newTestOrchestrator(fetcher *fakeFetcher, st *fakeStore, opts Options) *Orchestrator {
	translator := testTranslator()
	return NewOrchestrator(fetcher, st, translator, testIngestor(st), opts)
}

func TestRunScenario(t *testing.T) {
	// Catalog {0101,0102,0103}, existing {0101}: the gap is
	// {0102,0103} and batch size 2 packs it into a single request.
	st := newFakeStore()
	st.existing[storeKey("IDN", 2023)] = []string{"0101"}
	fetcher := &fakeFetcher{}

	orchestrator := newTestOrchestrator(fetcher, st, Options{
		Reporters: []string{"IDN"},
		Partner:   "ALL",
		StartYear: 2023,
		EndYear:   2023,
		BatchSize: 2,
	})

	summary, err := orchestrator.Run(context.Background(), []string{"0101", "0102", "0103"})
	require.NoError(t, err)

	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, "360", fetcher.calls[0].ReporterRef)
	assert.Equal(t, "", fetcher.calls[0].PartnerRef)
	assert.Equal(t, "0102,0103", fetcher.calls[0].CodesCSV)
	assert.Equal(t, "2023", fetcher.calls[0].Period)

	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 2, summary.Saved)
	assert.Equal(t, 1, summary.Batches)
}

func TestRunIdempotence(t *testing.T) {
	st := newFakeStore()
	catalog := []string{"0101", "0102", "0103"}
	opts := Options{
		Reporters: []string{"IDN"},
		Partner:   "ALL",
		StartYear: 2023,
		EndYear:   2023,
		BatchSize: 2,
	}

	first := &fakeFetcher{}
	_, err := newTestOrchestrator(first, st, opts).Run(context.Background(), catalog)
	require.NoError(t, err)
	assert.Len(t, first.calls, 2)

	// Everything is persisted, so a second run issues zero API calls.
	second := &fakeFetcher{}
	summary, err := newTestOrchestrator(second, st, opts).Run(context.Background(), catalog)
	require.NoError(t, err)
	assert.Empty(t, second.calls)
	assert.Equal(t, 1, summary.YearsComplete)
}

func TestRunQuotaShortCircuit(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{
		respond: func(call fetchCall) ([]model.RawRecord, error) {
			return nil, fmt.Errorf("request failed: %w", comtrade.ErrQuotaExceeded)
		},
	}

	orchestrator := newTestOrchestrator(fetcher, st, Options{
		Reporters: []string{"IDN", "USA"},
		Partner:   "ALL",
		StartYear: 2023,
		EndYear:   2024,
		BatchSize: 2,
	})

	_, err := orchestrator.Run(context.Background(), []string{"0101", "0102"})
	require.ErrorIs(t, err, comtrade.ErrQuotaExceeded)

	// The very first 403 aborts all remaining batches, years, and
	// reporters in the run.
	assert.Len(t, fetcher.calls, 1)
	assert.Empty(t, st.inserted)
}

func TestRunInvalidKeyShortCircuit(t *testing.T) {
	fetcher := &fakeFetcher{
		respond: func(call fetchCall) ([]model.RawRecord, error) {
			return nil, fmt.Errorf("request failed: %w", comtrade.ErrInvalidKey)
		},
	}

	orchestrator := newTestOrchestrator(fetcher, newFakeStore(), Options{
		Reporters: []string{"IDN"},
		Partner:   "ALL",
		StartYear: 2023,
		EndYear:   2023,
		BatchSize: 2,
	})

	_, err := orchestrator.Run(context.Background(), []string{"0101"})
	require.ErrorIs(t, err, comtrade.ErrInvalidKey)
	assert.Len(t, fetcher.calls, 1)
}

func TestRunBatchFailureContinues(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{
		respond: func(call fetchCall) ([]model.RawRecord, error) {
			if call.CodesCSV == "0101,0102" {
				return nil, errors.New("transient meltdown")
			}
			return rowsFor(call), nil
		},
	}

	orchestrator := newTestOrchestrator(fetcher, st, Options{
		Reporters: []string{"IDN"},
		Partner:   "ALL",
		StartYear: 2023,
		EndYear:   2023,
		BatchSize: 2,
	})

	summary, err := orchestrator.Run(context.Background(), []string{"0101", "0102", "0103", "0104"})
	require.NoError(t, err)

	// One bad batch must not abort the year.
	assert.Len(t, fetcher.calls, 2)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 2, summary.Saved)
}

func TestRunPartnerTranslated(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{}

	orchestrator := newTestOrchestrator(fetcher, st, Options{
		Reporters: []string{"IDN"},
		Partner:   "USA",
		StartYear: 2023,
		EndYear:   2023,
		BatchSize: 5,
	})

	_, err := orchestrator.Run(context.Background(), []string{"0101"})
	require.NoError(t, err)
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, "842", fetcher.calls[0].PartnerRef)
}

func TestRunUntranslatedReporterPassesThrough(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{}

	orchestrator := newTestOrchestrator(fetcher, st, Options{
		Reporters: []string{"XYZ"},
		Partner:   "ALL",
		StartYear: 2023,
		EndYear:   2023,
		BatchSize: 5,
	})

	_, err := orchestrator.Run(context.Background(), []string{"0101"})
	require.NoError(t, err)
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, "XYZ", fetcher.calls[0].ReporterRef)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{}
	orchestrator := newTestOrchestrator(fetcher, newFakeStore(), Options{
		Reporters: []string{"IDN"},
		Partner:   "ALL",
		StartYear: 2023,
		EndYear:   2023,
		BatchSize: 2,
	})

	_, err := orchestrator.Run(ctx, []string{"0101"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fetcher.calls)
}
