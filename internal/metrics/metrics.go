package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	RecordsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradeharvest_records_fetched_total",
		Help: "Total number of raw records fetched from the remote API",
	})

	RecordsPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradeharvest_records_persisted_total",
		Help: "Total number of records written to the store",
	})

	RecordsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradeharvest_records_skipped_total",
		Help: "Total number of records dropped by validation",
	})

	BatchesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradeharvest_batches_processed_total",
		Help: "Total number of batches fetched and ingested",
	})

	BatchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradeharvest_batch_failures_total",
		Help: "Total number of batches that failed terminally",
	})

	BatchInsertDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradeharvest_batch_insert_duration_seconds",
		Help:    "Time taken to bulk-insert one batch",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(
		RecordsFetched,
		RecordsPersisted,
		RecordsSkipped,
		BatchesProcessed,
		BatchFailures,
		BatchInsertDuration,
	)
}

// Serve exposes /metrics and /health until the context is cancelled.
// It never aborts the run: a metrics server failure is logged and
// ignored.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server failed")
	}
}
