package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tradeharvest/internal/comtrade"
	"tradeharvest/internal/countrycode"
	"tradeharvest/internal/ingest"
	"tradeharvest/internal/metrics"
	"tradeharvest/internal/normalize"
	"tradeharvest/internal/store"
	"tradeharvest/internal/store/postgres"
	"tradeharvest/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	reporters := fs.String("reporters", getenv("REPORTER_CODES", "IDN"), "comma-separated reporter ISO3 list")
	reportersFile := fs.String("reporters-file", "", "path to a reporter list file (overrides -reporters)")
	partner := fs.String("partner", getenv("PARTNER_CODE", "ALL"), "partner ISO3 code (ALL = no partner filter)")
	startYear := fs.Int("start-year", getenvInt("START_YEAR", 2023), "first year to ingest")
	endYear := fs.Int("end-year", getenvInt("END_YEAR", 2025), "last year to ingest")
	batchSize := fs.Int("batch-size", getenvInt("BATCH_SIZE", 10), "commodity codes per request")
	pause := fs.Duration("pause", 1500*time.Millisecond, "inter-batch pause")
	dbPath := fs.String("db", getenv("DB_PATH", "trade_data.db"), "sqlite database path (empty disables persistence)")
	pgDSN := fs.String("pg-dsn", os.Getenv("PG_DSN"), "postgres DSN (overrides -db when set)")
	metricsAddr := fs.String("metrics-addr", os.Getenv("METRICS_ADDR"), "metrics listen address (empty disables)")
	source := fs.String("source", "comtrade", "source tag stamped on persisted rows")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := runIngest(*reporters, *reportersFile, *partner, *startYear, *endYear, *batchSize, *pause, *dbPath, *pgDSN, *metricsAddr, *source); err != nil {
		if errors.Is(err, comtrade.ErrQuotaExceeded) {
			log.Error().Err(err).Msg("quota exhausted, remaining work will surface as gaps on the next run")
		} else {
			log.Error().Err(err).Msg("ingest run failed")
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ingest run [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -reporters       comma-separated reporter ISO3 list (default: IDN)")
	fmt.Fprintln(os.Stderr, "  -reporters-file  path to a reporter list file")
	fmt.Fprintln(os.Stderr, "  -partner         partner ISO3 code, ALL for no filter (default: ALL)")
	fmt.Fprintln(os.Stderr, "  -start-year      first year to ingest")
	fmt.Fprintln(os.Stderr, "  -end-year        last year to ingest")
	fmt.Fprintln(os.Stderr, "  -batch-size      commodity codes per request (default: 10)")
	fmt.Fprintln(os.Stderr, "  -pause           inter-batch pause (default: 1.5s)")
	fmt.Fprintln(os.Stderr, "  -db              sqlite database path (default: trade_data.db)")
	fmt.Fprintln(os.Stderr, "  -pg-dsn          postgres DSN, overrides -db")
	fmt.Fprintln(os.Stderr, "  -metrics-addr    metrics listen address (empty disables)")
	fmt.Fprintln(os.Stderr, "  -verbose         enable debug logging")
}

func runIngest(reportersCSV, reportersFile, partner string, startYear, endYear, batchSize int, pause time.Duration, dbPath, pgDSN, metricsAddr, source string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporters, err := resolveReporters(reportersCSV, reportersFile)
	if err != nil {
		return err
	}
	if startYear > endYear {
		return fmt.Errorf("start year %d is after end year %d", startYear, endYear)
	}

	st, err := openStore(ctx, dbPath, pgDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	if metricsAddr != "" {
		go metrics.Serve(ctx, metricsAddr)
	}

	runID := uuid.NewString()
	log.Info().
		Str("run_id", runID).
		Strs("reporters", reporters).
		Str("partner", partner).
		Int("start_year", startYear).
		Int("end_year", endYear).
		Msg("starting ingest run")

	client := comtrade.New(comtrade.ConfigFromEnv())
	translator := countrycode.NewTranslator(countrycode.NewReference(os.Getenv("COMTRADE_REFERENCE_URL")))
	normalizer := normalize.New(translator, source)
	ingestor := ingest.NewBatchIngestor(st, normalizer)

	catalog := client.FetchCodeCatalog(ctx)

	orchestrator := ingest.NewOrchestrator(client, st, translator, ingestor, ingest.Options{
		Reporters: reporters,
		Partner:   partner,
		StartYear: startYear,
		EndYear:   endYear,
		BatchSize: batchSize,
		Pause:     pause,
	})

	summary, runErr := orchestrator.Run(ctx, catalog)

	total, countErr := st.CountTrades(context.Background())
	if countErr != nil {
		log.Warn().Err(countErr).Msg("store count unavailable")
	}
	log.Info().
		Str("run_id", runID).
		Int("fetched", summary.Fetched).
		Int("saved", summary.Saved).
		Int("skipped", summary.Skipped).
		Int("batches", summary.Batches).
		Int("failed_batches", summary.FailedBatches).
		Int("years_complete", summary.YearsComplete).
		Int64("store_total", total).
		Msg("ingest run finished")

	return runErr
}

func openStore(ctx context.Context, dbPath, pgDSN string) (store.Store, error) {
	if strings.TrimSpace(pgDSN) != "" {
		return postgres.New(ctx, pgDSN)
	}
	if strings.TrimSpace(dbPath) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(dbPath)
}

func resolveReporters(reportersCSV, reportersFile string) ([]string, error) {
	if strings.TrimSpace(reportersFile) != "" {
		return loadReporterFile(reportersFile)
	}
	reporters := parseList(reportersCSV)
	if len(reporters) == 0 {
		return nil, errors.New("no reporters provided")
	}
	return reporters, nil
}

// loadReporterFile reads one ISO3 code list: comma, semicolon, or tab
// separated, one or more per line, # comments allowed.
func loadReporterFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	seen := make(map[string]struct{})
	reporters := make([]string, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		for _, token := range parseList(strings.NewReplacer(";", ",", "\t", ",").Replace(line)) {
			if token == "ISO3" {
				continue
			}
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			reporters = append(reporters, token)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(reporters) == 0 {
		return nil, errors.New("reporter file is empty")
	}
	return reporters, nil
}

func parseList(value string) []string {
	raw := strings.Split(value, ",")
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.ToUpper(strings.TrimSpace(item))
		if trimmed == "" {
			continue
		}
		items = append(items, trimmed)
	}
	return items
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
