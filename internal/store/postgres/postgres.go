package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeharvest/internal/model"
)

var columns = []string{
	"reporter_iso3", "reporter_province", "reporter_city",
	"partner_iso3", "partner_province", "partner_city",
	"month", "year", "hs_code", "hs_len", "scheme", "flow",
	"qty", "qty_unit", "value", "net_weight", "source",
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) InsertTrades(ctx context.Context, records []model.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"trade_records"},
		columns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			record := records[i]
			return []any{
				record.ReporterISO3,
				nullable(record.ReporterProvince),
				nullable(record.ReporterCity),
				record.PartnerISO3,
				nullable(record.PartnerProvince),
				nullable(record.PartnerCity),
				nullable(record.Month),
				record.Year,
				record.Code,
				record.CodeLen,
				nullable(record.Scheme),
				string(record.Flow),
				record.Quantity,
				nullable(record.QuantityUnit),
				record.Value,
				record.NetWeight,
				record.Source,
			}, nil
		}),
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) DistinctCodes(ctx context.Context, reporterISO3 string, year int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT hs_code FROM trade_records
		WHERE reporter_iso3 = $1 AND year = $2
	`, reporterISO3, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]string, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *Store) CountTrades(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trade_records`).Scan(&count)
	return count, err
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trade_records (
			id BIGSERIAL PRIMARY KEY,
			reporter_iso3 CHAR(3) NOT NULL,
			reporter_province VARCHAR(255),
			reporter_city VARCHAR(255),
			partner_iso3 CHAR(3) NOT NULL,
			partner_province VARCHAR(255),
			partner_city VARCHAR(255),
			month VARCHAR(15),
			year INTEGER NOT NULL,
			hs_code VARCHAR(9) NOT NULL,
			hs_len SMALLINT NOT NULL,
			scheme VARCHAR(15),
			flow VARCHAR(19) NOT NULL,
			qty DOUBLE PRECISION NOT NULL,
			qty_unit VARCHAR(25),
			value NUMERIC(45,2) NOT NULL,
			net_weight NUMERIC(18,2) NOT NULL,
			source VARCHAR(32)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_gap
			ON trade_records (reporter_iso3, year, hs_code);`,
	}

	for _, statement := range statements {
		if _, err := s.pool.Exec(ctx, statement); err != nil {
			return err
		}
	}

	return nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
