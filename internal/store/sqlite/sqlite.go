package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"tradeharvest/internal/model"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InsertTrades(ctx context.Context, records []model.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_records (
			reporter_iso3, reporter_province, reporter_city,
			partner_iso3, partner_province, partner_city,
			month, year, hs_code, hs_len, scheme, flow,
			qty, qty_unit, value, net_weight, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range records {
		record := records[i]
		_, err = stmt.ExecContext(
			ctx,
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
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) DistinctCodes(ctx context.Context, reporterISO3 string, year int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT hs_code FROM trade_records
		WHERE reporter_iso3 = ? AND year = ?
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
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trade_records`).Scan(&count)
	return count, err
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = NORMAL;`,
		`CREATE TABLE IF NOT EXISTS trade_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reporter_iso3 TEXT NOT NULL,
			reporter_province TEXT,
			reporter_city TEXT,
			partner_iso3 TEXT NOT NULL,
			partner_province TEXT,
			partner_city TEXT,
			month TEXT,
			year INTEGER NOT NULL,
			hs_code TEXT NOT NULL,
			hs_len INTEGER NOT NULL,
			scheme TEXT,
			flow TEXT NOT NULL,
			qty REAL NOT NULL,
			qty_unit TEXT,
			value REAL NOT NULL,
			net_weight REAL NOT NULL,
			source TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_gap
			ON trade_records (reporter_iso3, year, hs_code);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
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
