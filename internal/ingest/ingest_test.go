package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tradeharvest/internal/countrycode"
	"tradeharvest/internal/model"
	"tradeharvest/internal/normalize"
)

// fakeStore keeps persisted codes in memory, keyed by (reporter, year),
// so gap detection across repeated runs behaves like the real store.
type fakeStore struct {
	existing    map[string][]string
	inserted    [][]model.TradeRecord
	insertErr   error
	distinctErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: make(map[string][]string)}
}

func storeKey(reporterISO3 string, year int) string {
	return fmt.Sprintf("%s|%d", reporterISO3, year)
}

func (f *fakeStore) InsertTrades(ctx context.Context, records []model.TradeRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, records)
	for _, record := range records {
		key := storeKey(record.ReporterISO3, record.Year)
		f.existing[key] = append(f.existing[key], record.Code)
	}
	return nil
}

func (f *fakeStore) DistinctCodes(ctx context.Context, reporterISO3 string, year int) ([]string, error) {
	if f.distinctErr != nil {
		return nil, f.distinctErr
	}
	return f.existing[storeKey(reporterISO3, year)], nil
}

func (f *fakeStore) CountTrades(ctx context.Context) (int64, error) {
	total := int64(0)
	for _, batch := range f.inserted {
		total += int64(len(batch))
	}
	return total, nil
}

func (f *fakeStore) Close() error { return nil }

type fetchCall struct {
	ReporterRef string
	PartnerRef  string
	CodesCSV    string
	Period      string
}

// fakeFetcher answers each code in the CSV with one import row, unless
// a canned response function is installed.
type fakeFetcher struct {
	calls   []fetchCall
	respond func(call fetchCall) ([]model.RawRecord, error)
}

func (f *fakeFetcher) FetchBatch(ctx context.Context, reporterRef, partnerRef, codesCSV, period string) ([]model.RawRecord, error) {
	call := fetchCall{ReporterRef: reporterRef, PartnerRef: partnerRef, CodesCSV: codesCSV, Period: period}
	f.calls = append(f.calls, call)
	if f.respond != nil {
		return f.respond(call)
	}
	return rowsFor(call), nil
}

func rowsFor(call fetchCall) []model.RawRecord {
	rows := make([]model.RawRecord, 0)
	for _, code := range strings.Split(call.CodesCSV, ",") {
		rows = append(rows, model.RawRecord{
			"reporterCode": call.ReporterRef,
			"partnerCode":  "0",
			"refYear":      call.Period,
			"cmdCode":      code,
			"flowCode":     "M",
		})
	}
	return rows
}

type fakeConverter struct {
	table map[string]string
}

func (f *fakeConverter) Convert(ctx context.Context, code, from, to string) (string, error) {
	result, ok := f.table[code+"|"+from+"|"+to]
	if !ok {
		return "", errors.New("no mapping")
	}
	return result, nil
}

func testTranslator() *countrycode.Translator {
	return countrycode.NewTranslator(&fakeConverter{table: map[string]string{
		"IDN|ISO3|M49": "360",
		"USA|ISO3|M49": "842",
		"360|M49|ISO3": "IDN",
		"842|M49|ISO3": "USA",
	}})
}

func testIngestor(st *fakeStore) *BatchIngestor {
	return NewBatchIngestor(st, normalize.New(testTranslator(), "comtrade"))
}

func validRow(reporterRef, code string, year int) model.RawRecord {
	return model.RawRecord{
		"reporterCode": reporterRef,
		"partnerCode":  "0",
		"refYear":      strconv.Itoa(year),
		"cmdCode":      code,
		"flowCode":     "M",
	}
}
