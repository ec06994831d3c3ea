package normalize

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"tradeharvest/internal/countrycode"
	"tradeharvest/internal/model"
)

// requiredFields identify one observation; a record missing any of
// them cannot be keyed and is rejected.
var requiredFields = []string{"reporterCode", "partnerCode", "refYear", "cmdCode", "flowCode"}

// unitSymbols maps Comtrade quantity-unit identifiers to short
// symbols. Unrecognized identifiers normalize to an empty unit.
var unitSymbols = map[string]string{
	"5":  "u",
	"7":  "l",
	"8":  "kg",
	"9":  "1000u",
	"11": "2u",
	"12": "m",
	"13": "m2",
	"14": "m3",
}

// ValidationError reports which required fields a raw record lacked.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "normalize: missing required fields: " + strings.Join(e.Missing, ", ")
}

// Normalizer converts heterogeneous, partially-null API rows into the
// strict internal schema. It never panics on a well-formed JSON
// object: the only failure mode is a *ValidationError for missing
// required fields; numeric noise degrades to zero instead.
type Normalizer struct {
	codes  *countrycode.Translator
	source string
}

func New(codes *countrycode.Translator, source string) *Normalizer {
	return &Normalizer{codes: codes, source: source}
}

func (n *Normalizer) Normalize(ctx context.Context, raw model.RawRecord) (model.TradeRecord, error) {
	missing := make([]string, 0)
	for _, field := range requiredFields {
		if _, ok := getString(raw, field); !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return model.TradeRecord{}, &ValidationError{Missing: missing}
	}

	reporterCode, _ := getString(raw, "reporterCode")
	partnerCode, _ := getString(raw, "partnerCode")
	yearRaw, _ := getString(raw, "refYear")
	code, _ := getString(raw, "cmdCode")
	flowCode, _ := getString(raw, "flowCode")

	year, err := strconv.Atoi(strings.TrimSpace(yearRaw))
	if err != nil {
		return model.TradeRecord{}, &ValidationError{Missing: []string{"refYear"}}
	}

	record := model.TradeRecord{
		ReporterISO3: n.codes.ToISO3(ctx, reporterCode),
		PartnerISO3:  n.codes.ToISO3(ctx, partnerCode),
		Year:         year,
		Code:         code,
		CodeLen:      len(code),
		Flow:         flowFromCode(flowCode),
		Quantity:     sanitizeFloat(raw, "qty"),
		Value:        sanitizeFloat(raw, "primaryValue"),
		NetWeight:    sanitizeFloat(raw, "netWgt"),
		Source:       n.source,
	}

	if month, ok := getString(raw, "refMonth"); ok {
		record.Month = padMonth(month)
	}
	if scheme, ok := getString(raw, "classificationCode"); ok {
		record.Scheme = scheme
	}
	if unit, ok := getString(raw, "qtyUnitCode"); ok {
		record.QuantityUnit = unitSymbols[unit]
	}

	record.ReporterProvince, _ = getString(raw, "reporterProvince")
	record.ReporterCity, _ = getString(raw, "reporterCity")
	record.PartnerProvince, _ = getString(raw, "partnerProvince")
	record.PartnerCity, _ = getString(raw, "partnerCity")

	return record, nil
}

func flowFromCode(code string) model.Flow {
	if strings.EqualFold(strings.TrimSpace(code), "M") {
		return model.FlowImport
	}
	return model.FlowExport
}

func padMonth(month string) string {
	month = strings.TrimSpace(month)
	if len(month) == 1 {
		return "0" + month
	}
	return month
}

// sanitizeFloat coerces a numeric field to float64. Absent values,
// textual nulls, and unparseable strings all degrade to zero so that
// numeric noise never blocks an otherwise-valid record.
func sanitizeFloat(row model.RawRecord, key string) float64 {
	value, ok := getValue(row, key)
	if !ok {
		return 0
	}
	switch typed := value.(type) {
	case nil:
		return 0
	case float64:
		return typed
	case float32:
		return float64(typed)
	case int:
		return float64(typed)
	case int64:
		return float64(typed)
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0
		}
		switch strings.ToLower(trimmed) {
		case "null", "n/a", "nan":
			return 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			log.Debug().Str("field", key).Str("value", trimmed).Msg("numeric coercion degraded to zero")
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func getString(row model.RawRecord, keys ...string) (string, bool) {
	value, ok := getValue(row, keys...)
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	default:
		return "", false
	}
}

func getValue(row model.RawRecord, keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := row[key]; ok {
			return value, true
		}
	}
	for rowKey, value := range row {
		for _, key := range keys {
			if strings.EqualFold(rowKey, key) {
				return value, true
			}
		}
	}
	return nil, false
}
