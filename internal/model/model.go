package model

type Flow string

const (
	FlowExport Flow = "export"
	FlowImport Flow = "import"
)

// RawRecord is one undecoded row from the remote data API.
type RawRecord map[string]any

// WorldISO3 is the sentinel partner code for world aggregates.
const WorldISO3 = "WLD"

// TradeRecord is one observed trade flow for a
// (reporter, partner, period, commodity code) tuple. Records are
// inserted once by the ingestor and never mutated afterwards.
type TradeRecord struct {
	ReporterISO3     string
	ReporterProvince string
	ReporterCity     string
	PartnerISO3      string
	PartnerProvince  string
	PartnerCity      string
	Month            string // zero-padded, empty when the period is annual
	Year             int
	Code             string // hierarchical commodity code, e.g. HS
	CodeLen          int    // granularity varies below the 4-digit level
	Scheme           string // classification scheme tag, e.g. "H6"
	Flow             Flow
	Quantity         float64
	QuantityUnit     string
	Value            float64
	NetWeight        float64
	Source           string
}
