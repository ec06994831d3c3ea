package comtrade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"
)

// FetchCodeCatalog returns the full universe of 4-digit commodity
// codes to attempt, sorted ascending. It is fetched once per run from
// the reference endpoint; on any failure the catalog degrades to every
// 4-digit numeric string so the run attempts everything rather than
// aborting.
func (c *Client) FetchCodeCatalog(ctx context.Context) []string {
	codes, err := c.fetchCatalog(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("code catalog fetch failed, synthesizing full range")
		return fallbackCatalog()
	}
	log.Info().Int("codes", len(codes)).Msg("code catalog loaded")
	return codes
}

func (c *Client) fetchCatalog(ctx context.Context) ([]string, error) {
	body, status, err := c.get(ctx, c.config.CatalogURL, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("comtrade: catalog fetch failed (status %d)", status)
	}

	var payload struct {
		Results []struct {
			ID flexID `json:"id"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(payload.Results))
	for _, entry := range payload.Results {
		id := string(entry.ID)
		if len(id) == 4 && isDigits(id) {
			codes = append(codes, id)
		}
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("comtrade: catalog contains no 4-digit codes")
	}

	sort.Strings(codes)
	return codes, nil
}

func fallbackCatalog() []string {
	codes := make([]string, 0, 10000)
	for i := 0; i <= 9999; i++ {
		codes = append(codes, fmt.Sprintf("%04d", i))
	}
	return codes
}

// flexID tolerates reference ids arriving as either JSON strings or
// bare numbers; the files are not consistent about it.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*f = flexID(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err != nil {
		return err
	}
	*f = flexID(asNumber.String())
	return nil
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
