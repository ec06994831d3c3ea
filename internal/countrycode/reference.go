package countrycode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultReferenceURL = "https://comtradeapi.un.org/files/v1/app/reference/partnerAreas.json"
	defaultTimeout      = 30 * time.Second
)

// Reference is a Converter backed by the Comtrade partner-areas
// reference file. The file is fetched once, on first use, and the
// resulting ISO3/M49 maps are held for the lifetime of the process.
type Reference struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	loaded bool
	byISO3 map[string]string
	byM49  map[string]string
}

func NewReference(url string) *Reference {
	if strings.TrimSpace(url) == "" {
		url = defaultReferenceURL
	}
	return &Reference{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (r *Reference) Convert(ctx context.Context, code, from, to string) (string, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return "", err
	}

	var table map[string]string
	switch {
	case from == SchemeISO3 && to == SchemeM49:
		table = r.byISO3
	case from == SchemeM49 && to == SchemeISO3:
		table = r.byM49
	default:
		return "", fmt.Errorf("countrycode: unsupported conversion %s -> %s", from, to)
	}

	result, ok := table[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return "", fmt.Errorf("countrycode: no %s mapping for %q", to, code)
	}
	return result, nil
}

func (r *Reference) ensureLoaded(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("countrycode: reference fetch failed (%s)", resp.Status)
	}

	byISO3, byM49, err := parseReference(body)
	if err != nil {
		return err
	}

	r.byISO3 = byISO3
	r.byM49 = byM49
	r.loaded = true
	return nil
}

func parseReference(body []byte) (map[string]string, map[string]string, error) {
	var payload struct {
		Results []struct {
			ID   flexID `json:"id"`
			ISO3 string `json:"PartnerCodeIsoAlpha3"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, err
	}

	byISO3 := make(map[string]string, len(payload.Results))
	byM49 := make(map[string]string, len(payload.Results))
	for _, entry := range payload.Results {
		code := strings.TrimSpace(string(entry.ID))
		iso3 := strings.ToUpper(strings.TrimSpace(entry.ISO3))
		if code == "" || iso3 == "" {
			continue
		}
		byISO3[iso3] = code
		byM49[code] = iso3
	}

	if len(byISO3) == 0 {
		return nil, nil, fmt.Errorf("countrycode: reference contains no usable entries")
	}
	return byISO3, byM49, nil
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
