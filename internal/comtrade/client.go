package comtrade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"tradeharvest/internal/model"
)

const (
	defaultBaseURL        = "https://comtradeapi.un.org/public/v1/getDA/C/A/HS"
	defaultCatalogURL     = "https://comtradeapi.un.org/files/v1/app/reference/HS.json"
	defaultFlowCodes      = "M,X"
	defaultTimeoutSeconds = 30
	defaultMaxRetries     = 5
	defaultRetryInterval  = 2 * time.Second
	defaultUserAgent      = "tradeharvest/0.1"

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
)

type Config struct {
	BaseURL       string
	CatalogURL    string
	APIKey        string
	FlowCodes     string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	UserAgent     string
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:       getenv("COMTRADE_BASE_URL", defaultBaseURL),
		CatalogURL:    getenv("COMTRADE_CATALOG_URL", defaultCatalogURL),
		APIKey:        strings.TrimSpace(os.Getenv("COMTRADE_API_KEY")),
		FlowCodes:     getenv("COMTRADE_FLOW_CODES", defaultFlowCodes),
		Timeout:       time.Duration(getenvInt("COMTRADE_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second,
		MaxRetries:    getenvInt("COMTRADE_MAX_RETRIES", defaultMaxRetries),
		RetryInterval: defaultRetryInterval,
	}
}

// Client issues batched annual-data requests against the Comtrade API.
// Transient failures (429, 5xx) are retried with exponential backoff
// beneath the FetchBatch contract; terminal failures surface as a
// single *APIError wrapping the sentinel taxonomy in errors.go.
type Client struct {
	config Config
	client *http.Client
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.CatalogURL) == "" {
		cfg.CatalogURL = defaultCatalogURL
	}
	if strings.TrimSpace(cfg.FlowCodes) == "" {
		cfg.FlowCodes = defaultFlowCodes
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.APIKey == "" {
		log.Warn().Msg("no subscription key configured")
	}

	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// FetchBatch requests annual records for a CSV of commodity codes.
// partnerRef of "" or "ALL" means no partner filter and is omitted
// from the request parameters entirely.
func (c *Client) FetchBatch(ctx context.Context, reporterRef, partnerRef, codesCSV, period string) ([]model.RawRecord, error) {
	params := url.Values{}
	params.Set("reporterCode", reporterRef)
	params.Set("period", period)
	params.Set("cmdCode", codesCSV)
	params.Set("format", "json")
	params.Set("freqCode", "A")
	params.Set("includeDesc", "false")
	params.Set("flowCode", c.config.FlowCodes)
	if partnerRef != "" && !strings.EqualFold(partnerRef, "ALL") {
		params.Set("partnerCode", partnerRef)
	}

	var records []model.RawRecord
	operation := func() error {
		body, status, err := c.get(ctx, c.config.BaseURL, params)
		if err != nil {
			return err // network failure, retryable
		}
		if status != http.StatusOK {
			message := strings.TrimSpace(string(body))
			if retryableStatus(status) {
				return classifyStatus(status, message)
			}
			return backoff.Permanent(classifyStatus(status, message))
		}

		payload, err := decodePayload(body)
		if err != nil {
			return backoff.Permanent(&APIError{Message: err.Error()})
		}
		// The remote reports some failures with a 200 status and an
		// embedded error message.
		if message := payload.errorMessage(); message != "" {
			return backoff.Permanent(&APIError{Status: status, Message: message})
		}
		records = payload.Data
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.RawRecord{}
	}
	log.Debug().Int("rows", len(records)).Str("period", period).Msg("batch fetched")
	return records, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryInterval
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.MaxRetries)), ctx)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, int, error) {
	uri := endpoint
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		req.Header.Set(subscriptionKeyHeader, c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

type payload struct {
	Data  []model.RawRecord `json:"data"`
	Error any               `json:"error"`
}

func decodePayload(body []byte) (*payload, error) {
	var decoded payload
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return &decoded, nil
}

// errorMessage flattens the loosely-typed error field; the remote
// emits either a string or a structured object there.
func (p *payload) errorMessage() string {
	switch typed := p.Error.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		if string(encoded) == "{}" || string(encoded) == "null" {
			return ""
		}
		return string(encoded)
	}
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
