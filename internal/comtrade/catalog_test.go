package comtrade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCodeCatalogFiltersFourDigitCodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[
			{"id":"TOTAL"},
			{"id":"01"},
			{"id":"0101"},
			{"id":"010121"},
			{"id":"9999"},
			{"id":"0203"}
		]}`))
	}))
	defer server.Close()

	client := New(Config{
		BaseURL:    server.URL,
		CatalogURL: server.URL,
		APIKey:     "test-key",
	})

	catalog := client.FetchCodeCatalog(context.Background())
	assert.Equal(t, []string{"0101", "0203", "9999"}, catalog)
	assert.True(t, sort.StringsAreSorted(catalog))
}

func TestFetchCodeCatalogFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(Config{
		BaseURL:       server.URL,
		CatalogURL:    server.URL,
		APIKey:        "test-key",
		RetryInterval: time.Millisecond,
	})

	catalog := client.FetchCodeCatalog(context.Background())
	require.Len(t, catalog, 10000)
	assert.Equal(t, "0000", catalog[0])
	assert.Equal(t, "9999", catalog[9999])
	assert.True(t, sort.StringsAreSorted(catalog))
}
