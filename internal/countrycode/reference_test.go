package countrycode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceConvert(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"id":"360","text":"Indonesia","PartnerCodeIsoAlpha3":"IDN"},
			{"id":"842","text":"USA","PartnerCodeIsoAlpha3":"USA"},
			{"id":"0","text":"World","PartnerCodeIsoAlpha3":""}
		]}`))
	}))
	defer server.Close()

	ref := NewReference(server.URL)
	ctx := context.Background()

	code, err := ref.Convert(ctx, "IDN", SchemeISO3, SchemeM49)
	require.NoError(t, err)
	assert.Equal(t, "360", code)

	iso, err := ref.Convert(ctx, "360", SchemeM49, SchemeISO3)
	require.NoError(t, err)
	assert.Equal(t, "IDN", iso)

	_, err = ref.Convert(ctx, "ZZZ", SchemeISO3, SchemeM49)
	assert.Error(t, err)

	_, err = ref.Convert(ctx, "IDN", SchemeISO3, "UNKNOWN")
	assert.Error(t, err)

	// The reference file is fetched once and reused.
	assert.Equal(t, 1, hits)
}

func TestReferenceFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ref := NewReference(server.URL)
	_, err := ref.Convert(context.Background(), "IDN", SchemeISO3, SchemeM49)
	assert.Error(t, err)
}
