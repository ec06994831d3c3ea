package countrycode

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Coding schemes understood by a Converter.
const (
	SchemeISO3 = "ISO3"
	SchemeM49  = "M49"
)

// Sentinel codes that never reach the external converter.
const (
	worldISO3    = "WLD"
	worldM49     = "0"
	allPartners  = "ALL"
	maxISO3Chars = 3
)

// Converter translates a single country code between coding schemes.
// Implementations are free to hit the network; the Translator makes
// sure each distinct code is looked up at most once per run.
type Converter interface {
	Convert(ctx context.Context, code, from, to string) (string, error)
}

// Translator caches bidirectional country-code conversions for the
// lifetime of one run. Once a key resolves, including to a failure,
// the converter is never asked about it again.
type Translator struct {
	conv Converter

	mu    sync.Mutex
	toRef map[string]refResult
	toISO map[string]string
}

type refResult struct {
	code string
	ok   bool
}

func NewTranslator(conv Converter) *Translator {
	return &Translator{
		conv:  conv,
		toRef: make(map[string]refResult),
		toISO: make(map[string]string),
	}
}

// ToReference converts an ISO3 code to its numeric reference form.
// "WLD" maps to "0". "ALL" means "no partner filter" rather than a
// real country, so it passes through untranslated and uncached.
// A failed lookup is cached and reported as ok=false.
func (t *Translator) ToReference(ctx context.Context, iso3 string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(iso3))
	if key == allPartners {
		return allPartners, true
	}

	t.mu.Lock()
	if cached, hit := t.toRef[key]; hit {
		t.mu.Unlock()
		return cached.code, cached.ok
	}
	t.mu.Unlock()

	result := refResult{}
	if key == worldISO3 {
		result = refResult{code: worldM49, ok: true}
	} else if code, err := t.conv.Convert(ctx, key, SchemeISO3, SchemeM49); err == nil {
		result = refResult{code: code, ok: true}
	} else {
		log.Debug().Str("iso3", key).Err(err).Msg("country code translation failed")
	}

	t.mu.Lock()
	t.toRef[key] = result
	t.mu.Unlock()
	return result.code, result.ok
}

// ToISO3 converts a numeric reference code to ISO3. It never fails:
// on converter failure, or when the converter returns something longer
// than three characters (a known failure mode for ambiguous codes),
// the original input is echoed back. Partner identifiers increasingly
// arrive pre-resolved, so echoing is safe.
func (t *Translator) ToISO3(ctx context.Context, ref string) string {
	key := strings.TrimSpace(ref)

	t.mu.Lock()
	if cached, hit := t.toISO[key]; hit {
		t.mu.Unlock()
		return cached
	}
	t.mu.Unlock()

	result := key
	if key == worldM49 {
		result = worldISO3
	} else if code, err := t.conv.Convert(ctx, key, SchemeM49, SchemeISO3); err == nil && len(code) <= maxISO3Chars {
		result = code
	} else if err != nil {
		log.Debug().Str("ref", key).Err(err).Msg("country code translation failed")
	}

	t.mu.Lock()
	t.toISO[key] = result
	t.mu.Unlock()
	return result
}
