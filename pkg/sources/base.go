package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"tc.com/oracle-feeder/pkg/logging"
	"tc.com/oracle-feeder/pkg/version"
)

// baseSource provides the shared plumbing for HTTP connectors: the pair
// mapping, an HTTP client and response classification. Connectors embed
// it and implement Fetch.
type baseSource struct {
	name   string
	pairs  map[string]string // unified symbol -> source-specific symbol
	client *http.Client
	logger *logging.Logger
}

func newBaseSource(name string, pairs map[string]string, client *http.Client, logger *logging.Logger) (*baseSource, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPairsConfigured, name)
	}
	for unified := range pairs {
		if err := ValidateSymbolFormat(unified); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	return &baseSource{
		name:   name,
		pairs:  pairs,
		client: client,
		logger: logger,
	}, nil
}

// Name returns the source instance name.
func (b *baseSource) Name() string {
	return b.name
}

// Symbols returns the unified symbols this source provides, sorted.
func (b *baseSource) Symbols() []string {
	symbols := make([]string, 0, len(b.pairs))
	for unified := range b.pairs {
		symbols = append(symbols, unified)
	}
	sort.Strings(symbols)
	return symbols
}

// unifiedSymbol finds the unified symbol for a source-specific symbol.
// Returns empty string if the source symbol is not tracked.
func (b *baseSource) unifiedSymbol(sourceSymbol string) string {
	for unified, source := range b.pairs {
		if source == sourceSymbol {
			return unified
		}
	}
	return ""
}

// getJSON performs a GET request and decodes the JSON body into out.
// HTTP status codes classify into the source error taxonomy: 429 maps to
// ErrRateLimited, everything else non-200 to ErrUnavailable, and a body
// that does not decode to ErrMalformed.
func (b *baseSource) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, b.name)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return nil
}
