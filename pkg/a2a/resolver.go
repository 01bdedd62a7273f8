package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// AGENT CARD RESOLVER - Well-known path discovery with per-run memoization
// ============================================================================

// Resolver fetches agent cards from their well-known path. Successful
// resolutions are memoized per base URL for the resolver's lifetime; a
// resolver is scoped to a single workflow run, so nothing persists across
// runs. Failed resolutions are not cached and are retried on the next call.
type Resolver struct {
	httpClient *http.Client

	mu    sync.Mutex
	cards map[string]*AgentCard
}

// NewResolver creates a resolver with the given fetch timeout.
func NewResolver(timeout time.Duration) *Resolver {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		httpClient: &http.Client{Timeout: timeout},
		cards:      make(map[string]*AgentCard),
	}
}

// Resolve fetches and parses the agent card advertised at
// baseURL + WellKnownCardPath.
func (r *Resolver) Resolve(ctx context.Context, baseURL string) (*AgentCard, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &ResolutionError{
			Kind:    ResolutionMalformed,
			BaseURL: baseURL,
			Err:     fmt.Errorf("not a valid base URL"),
		}
	}

	r.mu.Lock()
	card, ok := r.cards[baseURL]
	r.mu.Unlock()
	if ok {
		return card, nil
	}

	cardURL := strings.TrimSuffix(baseURL, "/") + WellKnownCardPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, &ResolutionError{Kind: ResolutionMalformed, BaseURL: baseURL, Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &ResolutionError{Kind: ResolutionUnreachable, BaseURL: baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ResolutionError{
			Kind:    ResolutionMalformed,
			BaseURL: baseURL,
			Err:     fmt.Errorf("%s - %s", resp.Status, string(body)),
		}
	}

	card = &AgentCard{}
	if err := json.NewDecoder(resp.Body).Decode(card); err != nil {
		return nil, &ResolutionError{Kind: ResolutionMalformed, BaseURL: baseURL, Err: err}
	}

	if card.Identifier == "" || card.Endpoint == "" {
		return nil, &ResolutionError{
			Kind:    ResolutionMalformed,
			BaseURL: baseURL,
			Err:     fmt.Errorf("card is missing identifier or endpoint"),
		}
	}

	r.mu.Lock()
	r.cards[baseURL] = card
	r.mu.Unlock()

	return card, nil
}
