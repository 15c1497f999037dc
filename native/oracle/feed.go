package oracle

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDoer matches the subset of *http.Client used by the feed client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StyksFeed queries an external aggregation service for TWAP prices. It
// implements FeedSource.
type StyksFeed struct {
	baseURL string
	client  HTTPDoer
}

// NewStyksFeed constructs a feed client. A nil client falls back to a default
// http.Client with a 10 second timeout.
func NewStyksFeed(baseURL string, client HTTPDoer) *StyksFeed {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &StyksFeed{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), client: client}
}

type feedResponse struct {
	Price     string `json:"price"`
	Available bool   `json:"available"`
}

// TWAPPrice fetches the time-weighted average price for the given feed id.
func (f *StyksFeed) TWAPPrice(feedID string) (*big.Int, bool, error) {
	if f == nil || f.baseURL == "" {
		return nil, false, fmt.Errorf("styks feed: base url not configured")
	}
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return nil, false, fmt.Errorf("styks feed: feed id required")
	}
	endpoint := fmt.Sprintf("%s/v1/twap/%s", f.baseURL, url.PathEscape(feedID))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("styks feed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("styks feed: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("styks feed: unexpected status %d", resp.StatusCode)
	}
	var payload feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("styks feed: decode response: %w", err)
	}
	if !payload.Available {
		return nil, false, nil
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(payload.Price), 10)
	if !ok {
		return nil, false, fmt.Errorf("styks feed: malformed price %q", payload.Price)
	}
	return price, true, nil
}
