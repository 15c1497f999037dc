package oracle

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStyksFeedTWAPPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/twap/cspr-usd" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"price":"2150000000","available":true}`))
	}))
	defer server.Close()

	feed := NewStyksFeed(server.URL, server.Client())
	price, ok, err := feed.TWAPPrice("cspr-usd")
	if err != nil {
		t.Fatalf("twap price: %v", err)
	}
	if !ok {
		t.Fatalf("expected feed data")
	}
	if price.Cmp(big.NewInt(2_150_000_000)) != 0 {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestStyksFeedUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"price":"0","available":false}`))
	}))
	defer server.Close()

	feed := NewStyksFeed(server.URL, server.Client())
	_, ok, err := feed.TWAPPrice("cspr-usd")
	if err != nil {
		t.Fatalf("twap price: %v", err)
	}
	if ok {
		t.Fatalf("expected unavailable feed")
	}
}

func TestStyksFeedNotFoundMapsToUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	feed := NewStyksFeed(server.URL, server.Client())
	_, ok, err := feed.TWAPPrice("unknown-pair")
	if err != nil {
		t.Fatalf("twap price: %v", err)
	}
	if ok {
		t.Fatalf("expected unavailable feed for 404")
	}
}

func TestStyksFeedMalformedPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price":"not-a-number","available":true}`))
	}))
	defer server.Close()

	feed := NewStyksFeed(server.URL, server.Client())
	if _, _, err := feed.TWAPPrice("cspr-usd"); err == nil {
		t.Fatalf("expected error for malformed price")
	}
}
