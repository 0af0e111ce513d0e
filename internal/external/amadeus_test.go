package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tidefly/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutableClock struct{ t time.Time }

func (c *mutableClock) Now() time.Time { return c.t }

type amadeusFake struct {
	tokenCalls  atomic.Int32
	searchCalls atomic.Int32
	reject      atomic.Int32 // number of searches to answer 401
	offers      string
}

func (f *amadeusFake) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/security/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "csecret", r.PostForm.Get("client_secret"))
		n := f.tokenCalls.Add(1)
		w.Write([]byte(`{"access_token":"tok` + string(rune('0'+n)) + `","expires_in":600}`))
	})
	mux.HandleFunc("/v2/shopping/flight-offers", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		if f.reject.Load() > 0 {
			f.reject.Add(-1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		assert.Equal(t, "LIS", q.Get("originLocationCode"))
		assert.Equal(t, "DPS", q.Get("destinationLocationCode"))
		assert.Equal(t, "2026-05-02", q.Get("departureDate"))
		assert.Equal(t, "2026-05-06", q.Get("returnDate"))
		assert.Equal(t, "1", q.Get("adults"))
		assert.Equal(t, "10", q.Get("max"))
		assert.Equal(t, "USD", q.Get("currencyCode"))
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer tok")
		w.Write([]byte(f.offers))
	})
	return mux
}

func newTestAmadeus(t *testing.T, serverURL string, clock types.Clock) (*AmadeusClient, *AmadeusTokenSource) {
	cfg := AmadeusConfig{BaseURL: serverURL, ClientID: "cid", ClientSecret: "csecret", Clock: clock, Logger: testLogger()}
	base := newTestClient(t, RateLimitRetryPolicy(3))
	ts := NewAmadeusTokenSource(base, cfg)
	return NewAmadeusClient(base, ts, cfg), ts
}

var testQuery = OfferQuery{Origin: "LIS", Dest: "DPS", DepartDate: "2026-05-02", ReturnDate: "2026-05-06", Currency: "USD"}

func TestAmadeusCheapestOffer(t *testing.T) {
	fake := &amadeusFake{offers: `{"data":[
		{"price":{"total":"812.40","currency":"USD"}},
		{"price":{"total":"640.10","currency":"USD"}},
		{"price":{"total":"bogus","currency":"USD"}}
	]}`}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client, _ := newTestAmadeus(t, server.URL, &mutableClock{t: time.Now()})
	offer, err := client.CheapestOffer(context.Background(), testQuery)
	require.NoError(t, err)
	require.NotNil(t, offer)
	assert.Equal(t, 640.10, offer.Price)
	assert.Equal(t, "USD", offer.Currency)
}

func TestAmadeusNoOffers(t *testing.T) {
	fake := &amadeusFake{offers: `{"data":[]}`}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client, _ := newTestAmadeus(t, server.URL, &mutableClock{t: time.Now()})
	offer, err := client.CheapestOffer(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Nil(t, offer)
}

func TestAmadeusTokenCachedAndRefreshedBeforeExpiry(t *testing.T) {
	fake := &amadeusFake{offers: `{"data":[]}`}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	clock := &mutableClock{t: time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)}
	client, _ := newTestAmadeus(t, server.URL, clock)

	for i := 0; i < 3; i++ {
		_, err := client.CheapestOffer(context.Background(), testQuery)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	// 600s lifetime, refreshed 60s early.
	clock.t = clock.t.Add(541 * time.Second)
	_, err := client.CheapestOffer(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestAmadeus401RefreshesTokenOnce(t *testing.T) {
	fake := &amadeusFake{offers: `{"data":[{"price":{"total":"99.00","currency":"USD"}}]}`}
	fake.reject.Store(1)
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client, _ := newTestAmadeus(t, server.URL, &mutableClock{t: time.Now()})
	offer, err := client.CheapestOffer(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Equal(t, 99.0, offer.Price)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
	assert.Equal(t, int32(2), fake.searchCalls.Load())
}

func TestAmadeusPersistent401(t *testing.T) {
	fake := &amadeusFake{}
	fake.reject.Store(5)
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client, _ := newTestAmadeus(t, server.URL, &mutableClock{t: time.Now()})
	_, err := client.CheapestOffer(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamFlights))
	assert.Equal(t, int32(2), fake.searchCalls.Load())
}

func TestAmadeusTokenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	client, _ := newTestAmadeus(t, server.URL, &mutableClock{t: time.Now()})
	_, err := client.CheapestOffer(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamAuth))
}

func TestAmadeusRateLimitedSearchRetries(t *testing.T) {
	var searches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/security/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","expires_in":1800}`))
	})
	mux.HandleFunc("/v2/shopping/flight-offers", func(w http.ResponseWriter, r *http.Request) {
		if searches.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[{"price":{"total":"150.00","currency":"USD"}}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestAmadeus(t, server.URL, &mutableClock{t: time.Now()})
	offer, err := client.CheapestOffer(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Equal(t, 150.0, offer.Price)
	assert.Equal(t, int32(3), searches.Load())
}
