package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"tidefly/internal/types"
)

const (
	defaultTokenLifetime = 1800 * time.Second
	tokenRefreshSkew     = 60 * time.Second
)

// AmadeusConfig holds the configuration for the Amadeus clients.
type AmadeusConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret types.SecretString
	Logger       *slog.Logger
	Clock        types.Clock
}

// AmadeusTokenSource caches an OAuth2 client-credentials token in memory and
// refreshes it 60 seconds before expiry. It is safe for concurrent use.
type AmadeusTokenSource struct {
	base     *BaseClient
	baseURL  string
	clientID string
	secret   types.SecretString
	clock    types.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAmadeusTokenSource creates a token source for the given credentials.
func NewAmadeusTokenSource(base *BaseClient, cfg AmadeusConfig) *AmadeusTokenSource {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AmadeusTokenSource{
		base:     base,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID: cfg.ClientID,
		secret:   cfg.ClientSecret,
		clock:    clock,
		logger:   logger,
	}
}

type amadeusTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns the cached token or fetches a new one.
func (s *AmadeusTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.token != "" && now.Before(s.expiresAt.Add(-tokenRefreshSkew)) {
		return s.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.secret.Unmask())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/security/oauth2/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build amadeus token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.base.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamAuth, "amadeus token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", types.NewAppError(types.ErrCodeUpstreamAuth,
			fmt.Sprintf("amadeus token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var tr amadeusTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil || tr.AccessToken == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamAuth, "amadeus token response missing access_token", err)
	}

	lifetime := defaultTokenLifetime
	if tr.ExpiresIn > 0 {
		lifetime = time.Duration(tr.ExpiresIn) * time.Second
	}
	s.token = tr.AccessToken
	s.expiresAt = now.Add(lifetime)
	s.logger.DebugContext(ctx, "amadeus token refreshed", "expires_at", s.expiresAt)
	return s.token, nil
}

// Invalidate drops the cached token.
func (s *AmadeusTokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// AmadeusClient implements FlightSearcher with the Flight Offers Search API.
type AmadeusClient struct {
	base    *BaseClient
	tokens  TokenSource
	baseURL string
	logger  *slog.Logger
}

// NewAmadeusClient creates an AmadeusClient that authenticates via tokens.
func NewAmadeusClient(base *BaseClient, tokens TokenSource, cfg AmadeusConfig) *AmadeusClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AmadeusClient{
		base:    base,
		tokens:  tokens,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

type amadeusOffersResponse struct {
	Data []struct {
		Price struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
	} `json:"data"`
}

// CheapestOffer searches round-trip offers for one adult and returns the
// lowest price.total. A 401 invalidates the token and retries once.
func (c *AmadeusClient) CheapestOffer(ctx context.Context, q OfferQuery) (*Offer, error) {
	params := url.Values{}
	params.Set("originLocationCode", q.Origin)
	params.Set("destinationLocationCode", q.Dest)
	params.Set("departureDate", q.DepartDate)
	params.Set("returnDate", q.ReturnDate)
	params.Set("adults", "1")
	params.Set("max", "10")
	if q.Currency != "" {
		params.Set("currencyCode", q.Currency)
	}
	endpoint := c.baseURL + "/v2/shopping/flight-offers?" + params.Encode()

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build amadeus search request", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.base.Do(req)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamFlights, "amadeus search failed", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.logger.InfoContext(ctx, "amadeus token rejected, refreshing")
			c.tokens.Invalidate()
			continue
		}

		offer, err := c.decodeOffers(resp, q)
		resp.Body.Close()
		return offer, err
	}

	return nil, types.NewAppError(types.ErrCodeUpstreamAuth, "amadeus rejected a freshly issued token", nil)
}

func (c *AmadeusClient) decodeOffers(resp *http.Response, q OfferQuery) (*Offer, error) {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, types.NewAppError(types.ErrCodeUpstreamFlights,
			fmt.Sprintf("amadeus search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var body amadeusOffersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFlights, "amadeus search response was not valid JSON", err)
	}

	var best *Offer
	for _, d := range body.Data {
		price, err := strconv.ParseFloat(d.Price.Total, 64)
		if err != nil || price < 0 {
			continue
		}
		if best == nil || price < best.Price {
			currency := d.Price.Currency
			if currency == "" {
				currency = q.Currency
			}
			best = &Offer{Price: price, Currency: currency}
		}
	}
	return best, nil
}

var (
	_ TokenSource    = (*AmadeusTokenSource)(nil)
	_ FlightSearcher = (*AmadeusClient)(nil)
)
