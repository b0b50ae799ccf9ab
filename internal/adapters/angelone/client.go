package angelone

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vanna/internal/adapters/config"
	"vanna/internal/domain/chain"
	"vanna/internal/metrics"
	"vanna/internal/session"
	"vanna/pkg/errors"
	"vanna/pkg/logger"
)

const (
	loginPath = "/rest/auth/angelbroking/user/v1/loginByPassword"
	quotePath = "/rest/secure/angelbroking/market/v1/quote"

	nfoSegment    = "NFO"
	indexOptions  = "OPTIDX"
	quoteModeFull = "FULL"
)

// Client talks to the Angel One SmartAPI REST surface: session issuance,
// the instrument master dump and on-demand quotes. REST quotes are rate
// limited so cache-miss fallbacks inside a scheduler tick cannot stampede
// the broker.
type Client struct {
	apiKey         string
	baseURL        string
	scripMasterURL string
	underlyings    map[string]bool
	httpClient     *http.Client
	limiter        *rate.Limiter

	mu        sync.RWMutex
	authToken string

	log *logger.Logger
}

// NewClient creates an Angel One API client
func NewClient(cfg config.BrokerConfig, underlyings []string) *Client {
	wanted := make(map[string]bool, len(underlyings))
	for _, u := range underlyings {
		wanted[u] = true
	}

	rps := float64(cfg.QuoteRPM) / 60.0
	burst := cfg.QuoteRPM / 10
	if burst < 1 {
		burst = 1
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        cfg.APIBaseURL,
		scripMasterURL: cfg.ScripMasterURL,
		underlyings:    wanted,
		httpClient:     &http.Client{Timeout: cfg.QuoteTimeout},
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		log:            logger.Get().With("component", "angelone"),
	}
}

// SetAuthToken installs the JWT used for secure endpoints. Called after a
// successful login or at boot from configuration.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()
}

// Login performs the broker login handshake and returns the issued session.
// Broker-side rejections surface as ErrAuth and are not retried here.
func (c *Client) Login(ctx context.Context, clientCode, password, totp string) (session.Session, error) {
	body, err := json.Marshal(loginRequest{
		ClientCode: clientCode,
		Password:   password,
		TOTP:       totp,
	})
	if err != nil {
		return session.Session{}, errors.Wrap(err, "marshal login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return session.Session{}, errors.Wrap(err, "build login request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session.Session{}, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return session.Session{}, errors.Wrap(errors.ErrUnavailable, "decode login response: "+err.Error())
	}

	if !lr.Status {
		msg := lr.Message
		if msg == "" {
			msg = "login rejected"
		}
		return session.Session{}, errors.Wrap(errors.ErrAuth, msg)
	}

	c.SetAuthToken(lr.Data.JWTToken)

	return session.Session{
		ClientCode:   clientCode,
		FeedToken:    lr.Data.FeedToken,
		AuthToken:    lr.Data.JWTToken,
		RefreshToken: lr.Data.RefreshToken,
		LoginTime:    time.Now(),
	}, nil
}

// FetchInstruments downloads the scrip master dump and keeps index option
// contracts for the configured underlyings. Implements chain.CatalogSource.
func (c *Client) FetchInstruments(ctx context.Context) ([]chain.Instrument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.scripMasterURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build scrip master request")
	}

	// The dump is tens of MB; don't hold the quote timeout against it.
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch scrip master")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("scrip master returned status %d", resp.StatusCode)
	}

	var records []scripRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, errors.Wrap(err, "decode scrip master")
	}

	instruments := make([]chain.Instrument, 0, 4096)
	for _, r := range records {
		if r.ExchSeg != nfoSegment || r.InstrumentType != indexOptions {
			continue
		}
		if !c.underlyings[r.Name] {
			continue
		}
		if len(r.Symbol) < 2 {
			continue
		}

		side := chain.OptionSide(r.Symbol[len(r.Symbol)-2:])
		if side != chain.SideCall && side != chain.SidePut {
			continue
		}

		strike, err := strconv.ParseFloat(r.Strike, 64)
		if err != nil {
			continue
		}

		instruments = append(instruments, chain.Instrument{
			Underlying: r.Name,
			Expiry:     r.Expiry,
			Strike:     float64(int64(strike)),
			Side:       side,
			Token:      r.Token,
			Symbol:     r.Symbol,
		})
	}

	c.log.Infow("Scrip master fetched", "total_records", len(records), "kept", len(instruments))
	return instruments, nil
}

// FetchQuote issues one synchronous point-query for an instrument.
// Implements chain.QuoteFetcher; failures surface as ErrUnavailable and the
// caller leaves the leg absent.
func (c *Client) FetchQuote(ctx context.Context, token string) (chain.Tick, error) {
	tick, err := c.fetchQuote(ctx, token)
	metrics.RecordQuoteFallback(err)
	return tick, err
}

func (c *Client) fetchQuote(ctx context.Context, token string) (chain.Tick, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return chain.Tick{}, errors.Wrap(errors.ErrRateLimitExceeded, err.Error())
	}

	body, err := json.Marshal(quoteRequest{
		Mode:           quoteModeFull,
		ExchangeTokens: map[string][]string{nfoSegment: {token}},
	})
	if err != nil {
		return chain.Tick{}, errors.Wrap(err, "marshal quote request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+quotePath, bytes.NewReader(body))
	if err != nil {
		return chain.Tick{}, errors.Wrap(err, "build quote request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chain.Tick{}, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return chain.Tick{}, errors.Wrapf(errors.ErrUnavailable, "quote endpoint status %d", resp.StatusCode)
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return chain.Tick{}, errors.Wrap(errors.ErrUnavailable, "decode quote response: "+err.Error())
	}

	if !qr.Status || len(qr.Data.Fetched) == 0 {
		return chain.Tick{}, errors.Wrapf(errors.ErrUnavailable, "no quote for token %s", token)
	}

	q := qr.Data.Fetched[0]
	return chain.Tick{
		Token:     token,
		LTP:       q.LTP,
		OI:        q.OpenInterest,
		Volume:    q.TradeVolume,
		Timestamp: time.Now(),
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	c.mu.RLock()
	token := c.authToken
	c.mu.RUnlock()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-PrivateKey", c.apiKey)
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
