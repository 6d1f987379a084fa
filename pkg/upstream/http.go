package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

const (
	DefaultBaseURL     = "https://zwiftpower.com"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second

	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config configures HTTPClient.
type Config struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	LoginURL    string        `mapstructure:"login_url" yaml:"login_url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	UserAgent   string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// HTTPClient implements Client against the results service's JSON cache
// endpoints and event pages. It keeps a cookie session between calls.
type HTTPClient struct {
	cfg           Config
	baseURL       *url.URL
	http          *http.Client
	creds         CredentialProvider
	authenticated bool
	logger        *logrus.Entry
}

// NewHTTPClient creates a client. creds may be nil when Login is never called.
func NewHTTPClient(cfg Config, creds CredentialProvider) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid upstream base_url %q", cfg.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cookie jar")
	}

	return &HTTPClient{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout, Jar: jar},
		creds:   creds,
		logger:  logrus.WithField("component", "upstream"),
	}, nil
}

func (c *HTTPClient) Authenticated() bool { return c.authenticated }

func (c *HTTPClient) RiderHistory(ctx context.Context, riderID string) ([]json.RawMessage, error) {
	body, err := c.get(ctx, "/cache3/profile/"+url.PathEscape(riderID)+"_all.json", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch history for rider %s", riderID)
	}
	rows, _, err := dataArray(body)
	if err != nil {
		return nil, errors.Wrapf(err, "rider %s history", riderID)
	}
	return rows, nil
}

// EventResults reads the cached results view and falls back to the dynamic
// API when the cache fails or has no data.
func (c *HTTPClient) EventResults(ctx context.Context, eventID string) ([]json.RawMessage, error) {
	body, err := c.get(ctx, "/cache3/results/"+url.PathEscape(eventID)+"_view.json", nil)
	if err == nil {
		rows, ok, perr := dataArray(body)
		if perr == nil && ok {
			return rows, nil
		}
		err = perr
	}
	c.logger.WithFields(logrus.Fields{"event_id": eventID, "error": err}).Debug("Cached results unavailable, trying dynamic API")

	body, err = c.get(ctx, "/api3.php", url.Values{"do": {"event_results"}, "zid": {eventID}})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch results for event %s", eventID)
	}
	rows, _, err := dataArray(body)
	if err != nil {
		return nil, errors.Wrapf(err, "event %s results", eventID)
	}
	return rows, nil
}

func (c *HTTPClient) EventDetails(ctx context.Context, eventID string) (EventDetails, error) {
	body, err := c.get(ctx, "/events.php", url.Values{"zid": {eventID}})
	if err != nil {
		return EventDetails{}, errors.Wrapf(err, "failed to fetch details for event %s", eventID)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return EventDetails{}, errors.Wrapf(err, "failed to parse event page %s", eventID)
	}
	return EventDetails{ID: eventID, Title: extractTitle(doc, eventID)}, nil
}

// get performs a GET with exponential backoff on transport errors, 429 and
// 5xx responses.
func (c *HTTPClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	target := u.String()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.cfg.RetryDelay << uint(c.cfg.MaxAttempts)
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, resp.Body)
			serr := &StatusError{StatusCode: resp.StatusCode, URL: target}
			if serr.Retryable() {
				return serr
			}
			return backoff.Permanent(serr)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"url":      target,
			"error":    err,
			"retry_in": wait,
		}).Warn("Upstream request failed, retrying")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
}

// dataArray extracts the "data" array of a JSON payload. ok is false when the
// payload has no such array.
func dataArray(body []byte) ([]json.RawMessage, bool, error) {
	if !gjson.ValidBytes(body) {
		return nil, false, errors.New("response is not valid JSON")
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return []json.RawMessage{}, false, nil
	}
	items := data.Array()
	rows := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		if item.IsObject() {
			rows = append(rows, json.RawMessage(item.Raw))
		}
	}
	return rows, true, nil
}
