package upstream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Login submits the first form of the configured login page with the
// provider's credentials. A failed login leaves the client usable for
// public endpoints.
func (c *HTTPClient) Login(ctx context.Context) error {
	if c.cfg.LoginURL == "" {
		return errors.Wrap(ErrAuth, "upstream login_url is not configured")
	}
	if c.creds == nil {
		return ErrMissingCredentials
	}
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return err
	}

	page, pageURL, err := c.fetchPage(ctx, http.MethodGet, c.cfg.LoginURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to open login page")
	}
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return errors.Wrap(err, "failed to parse login page")
	}
	form := findFirst(doc, atom.Form)
	if form == nil {
		return errors.Wrap(ErrAuth, "no login form found")
	}

	values := url.Values{}
	for _, in := range findAll(form, atom.Input, nil) {
		if name := attr(in, "name"); name != "" {
			values.Set(name, attr(in, "value"))
		}
	}
	if _, ok := values["email"]; ok {
		values.Set("email", creds.Username)
	} else {
		values.Set("username", creds.Username)
	}
	values.Set("password", creds.Password)

	action, err := pageURL.Parse(attr(form, "action"))
	if err != nil {
		return errors.Wrap(err, "invalid login form action")
	}

	_, landed, err := c.fetchPage(ctx, http.MethodPost, action.String(), values)
	if err != nil {
		return errors.Wrap(err, "failed to submit login form")
	}
	if landed.Host != c.baseURL.Host {
		return errors.Wrapf(ErrAuth, "login flow ended at %s", landed.Host)
	}

	check, err := c.get(ctx, "/events.php", nil)
	if err != nil {
		return errors.Wrap(err, "failed to verify login")
	}
	if bytes.Contains(check, []byte("Login Required")) {
		return errors.Wrap(ErrAuth, "session not established")
	}

	c.authenticated = true
	c.logger.Info("Authenticated with upstream")
	return nil
}

// fetchPage performs a single request without retries and returns the body
// and the final URL after redirects.
func (c *HTTPClient) fetchPage(ctx context.Context, method, target string, form url.Values) ([]byte, *url.URL, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, err
	}
	c.setHeaders(req)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &StatusError{StatusCode: resp.StatusCode, URL: target}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return data, resp.Request.URL, nil
}
