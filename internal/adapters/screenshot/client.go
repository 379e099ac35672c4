// Package screenshot fronts a screenshot-as-a-service endpoint
// (base_url?key=...&url=...&dimension=...). Callers only ever see a keyless
// reference under PublicPath; Fetch resolves it against the service.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var ErrNoURL = errors.New("screenshot: empty website url")

// DefaultPublicPath is where the HTTP adapter serves fetched images.
const DefaultPublicPath = "/screenshot"

type Config struct {
	BaseURL   string
	APIKey    string
	Dimension string
	// Probe issues a HEAD request so that a failing service is noticed
	// before its URL is handed out.
	Probe bool
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64
	Timeout   time.Duration
	// PublicPath prefixes the references handed to clients.
	PublicPath string
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func New(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("screenshot: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Dimension == "" {
		cfg.Dimension = "1024x768"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PublicPath == "" {
		cfg.PublicPath = DefaultPublicPath
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{cfg: cfg, http: httpClient}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// Ref returns the keyless reference clients use to load the screenshot.
func (c *Client) Ref(websiteURL string) string {
	return c.cfg.PublicPath + "?" + url.Values{"url": {websiteURL}}.Encode()
}

// upstream returns the service URL for websiteURL, API key included.
func (c *Client) upstream(websiteURL string) string {
	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	q.Set("url", websiteURL)
	q.Set("dimension", c.cfg.Dimension)
	sep := "?"
	if strings.Contains(c.cfg.BaseURL, "?") {
		sep = "&"
	}
	return c.cfg.BaseURL + sep + q.Encode()
}

// Capture returns the screenshot reference, probing the service first when
// configured to.
func (c *Client) Capture(ctx context.Context, websiteURL string) (string, error) {
	if strings.TrimSpace(websiteURL) == "" {
		return "", ErrNoURL
	}
	if !c.cfg.Probe {
		return c.Ref(websiteURL), nil
	}
	resp, err := c.do(ctx, http.MethodHead, websiteURL)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	return c.Ref(websiteURL), nil
}

// Fetch downloads the screenshot of websiteURL. The caller closes the body.
func (c *Client) Fetch(ctx context.Context, websiteURL string) (io.ReadCloser, string, error) {
	if strings.TrimSpace(websiteURL) == "" {
		return nil, "", ErrNoURL
	}
	resp, err := c.do(ctx, http.MethodGet, websiteURL)
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, method, websiteURL string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("screenshot: rate limit: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.upstream(websiteURL), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error repeats the request URL, key included
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("screenshot: %s: %w", strings.ToLower(method), err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("screenshot: service returned %s", resp.Status)
	}
	return resp, nil
}
