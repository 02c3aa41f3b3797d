// Package crawler fetches pages from an external site with SSRF protections.
// Redirects are never followed by the HTTP client; each hop re-enters URL
// validation so an invalid hop is dropped rather than followed.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/logger"
)

const maxRedirectHops = 5

// Config holds crawler limits.
type Config struct {
	ShallowTimeout time.Duration
	DeepTimeout    time.Duration
	MaxPages       int
	MaxBodyBytes   int64
	UserAgent      string
}

// Client is the safe web crawler.
type Client struct {
	http     *resty.Client
	cfg      Config
	resolver hostResolver
}

// CrawlResult is the output of a deep crawl: bounded page summaries and a
// deduplicated asset URL set.
type CrawlResult struct {
	Pages     []domain.PageSummary
	AssetURLs []string
	Truncated bool
}

// New creates a crawler client.
// Parameters:
//   - cfg: crawler limits; zero values get sensible defaults.
// Returns:
//   - *Client: initialized crawler.
func New(cfg Config) *Client {
	if cfg.ShallowTimeout <= 0 {
		cfg.ShallowTimeout = 10 * time.Second
	}
	if cfg.DeepTimeout <= 0 {
		cfg.DeepTimeout = 5 * time.Minute
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "SitesmithBot/1.0"
	}

	client := resty.New()
	client.SetHeader("User-Agent", cfg.UserAgent)
	// Redirects are followed manually so every hop is re-validated.
	client.SetRedirectPolicy(resty.NoRedirectPolicy())
	// Connections dial only addresses that passed the range checks at dial
	// time, closing the rebinding window between validation and request.
	client.SetTransport(&http.Transport{
		DialContext:           safeDialContext(defaultResolver),
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	})

	return &Client{http: client, cfg: cfg, resolver: defaultResolver}
}

// FetchShallow retrieves only the root document for the pre-verification
// preview. No follow-on requests are made.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rawURL: site root URL.
// Returns:
//   - *domain.PageSummary: summary of the root document.
//   - error: non-nil if validation or the fetch fails.
func (c *Client) FetchShallow(ctx context.Context, rawURL string) (*domain.PageSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ShallowTimeout)
	defer cancel()

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable url %q", ErrBlocked, rawURL)
	}

	page, err := c.fetchPage(ctx, rawURL, base.Hostname())
	if err != nil {
		return nil, err
	}
	return &page.Summary, nil
}

// FetchDeep performs a bounded breadth-first traversal limited to the
// original domain and its subdomains. Must never be invoked before ownership
// verification succeeds; the orchestrator enforces that gate.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rawURL: site root URL.
//   - maxPages: page bound; 0 uses the configured default.
// Returns:
//   - *CrawlResult: page summaries with inbound-link counts and deduplicated
//     asset URLs.
//   - error: non-nil if the root fetch fails; individual page failures are
//     logged and skipped.
func (c *Client) FetchDeep(ctx context.Context, rawURL string, maxPages int) (*CrawlResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DeepTimeout)
	defer cancel()

	if maxPages <= 0 {
		maxPages = c.cfg.MaxPages
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable url %q", ErrBlocked, rawURL)
	}
	baseHost := base.Hostname()

	root, err := c.fetchPage(ctx, rawURL, baseHost)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{root.Summary.URL: true}
	inbound := map[string]int{}
	assets := map[string]bool{}
	pages := []domain.PageSummary{root.Summary}
	queue := []string{}

	enqueue := func(page *parsedPage) {
		for _, asset := range page.Assets {
			assets[asset] = true
		}
		for _, link := range page.Links {
			inbound[link]++
			if !visited[link] {
				visited[link] = true
				queue = append(queue, link)
			}
		}
	}
	enqueue(root)

	truncated := false
	for len(queue) > 0 {
		if ctx.Err() != nil {
			break
		}
		if len(pages) >= maxPages {
			truncated = true
			break
		}

		next := queue[0]
		queue = queue[1:]

		page, err := c.fetchPage(ctx, next, baseHost)
		if err != nil {
			// Off-origin and blocked links are expected in the frontier;
			// they are dropped, not fatal.
			logger.CtxDebug(ctx, "Skipping page: url=%s, reason=%v", next, err)
			continue
		}
		pages = append(pages, page.Summary)
		enqueue(page)
	}

	// Stamp inbound-link counts so planning can rank pages.
	for i := range pages {
		pages[i].InboundLinks = inbound[pages[i].URL]
	}

	assetList := make([]string, 0, len(assets))
	for asset := range assets {
		assetList = append(assetList, asset)
	}
	sort.Strings(assetList)

	return &CrawlResult{Pages: pages, AssetURLs: assetList, Truncated: truncated}, nil
}

// fetchPage fetches one URL, following redirects manually with per-hop
// validation, and parses the final document.
func (c *Client) fetchPage(ctx context.Context, rawURL, baseHost string) (*parsedPage, error) {
	current := rawURL
	for hop := 0; hop <= maxRedirectHops; hop++ {
		u, err := validateURL(ctx, c.resolver, current, baseHost)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.R().SetContext(ctx).SetDoNotParseResponse(false).Get(u.String())
		if err != nil {
			// resty reports a blocked auto-redirect as an error carrying the
			// response; everything else is a transport failure.
			if resp == nil || resp.RawResponse == nil {
				return nil, fmt.Errorf("failed to fetch %s: %w", u, err)
			}
		}

		status := resp.StatusCode()
		if status >= 300 && status < 400 {
			location := resp.Header().Get("Location")
			if location == "" {
				return nil, fmt.Errorf("redirect from %s carries no location", u)
			}
			next, err := url.Parse(location)
			if err != nil {
				return nil, fmt.Errorf("%w: unparseable redirect target %q", ErrBlocked, location)
			}
			current = u.ResolveReference(next).String()
			continue
		}

		if status != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d fetching %s", status, u)
		}

		body := resp.Body()
		if int64(len(body)) > c.cfg.MaxBodyBytes {
			body = body[:c.cfg.MaxBodyBytes]
		}
		return parseDocument(u, string(body)), nil
	}
	return nil, fmt.Errorf("%w: too many redirect hops from %s", ErrBlocked, rawURL)
}
