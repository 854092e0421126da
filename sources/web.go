package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/flowkeeper/chunk"
	"github.com/hazyhaar/flowkeeper/docpipe"
	"github.com/hazyhaar/flowkeeper/faults"
)

// CrawlConfig configures a Crawler.
type CrawlConfig struct {
	// Depth is the number of link hops followed from the start URL.
	Depth int `json:"depth" yaml:"depth"`
	// MaxPages bounds the number of fetched pages. Default: 50.
	MaxPages int `json:"max_pages" yaml:"max_pages"`
	// Timeout per request. Default: 10s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// MaxBytes per page. Default: 5 MB.
	MaxBytes  int64  `json:"max_bytes" yaml:"max_bytes"`
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	Chunk chunk.Options `json:"-" yaml:"-"`
	// URLValidator vets every URL before it is fetched, redirects included.
	// Default: PublicURL.
	URLValidator func(string) error `json:"-" yaml:"-"`
	Logger       *slog.Logger       `json:"-" yaml:"-"`
}

func (c *CrawlConfig) defaults() {
	if c.Depth < 0 {
		c.Depth = 0
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "flowkeeper/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = PublicURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Crawler walks a site breadth-first, staying on the start URL's host.
type Crawler struct {
	cfg    CrawlConfig
	client *http.Client
}

// NewCrawler returns a Crawler.
func NewCrawler(cfg CrawlConfig) *Crawler {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Crawler{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return validate(req.URL.String())
			},
		},
	}
}

type queued struct {
	url   string
	depth int
}

// Crawl fetches start and, up to Depth hops away, the same-host pages it
// links to. Each page is sanitized, converted to Markdown and chunked.
// Pages that fail to fetch or parse are warnings.
func (c *Crawler) Crawl(ctx context.Context, start string) ([]WebChunk, []faults.ParseWarning, error) {
	base, err := url.Parse(start)
	if err != nil {
		return nil, nil, fmt.Errorf("sources: crawl: %w", err)
	}
	if err := c.cfg.URLValidator(start); err != nil {
		return nil, nil, fmt.Errorf("sources: crawl %s: %w", start, err)
	}

	var chunks []WebChunk
	var warnings []faults.ParseWarning
	seen := map[string]bool{normalizeURL(base): true}
	queue := []queued{{url: base.String()}}
	fetched := 0

	for len(queue) > 0 && fetched < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return chunks, warnings, err
		}
		item := queue[0]
		queue = queue[1:]

		body, err := c.fetch(ctx, item.url)
		fetched++
		if err != nil {
			c.cfg.Logger.Warn("sources: fetch failed", "url", item.url, "error", err)
			warnings = append(warnings, faults.Warn(item.url, err))
			continue
		}

		title, text, err := docpipe.HTMLToText(body, item.url)
		if err != nil {
			c.cfg.Logger.Warn("sources: parse failed", "url", item.url, "error", err)
			warnings = append(warnings, faults.Warn(item.url, err))
			continue
		}
		for _, ch := range chunk.Split(text, c.cfg.Chunk) {
			chunks = append(chunks, WebChunk{
				URL:   item.url,
				Title: title,
				Depth: item.depth,
				Index: ch.Index,
				Text:  ch.Text,
			})
		}

		if item.depth >= c.cfg.Depth {
			continue
		}
		for _, link := range Links(body, item.url) {
			if link.Host != base.Host {
				continue
			}
			key := normalizeURL(link)
			if seen[key] {
				continue
			}
			if c.cfg.URLValidator(link.String()) != nil {
				continue
			}
			seen[key] = true
			queue = append(queue, queued{url: link.String(), depth: item.depth + 1})
		}
	}

	c.cfg.Logger.Info("sources: crawl done", "start", start, "pages", fetched, "chunks", len(chunks), "warnings", len(warnings))
	return chunks, warnings, nil
}

func (c *Crawler) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		if mt != "text/html" && mt != "application/xhtml+xml" {
			return nil, fmt.Errorf("content type %q is not html", mt)
		}
	}
	return readLimited(resp.Body, c.cfg.MaxBytes)
}

// Links returns the absolute http(s) targets of the <a href> elements in
// page, resolved against pageURL, fragments removed, in document order.
func Links(page []byte, pageURL string) []*url.URL {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}
	if b := baseHref(doc); b != "" {
		if u, err := base.Parse(b); err == nil {
			base = u
		}
	}

	var links []*url.URL
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				href := strings.TrimSpace(a.Val)
				if href == "" || strings.HasPrefix(href, "#") {
					break
				}
				u, err := base.Parse(href)
				if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
					break
				}
				u.Fragment, u.RawFragment = "", ""
				links = append(links, u)
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return links
}

func baseHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Base {
		for _, a := range n.Attr {
			if a.Key == "href" {
				return a.Val
			}
		}
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if h := baseHref(ch); h != "" {
			return h
		}
	}
	return ""
}

// normalizeURL is the dedup key of a URL: no fragment, no trailing slash
// on the path.
func normalizeURL(u *url.URL) string {
	c := *u
	c.Fragment, c.RawFragment = "", ""
	c.Path = strings.TrimSuffix(c.Path, "/")
	return c.String()
}
