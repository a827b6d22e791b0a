// Package probe performs bounded-timeout URL reachability checks and fetches
// page text for content verification.
package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// maxBodyBytes caps how much of a page is read for text extraction.
const maxBodyBytes = 512 * 1024

// Client probes URLs and extracts page text.
type Client interface {
	// Reachable issues a bounded GET and reports whether the URL answered
	// with a non-error status.
	Reachable(ctx context.Context, url string) (bool, int, error)

	// FetchText fetches the URL and returns its title and plaintext body.
	FetchText(ctx context.Context, url string) (*Page, error)
}

// Page holds the extracted content of one fetched page.
type Page struct {
	URL        string
	Title      string
	Text       string
	StatusCode int
}

// Option configures the prober.
type Option func(*prober)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *prober) { p.client.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *prober) { p.client = hc }
}

type prober struct {
	client    *http.Client
	userAgent string
}

// NewClient creates a prober with a 10s default timeout.
func NewClient(opts ...Option) Client {
	p := &prober{
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		userAgent: "Mozilla/5.0 (compatible; ResourceVerifier/1.0)",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *prober) Reachable(ctx context.Context, url string) (bool, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, 0, eris.Wrap(err, "probe: create request")
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return false, 0, eris.Wrap(err, "probe: fetch")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode < 400, resp.StatusCode, nil
}

func (p *prober) FetchText(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "probe: create request")
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "probe: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("probe: status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "probe: read body")
	}

	return &Page{
		URL:        url,
		Title:      extractTitle(body),
		Text:       stripHTML(string(body)),
		StatusCode: resp.StatusCode,
	}, nil
}

var titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)

func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

var (
	blockTagRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`),
		regexp.MustCompile(`(?is)<footer[^>]*>.*?</footer>`),
	}
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`[ \t]+`)
	nlRe    = regexp.MustCompile(`\n{3,}`)
)

// stripHTML removes script/style/nav/footer blocks, strips tags, decodes the
// common entities, and collapses whitespace into LLM-ready plaintext.
func stripHTML(html string) string {
	for _, re := range blockTagRes {
		html = re.ReplaceAllString(html, "")
	}
	html = tagRe.ReplaceAllString(html, " ")

	html = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(html)

	html = spaceRe.ReplaceAllString(html, " ")
	html = nlRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
