// Package linkedin is the field extractor and the authenticator for LinkedIn. It talks
// to the site over plain HTTP, the only browser it ever starts is the optional
// interactive login.
package linkedin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"insights-backend/internal/components/chrono"
	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/credstore"
	"insights-backend/internal/failure"
	"insights-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("insights.internal.scrapers.linkedin")

const DefaultBaseURL = "https://www.linkedin.com"

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"

type Config struct {
	BaseURL string `json:"base_url"`
	// RequestsPerSecond paces every request made by this package, login included.
	RequestsPerSecond float64 `json:"requests_per_second"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	UserAgent         string  `json:"user_agent"`
	MaxPosts          int     `json:"max_posts"`
	MaxComments       int     `json:"max_comments"`
	MaxPeople         int     `json:"max_people"`
	// DumpDir receives every http exchange (credentials redacted) while debug logging
	// is enabled, it is meant for updating selectors against live markup.
	DumpDir string `json:"dump_dir"`
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 1
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxPosts <= 0 {
		c.MaxPosts = 20
	}
	if c.MaxComments <= 0 {
		c.MaxComments = 20
	}
	if c.MaxPeople <= 0 {
		c.MaxPeople = 50
	}
	return c
}

type options struct {
	tel  telemetry.API
	time chrono.TimeAPI
}

type Option func(o *options)

func WithTelemetry(tel telemetry.API) Option {
	return func(o *options) {
		o.tel = tel
	}
}

func WithTime(time chrono.TimeAPI) Option {
	return func(o *options) {
		o.time = time
	}
}

func newOptions(opts []Option) options {
	o := options{
		tel:  telemetry.SlogAPI{},
		time: chrono.StandardTime{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.tel = telemetry.NewScopedAPI("linkedin_scraper", o.tel)
	return o
}

// site is the shared http plumbing: every client made from it shares one rate limiter
// so login and extraction never exceed the configured pace together.
type site struct {
	config  Config
	base    *url.URL
	limiter *rate.Limiter
	dump    restyutil.InstrumentOutput
	tel     telemetry.API
}

func newSite(config Config, tel telemetry.API) (*site, error) {
	config = config.withDefaults()
	base, err := url.Parse(strings.TrimSuffix(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	s := &site{
		config: config,
		base:   base,
		// max burst of 1 keeps requests evenly spaced
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		tel:     tel,
	}
	if config.DumpDir != "" {
		out, err := restyutil.NewFilesystemOutput(config.DumpDir)
		if err != nil {
			return nil, err
		}
		s.dump = out
	}
	return s, nil
}

// newClient creates a client with its own cookie jar seeded with cookies.
func (s *site) newClient(cookies []*http.Cookie) (*resty.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if len(cookies) > 0 {
		jar.SetCookies(s.base, s.hostCookies(cookies))
	}

	client := resty.New()
	client.SetBaseURL(s.base.String())
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", s.config.UserAgent)
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("accept-language", "en-US,en;q=0.9")
	client.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(s.base.Hostname()),
	)
	client.SetTimeout(time.Second * time.Duration(s.config.TimeoutSeconds))

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return s.limiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, s.tel)
	restyutil.InstrumentClient(client, tracer, s.dump)

	return client, nil
}

// hostCookies rebinds cookies to the base host. Stored cookies carry the public domain
// (".linkedin.com") which a jar refuses for any other base url.
func (s *site) hostCookies(cookies []*http.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		copied := *c
		copied.Domain = ""
		if s.base.Scheme != "https" {
			copied.Secure = false
		}
		out = append(out, &copied)
	}
	return out
}

// cookieDomain is the domain recorded on cookies read back from a jar.
func (s *site) cookieDomain() string {
	return "." + strings.TrimPrefix(s.base.Hostname(), "www.")
}

// jarCookies returns the cookies the jar holds for the site.
func (s *site) jarCookies(client *resty.Client) []credstore.Cookie {
	jar := client.GetClient().Jar
	if jar == nil {
		return nil
	}
	return credstore.FromHTTPCookies(jar.Cookies(s.base), s.cookieDomain())
}

// resolve resolves a link found on a page against the base url and reports whether it
// stays on the target host.
func (s *site) resolve(href string) (*url.URL, bool) {
	link, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, false
	}
	link = s.base.ResolveReference(link)
	return link, link.Host == s.base.Host
}

type page struct {
	doc   *goquery.Document
	body  string
	final *url.URL
	base  *url.URL
}

func finalURL(res *resty.Response) *url.URL {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL
	}
	parsed, err := url.Parse(res.Request.URL)
	if err != nil {
		return &url.URL{}
	}
	return parsed
}

func newPage(res *resty.Response, base *url.URL) (page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return page{}, err
	}
	return page{
		doc:   doc,
		body:  string(res.Body()),
		final: finalURL(res),
		base:  base,
	}, nil
}

func isFeed(u *url.URL) bool {
	return strings.HasPrefix(u.Path, "/feed")
}

var wallPrefixes = []string{
	"/authwall",
	"/login",
	"/uas/login",
	"/checkpoint",
	"/signup",
}

// isSessionWall reports whether u is a page the site shows instead of content when the
// session is not authenticated.
func isSessionWall(u *url.URL) bool {
	for _, prefix := range wallPrefixes {
		if strings.HasPrefix(u.Path, prefix) {
			return true
		}
	}
	return strings.Contains(u.Path, "/challenge")
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return failure.Wrap(failure.KindTransientNetwork, op, err, "request failed")
}

// statusError classifies non-success statuses, 999 is what the site answers to clients
// it considers automated.
func statusError(op string, code int) error {
	switch {
	case code == http.StatusTooManyRequests || code == 999 || code >= 500:
		return failure.New(failure.KindTransientNetwork, op, fmt.Sprintf("status %d", code))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return failure.New(failure.KindSessionInvalid, op, fmt.Sprintf("status %d", code))
	case code == http.StatusNotFound:
		return failure.New(failure.KindNotFound, op, "page does not exist")
	case code >= 400:
		return fmt.Errorf("%s: unexpected status %d", op, code)
	}
	return nil
}

// get fetches an authenticated page, redirects to a login or authwall page fail with
// SessionInvalid.
func (s *site) get(ctx context.Context, client *resty.Client, op, path string) (page, error) {
	res, err := client.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return page{}, transportError(op, err)
	}

	final := finalURL(res)
	if isSessionWall(final) {
		slog.DebugContext(ctx, "redirected to session wall", "op", op, "path", final.Path)
		return page{}, failure.New(failure.KindSessionInvalid, op, "redirected to "+final.Path)
	}
	err = statusError(op, res.StatusCode())
	if err != nil {
		return page{}, err
	}

	p, err := newPage(res, s.base)
	if err != nil {
		return page{}, fmt.Errorf("%s: parse page: %w", op, err)
	}
	return p, nil
}
