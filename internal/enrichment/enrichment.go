// Package enrichment looks organizations up through the official REST API. It is a
// secondary source: every failure is reported as failure.ErrEnrichmentUnavailable and
// the caller carries on without it.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/failure"
	"insights-backend/internal/record"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("insights.internal.enrichment")

const (
	report_lookup    = "lookup"
	report_followers = "followers"
)

const (
	DefaultBaseURL = "https://api.linkedin.com"
	DefaultVersion = "202411"
)

// Source is anything that can fill organization fields the extractor could not.
type Source interface {
	Lookup(ctx context.Context, orgID string) (record.Partial, error)
}

type Config struct {
	BaseURL string `json:"base_url"`
	// Token is the API access token, without one enrichment is disabled.
	Token             string  `json:"token"`
	Version           string  `json:"version"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return c
}

type options struct {
	tel telemetry.API
}

type Option func(o *options)

func WithTelemetry(tel telemetry.API) Option {
	return func(o *options) {
		o.tel = tel
	}
}

// Disabled is the source used when no token is configured.
type Disabled struct{}

func (Disabled) Lookup(ctx context.Context, orgID string) (record.Partial, error) {
	return record.Partial{}, failure.New(failure.KindEnrichmentUnavailable, "enrichment.lookup", "no api token configured")
}

// Open returns a Client, or Disabled when config has no token.
func Open(config Config, opts ...Option) Source {
	if strings.TrimSpace(config.Token) == "" {
		return Disabled{}
	}
	return New(config, opts...)
}

type Client struct {
	http *resty.Client
	tel  telemetry.API
}

func New(config Config, opts ...Option) *Client {
	o := options{tel: telemetry.SlogAPI{}}
	for _, opt := range opts {
		opt(&o)
	}
	config = config.withDefaults()
	tel := telemetry.NewScopedAPI("enrichment", o.tel)

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(config.BaseURL, "/"))
	client.SetTimeout(time.Duration(config.TimeoutSeconds) * time.Second)
	client.SetAuthToken(config.Token)
	client.SetHeader("LinkedIn-Version", config.Version)
	client.SetHeader("X-Restli-Protocol-Version", "2.0.0")
	client.SetHeader("Accept", "application/json")

	limiter := rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(client, tel)

	return &Client{http: client, tel: tel}
}

type localized struct {
	Localized       map[string]string `json:"localized"`
	PreferredLocale *struct {
		Country  string `json:"country"`
		Language string `json:"language"`
	} `json:"preferredLocale"`
}

// text resolves a value that is either a plain string or a localized object.
func text(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return nonEmpty(plain)
	}

	var loc localized
	if err := json.Unmarshal(raw, &loc); err != nil || len(loc.Localized) == 0 {
		return nil
	}
	if p := loc.PreferredLocale; p != nil {
		if v, ok := loc.Localized[p.Language+"_"+p.Country]; ok {
			return nonEmpty(v)
		}
	}
	keys := make([]string, 0, len(loc.Localized))
	for k := range loc.Localized {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return nonEmpty(loc.Localized[keys[0]])
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

type address struct {
	City           string `json:"city"`
	GeographicArea string `json:"geographicArea"`
	Country        string `json:"country"`
}

type organization struct {
	ID                   json.Number     `json:"id"`
	Name                 json.RawMessage `json:"name"`
	LocalizedName        string          `json:"localizedName"`
	Description          json.RawMessage `json:"description"`
	Website              json.RawMessage `json:"website"`
	LocalizedWebsite     string          `json:"localizedWebsite"`
	Industries           []string        `json:"industries"`
	Specialties          []string        `json:"specialties"`
	LocalizedSpecialties []string        `json:"localizedSpecialties"`
	FoundedOn            *struct {
		Year int `json:"year"`
	} `json:"foundedOn"`
	Locations []struct {
		Address *address `json:"address"`
	} `json:"locations"`
}

type organizationsResponse struct {
	Elements []organization `json:"elements"`
}

type networkSize struct {
	FirstDegreeSize *int64 `json:"firstDegreeSize"`
}

func (o organization) partial() record.Partial {
	p := record.Partial{
		Name:        text(o.Name),
		Description: text(o.Description),
		Website:     text(o.Website),
	}
	if p.Name == nil {
		p.Name = nonEmpty(o.LocalizedName)
	}
	if p.Website == nil {
		p.Website = nonEmpty(o.LocalizedWebsite)
	}
	if id := o.ID.String(); id != "" {
		p.LinkedinID = &id
	}
	if len(o.Industries) > 0 {
		p.Industry = nonEmpty(o.Industries[0])
	}
	if len(o.Locations) > 0 && o.Locations[0].Address != nil {
		a := o.Locations[0].Address
		var parts []string
		for _, part := range []string{a.City, a.GeographicArea, a.Country} {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			p.Location = record.Ptr(strings.Join(parts, ", "))
		}
	}
	if o.FoundedOn != nil && o.FoundedOn.Year > 0 {
		p.Founded = record.Ptr(strconv.Itoa(o.FoundedOn.Year))
	}
	p.Specialities = o.Specialties
	if len(p.Specialities) == 0 {
		p.Specialities = o.LocalizedSpecialties
	}
	return p
}

func unavailable(cause error, message string) error {
	return failure.Wrap(failure.KindEnrichmentUnavailable, "enrichment.lookup", cause, message)
}

func statusError(res *resty.Response) error {
	cause := fmt.Errorf("%s %s: %s", res.Request.Method, res.Request.URL, res.Status())
	switch res.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return unavailable(cause, "api access denied")
	case http.StatusTooManyRequests:
		return unavailable(cause, "api quota exhausted")
	case http.StatusNotFound:
		return unavailable(cause, "organization not found by the api")
	}
	return unavailable(cause, fmt.Sprintf("api returned status %d", res.StatusCode()))
}

// Lookup resolves orgID (a vanity name) and its follower count. The follower count is
// best effort, a failure there still returns the organization fields.
func (c *Client) Lookup(ctx context.Context, orgID string) (record.Partial, error) {
	ctx, span := tracer.Start(ctx, "Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID))

	partial, err := c.lookup(ctx, orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enrichment lookup failed")
		if ctx.Err() == nil {
			c.tel.ReportWarning(report_lookup, err)
		}
		return record.Partial{}, err
	}
	return partial, nil
}

func (c *Client) lookup(ctx context.Context, orgID string) (record.Partial, error) {
	var orgs organizationsResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", "vanityName").
		SetQueryParam("vanityName", orgID).
		SetResult(&orgs).
		Get("/rest/organizations")
	if err != nil {
		if ctx.Err() != nil {
			return record.Partial{}, ctx.Err()
		}
		return record.Partial{}, unavailable(err, "api request failed")
	}
	if res.IsError() {
		return record.Partial{}, statusError(res)
	}
	if len(orgs.Elements) == 0 {
		return record.Partial{}, unavailable(nil, "organization not found by the api")
	}

	partial := orgs.Elements[0].partial()
	if partial.LinkedinID != nil {
		followers, err := c.followers(ctx, *partial.LinkedinID)
		if err != nil {
			if ctx.Err() != nil {
				return record.Partial{}, ctx.Err()
			}
			c.tel.ReportDebug(report_followers, err)
		}
		partial.Followers = followers
	}
	return partial, nil
}

func (c *Client) followers(ctx context.Context, linkedinID string) (*int64, error) {
	var size networkSize
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("urn", "urn:li:organization:"+linkedinID).
		SetQueryParam("edgeType", "COMPANY_FOLLOWED_BY_MEMBER").
		SetResult(&size).
		Get("/rest/networkSizes/{urn}")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, statusError(res)
	}
	if size.FirstDegreeSize == nil || *size.FirstDegreeSize < 0 {
		return nil, nil
	}
	return size.FirstDegreeSize, nil
}
