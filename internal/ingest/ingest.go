// Package ingest decides, for each request, whether an organization record comes from
// the cache, from a fresh extraction or, when no session can be had, from the last
// persisted copy.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"insights-backend/internal/assert"
	"insights-backend/internal/cache"
	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/enrichment"
	"insights-backend/internal/failure"
	"insights-backend/internal/record"
	"insights-backend/internal/retry"
	"insights-backend/internal/session"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("insights.internal.ingest")

const (
	report_cache      = "cache"
	report_persist    = "persist"
	report_degraded   = "degraded"
	report_enrichment = "enrichment"
	report_retry      = "retry"
)

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeFresh
	OutcomeCached
	OutcomeDegraded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeCached:
		return "cached"
	case OutcomeDegraded:
		return "degraded"
	}
	return "none"
}

type Result struct {
	Outcome Outcome
	// Record is nil only when an error is returned.
	Record   *record.Canonical
	Missing  record.Missing
	Enriched bool
	// RunID identifies the execution that produced the result, callers that shared an
	// execution share its RunID.
	RunID string
}

// Sessions hands out session handles, *session.Manager implements it.
type Sessions interface {
	Acquire(ctx context.Context) (session.Handle, error)
	Invalidate(handle session.Handle)
}

type Extractor interface {
	Extract(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error)
}

type Repository interface {
	Save(ctx context.Context, rec record.Canonical) error
	Load(ctx context.Context, orgID string) (record.Canonical, error)
}

// Mirror copies profile pictures, *mirror.Mirror implements it.
type Mirror interface {
	ProfilePicture(ctx context.Context, orgID, imageURL string) (string, error)
}

type Config struct {
	// MaxConcurrent bounds executions across organizations.
	MaxConcurrent int
	Retry         retry.Policy
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 2,
		Retry:         retry.Default(),
	}
}

type options struct {
	tel    telemetry.API
	enrich enrichment.Source
	mirror Mirror
}

type Option func(o *options)

func WithTelemetry(tel telemetry.API) Option {
	return func(o *options) {
		o.tel = tel
	}
}

func WithEnrichment(source enrichment.Source) Option {
	return func(o *options) {
		o.enrich = source
	}
}

// WithMirror enables profile picture mirroring, a nil mirror leaves it disabled.
func WithMirror(mirror Mirror) Option {
	return func(o *options) {
		o.mirror = mirror
	}
}

type Service struct {
	sessions  Sessions
	extractor Extractor
	repo      Repository
	cache     cache.Cache
	config    Config

	tel    telemetry.API
	enrich enrichment.Source
	mirror Mirror

	group *coalescer
	sem   *semaphore.Weighted
}

func New(sessions Sessions, extractor Extractor, repo Repository, c cache.Cache, config Config, opts ...Option) *Service {
	assert.NotNil(sessions, "sessions")
	assert.NotNil(extractor, "extractor")
	assert.NotNil(repo, "repository")
	assert.NotNil(c, "cache")

	o := options{
		tel:    telemetry.SlogAPI{},
		enrich: enrichment.Disabled{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultConfig().Retry
	}

	s := &Service{
		sessions:  sessions,
		extractor: extractor,
		repo:      repo,
		cache:     c,
		config:    config,
		tel:       telemetry.NewScopedAPI("ingest", o.tel),
		enrich:    o.enrich,
		mirror:    o.mirror,
		group:     newCoalescer(),
		sem:       semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
	s.config.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.tel.ReportDebug(report_retry, attempt, delay.String(), err)
	}
	return s
}

// GetOrRefresh returns the record of orgIdentifier, from the cache unless forceRefresh
// is set. Concurrent calls for the same organization share one execution.
func (s *Service) GetOrRefresh(ctx context.Context, orgIdentifier string, forceRefresh bool) (Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "GetOrRefresh")
	defer span.End()

	res, err := s.getOrRefresh(ctx, orgIdentifier, forceRefresh)
	span.SetAttributes(
		attribute.String("outcome", res.Outcome.String()),
		attribute.Bool("force_refresh", forceRefresh),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingestion failed")
	}
	recordOutcome(ctx, res.Outcome, err, start)
	return res, err
}

func (s *Service) getOrRefresh(ctx context.Context, orgIdentifier string, forceRefresh bool) (Result, error) {
	orgID, err := record.NormalizeOrgID(orgIdentifier)
	if err != nil {
		return Result{}, err
	}

	if !forceRefresh {
		rec, ok, err := s.cache.Get(ctx, cache.Key(orgID))
		switch {
		case err != nil:
			recordCache(ctx, "error")
			s.tel.ReportWarning(report_cache, fmt.Errorf("get %s: %w", orgID, err))
		case ok:
			recordCache(ctx, "hit")
			return Result{
				Outcome:  OutcomeCached,
				Record:   &rec,
				Missing:  rec.Missing,
				Enriched: rec.Enriched,
				RunID:    uuid.NewString(),
			}, nil
		default:
			recordCache(ctx, "miss")
		}
	}

	return s.group.do(ctx, orgID, func(ctx context.Context) (Result, error) {
		return s.refresh(ctx, orgID)
	})
}

func (s *Service) refresh(ctx context.Context, orgID string) (Result, error) {
	ctx, span := tracer.Start(ctx, "refresh")
	defer span.End()

	runID := uuid.NewString()
	span.SetAttributes(attribute.String("org_id", orgID), attribute.String("run_id", runID))
	log := slog.With("org_id", orgID, "run_id", runID)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer s.sem.Release(1)

	snapshot, err := s.extract(ctx, orgID)
	if err != nil {
		if failure.IsAuthentication(err) {
			return s.degraded(ctx, orgID, runID, err)
		}
		return Result{}, err
	}

	var secondary *record.Partial
	partial, err := s.enrich.Lookup(ctx, orgID)
	switch {
	case err == nil:
		secondary = &partial
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	default:
		s.tel.ReportDebug(report_enrichment, orgID, err)
	}
	canonical := record.Merge(snapshot, secondary)
	s.mirrorPicture(ctx, &canonical)

	if err := s.repo.Save(ctx, canonical); err != nil {
		s.tel.ReportBroken(report_persist, fmt.Errorf("save %s: %w", orgID, err))
		return Result{}, err
	}
	if err := s.cache.Set(ctx, cache.Key(orgID), canonical); err != nil {
		s.tel.ReportWarning(report_cache, fmt.Errorf("set %s: %w", orgID, err))
	}

	log.InfoContext(ctx, "ingested organization",
		"posts", len(canonical.Posts),
		"people", len(canonical.People),
		"missing", len(canonical.Missing),
		"enriched", canonical.Enriched,
	)
	return Result{
		Outcome:  OutcomeFresh,
		Record:   &canonical,
		Missing:  canonical.Missing,
		Enriched: canonical.Enriched,
		RunID:    runID,
	}, nil
}

// extract runs the extractor under the retry policy. A session the target rejects is
// invalidated and renewed once, a second rejection means renewal does not help.
func (s *Service) extract(ctx context.Context, orgID string) (record.Snapshot, error) {
	handle, err := s.sessions.Acquire(ctx)
	if err != nil {
		return record.Snapshot{}, err
	}
	snapshot, err := s.extractRetrying(ctx, handle, orgID)
	if !errors.Is(err, failure.ErrSessionInvalid) {
		return snapshot, err
	}

	slog.InfoContext(ctx, "session was rejected, renewing", "org_id", orgID, "session", handle)
	s.sessions.Invalidate(handle)
	handle, err = s.sessions.Acquire(ctx)
	if err != nil {
		return record.Snapshot{}, err
	}
	snapshot, err = s.extractRetrying(ctx, handle, orgID)
	if errors.Is(err, failure.ErrSessionInvalid) {
		s.sessions.Invalidate(handle)
		return record.Snapshot{}, failure.Wrap(
			failure.KindAuthenticationIncomplete,
			"ingest.extract",
			err,
			"renewed session was rejected as well",
		)
	}
	return snapshot, err
}

func (s *Service) extractRetrying(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
	return retry.DoValue(ctx, s.config.Retry, func(ctx context.Context) (record.Snapshot, error) {
		attemptCounter.Add(ctx, 1)
		return s.extractor.Extract(ctx, handle, orgID)
	})
}

// degraded serves the persisted record when no session can be produced. Nothing is
// written in this mode.
func (s *Service) degraded(ctx context.Context, orgID, runID string, cause error) (Result, error) {
	s.tel.ReportWarning(report_degraded, orgID, cause)

	rec, err := s.repo.Load(ctx, orgID)
	if err != nil {
		if errors.Is(err, failure.ErrNotFound) {
			return Result{Outcome: OutcomeDegraded, RunID: runID}, failure.Wrap(
				failure.KindNotFound,
				"ingest.degraded",
				errors.Join(err, cause),
				fmt.Sprintf("no session and no persisted record of %s", orgID),
			)
		}
		return Result{Outcome: OutcomeDegraded, RunID: runID}, err
	}
	return Result{
		Outcome:  OutcomeDegraded,
		Record:   &rec,
		Missing:  rec.Missing,
		Enriched: rec.Enriched,
		RunID:    runID,
	}, nil
}

func (s *Service) mirrorPicture(ctx context.Context, rec *record.Canonical) {
	picture := rec.Organization.ProfilePicture
	if s.mirror == nil || picture == nil || *picture == "" {
		return
	}
	mirrored, err := s.mirror.ProfilePicture(ctx, rec.Organization.OrgID, *picture)
	if err != nil {
		slog.WarnContext(ctx, "keeping original profile picture url", "org_id", rec.Organization.OrgID, "err", err)
		return
	}
	rec.Organization.ProfilePicture = &mirrored
}

// Invalidate drops the cached record of orgIdentifier.
func (s *Service) Invalidate(ctx context.Context, orgIdentifier string) error {
	orgID, err := record.NormalizeOrgID(orgIdentifier)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cache.Key(orgID))
}

type Refresh struct {
	OrgID  string
	Result Result
	Err    error
}

// RefreshAll force refreshes every id, at most limit at a time. One failing id does not
// stop the others, the returned error joins all failures.
func (s *Service) RefreshAll(ctx context.Context, ids []string, limit int) ([]Refresh, error) {
	ctx, span := tracer.Start(ctx, "RefreshAll")
	defer span.End()

	if limit <= 0 {
		limit = s.config.MaxConcurrent
	}
	refreshes := make([]Refresh, len(ids))
	g := errgroup.Group{}
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.GetOrRefresh(ctx, id, true)
			refreshes[i] = Refresh{OrgID: id, Result: res, Err: err}
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, r := range refreshes {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.OrgID, r.Err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "some refreshes failed")
	}
	return refreshes, err
}
