package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"insights-backend/internal/cache"
	"insights-backend/internal/components/chrono"
	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/failure"
	"insights-backend/internal/record"
	"insights-backend/internal/retry"
	"insights-backend/internal/session"
	"insights-backend/internal/store"
	"insights-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeSessions struct {
	mu            sync.Mutex
	err           error
	generation    uint64
	valid         bool
	acquires      int
	invalidations []uint64
}

func (f *fakeSessions) Acquire(ctx context.Context) (session.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	if f.err != nil {
		return session.Handle{}, f.err
	}
	if !f.valid {
		f.generation++
		f.valid = true
	}
	return session.Handle{Generation: f.generation, AcquiredAt: now}, nil
}

func (f *fakeSessions) Invalidate(handle session.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations = append(f.invalidations, handle.Generation)
	if handle.Generation == f.generation {
		f.valid = false
	}
}

func (f *fakeSessions) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeExtractor struct {
	calls   atomic.Int64
	extract func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
	f.calls.Add(1)
	if f.extract == nil {
		return snapshot(orgID), nil
	}
	return f.extract(ctx, handle, orgID)
}

func snapshot(orgID string) record.Snapshot {
	missing := record.Missing{}
	missing.Add(record.SectionOrganization, record.FieldFounded, record.ReasonAbsent)
	return record.Snapshot{
		Organization: record.Organization{
			OrgID:          orgID,
			Name:           record.Ptr("Acme"),
			ProfilePicture: record.Ptr("https://media.example/acme.png"),
			Followers:      record.Ptr[int64](5000),
			LastScrapedAt:  now,
			UpdatedAt:      now,
		},
		Posts: []record.Post{{
			ExternalID: "7200000000000000001",
			Content:    record.Ptr("We are hiring"),
			ScrapedAt:  now,
			Comments:   []record.Comment{{AuthorName: record.Ptr("Jane"), Content: record.Ptr("Congrats!")}},
		}},
		People: []record.Person{{
			Name:       record.Ptr("Jane Doe"),
			ProfileURL: "https://www.linkedin.com/in/jane-doe/",
			ScrapedAt:  now,
		}},
		Missing: missing,
	}
}

type fakeEnrichment struct {
	partial record.Partial
	err     error
}

func (f fakeEnrichment) Lookup(ctx context.Context, orgID string) (record.Partial, error) {
	return f.partial, f.err
}

type fakeMirror struct {
	err error
}

func (f fakeMirror) ProfilePicture(ctx context.Context, orgID, imageURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://bucket.example/profile_pictures/" + orgID + ".png", nil
}

type brokenCache struct {
	cache.Cache
}

func (brokenCache) Get(ctx context.Context, key string) (record.Canonical, bool, error) {
	return record.Canonical{}, false, errors.New("cache is down")
}

func (brokenCache) Set(ctx context.Context, key string, rec record.Canonical) error {
	return errors.New("cache is down")
}

type harness struct {
	sessions  *fakeSessions
	extractor *fakeExtractor
	store     *store.Store
	cache     cache.Cache
	recorder  *telemetry.Recorder
	service   *Service
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Factor: 2}
}

func newHarness(t *testing.T, config Config, opts ...Option) harness {
	t.Helper()
	db := testutil.SetupDB(t, "ingest")
	h := harness{
		sessions:  &fakeSessions{},
		extractor: &fakeExtractor{},
		store:     store.New(db.DB, store.WithTime(chrono.NewFakeTime(now))),
		cache:     cache.NewMemory(time.Hour),
		recorder:  &telemetry.Recorder{},
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = fastPolicy()
	}
	h.service = New(
		h.sessions, h.extractor, h.store, h.cache, config,
		append([]Option{WithTelemetry(h.recorder)}, opts...)...,
	)
	return h
}

func TestFreshThenCached(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	res, err := h.service.GetOrRefresh(ctx, "Acme", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, res.Outcome)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, "acme", res.Record.Organization.OrgID)
	require.True(t, res.Missing.Has(record.SectionOrganization, record.FieldFounded))
	require.False(t, res.Enriched)

	persisted, err := h.store.Load(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, persisted.Posts, 1)
	require.Len(t, persisted.Posts[0].Comments, 1)
	require.Len(t, persisted.People, 1)

	cached, err := h.service.GetOrRefresh(ctx, "https://www.linkedin.com/company/acme/about/", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeCached, cached.Outcome)
	require.Equal(t, res.Record.Organization.Name, cached.Record.Organization.Name)
	require.NotEqual(t, res.RunID, cached.RunID)

	require.Equal(t, int64(1), h.extractor.calls.Load())
	require.Equal(t, 1, h.sessions.acquires, "a cache hit does no session work")
}

func TestForceRefreshBypassesCache(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.service.GetOrRefresh(ctx, "acme", false)
	require.NoError(t, err)
	res, err := h.service.GetOrRefresh(ctx, "acme", true)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, res.Outcome)
	require.Equal(t, int64(2), h.extractor.calls.Load())
}

func TestInvalidIdentifier(t *testing.T) {
	h := newHarness(t, Config{})
	for _, id := range []string{"", "   ", "https://www.linkedin.com/in/jane-doe/"} {
		_, err := h.service.GetOrRefresh(context.Background(), id, false)
		require.Error(t, err, id)
	}
	require.Equal(t, int64(0), h.extractor.calls.Load())
}

func TestEnrichment(t *testing.T) {
	h := newHarness(t, Config{}, WithEnrichment(fakeEnrichment{partial: record.Partial{
		Name:    record.Ptr("Acme Corporation"),
		Founded: record.Ptr("1949"),
	}}))

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.NoError(t, err)
	require.True(t, res.Enriched)
	require.Equal(t, "Acme", *res.Record.Organization.Name, "the extractor wins")
	require.Equal(t, "1949", *res.Record.Organization.Founded)
	require.False(t, res.Missing.Has(record.SectionOrganization, record.FieldFounded))
}

func TestEnrichmentFillsFollowers(t *testing.T) {
	h := newHarness(t, Config{}, WithEnrichment(fakeEnrichment{partial: record.Partial{
		Followers: record.Ptr[int64](5000),
	}}))
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		snap := snapshot(orgID)
		snap.Organization.Followers = nil
		snap.Missing.Add(record.SectionOrganization, record.FieldFollowers, record.ReasonAbsent)
		snap.Posts = append(snap.Posts, record.Post{
			ExternalID: "7200000000000000002",
			Content:    record.Ptr("Quarterly update"),
			ScrapedAt:  now,
		})
		return snap, nil
	}
	ctx := context.Background()

	res, err := h.service.GetOrRefresh(ctx, "acme", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, res.Outcome)
	require.True(t, res.Enriched)
	require.Equal(t, int64(5000), *res.Record.Organization.Followers)
	require.False(t, res.Missing.Has(record.SectionOrganization, record.FieldFollowers))

	persisted, err := h.store.Load(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, int64(5000), *persisted.Organization.Followers)
	require.True(t, persisted.Enriched)

	counts, err := h.store.Counts(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, int64(2), counts.Posts)
	require.Equal(t, int64(1), counts.Comments)
	require.Equal(t, int64(1), counts.People)

	cached, ok, err := h.cache.Get(ctx, cache.Key("acme"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5000), *cached.Organization.Followers)
	require.Len(t, cached.Posts, 2)
}

func TestEnrichmentUnavailableIsSilent(t *testing.T) {
	unavailable := failure.New(failure.KindEnrichmentUnavailable, "fake.lookup", "quota")
	h := newHarness(t, Config{}, WithEnrichment(fakeEnrichment{err: unavailable}))

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, res.Outcome)
	require.False(t, res.Enriched)
	require.Empty(t, h.recorder.Reports("warning", report_enrichment))
	require.Empty(t, h.recorder.Reports("broken", ""))
}

func TestTransientErrorsAreRetried(t *testing.T) {
	h := newHarness(t, Config{})
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		if h.extractor.calls.Load() < 3 {
			return record.Snapshot{}, failure.New(failure.KindTransientNetwork, "fake.extract", "reset")
		}
		return snapshot(orgID), nil
	}

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, res.Outcome)
	require.Equal(t, int64(3), h.extractor.calls.Load())
	require.Len(t, h.recorder.Reports("debug", report_retry), 2)
}

func TestTransientErrorsExhaustAttempts(t *testing.T) {
	h := newHarness(t, Config{})
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		return record.Snapshot{}, failure.New(failure.KindTransientNetwork, "fake.extract", "reset")
	}

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.ErrorIs(t, err, failure.ErrTransientNetwork)
	require.Equal(t, OutcomeNone, res.Outcome)
	require.Equal(t, int64(3), h.extractor.calls.Load())

	_, err = h.store.Load(context.Background(), "acme")
	require.ErrorIs(t, err, failure.ErrNotFound)
}

func TestNotFoundIsNotRetried(t *testing.T) {
	h := newHarness(t, Config{})
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		return record.Snapshot{}, failure.New(failure.KindNotFound, "fake.extract", "no such page")
	}

	_, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.ErrorIs(t, err, failure.ErrNotFound)
	require.Equal(t, int64(1), h.extractor.calls.Load())
}

func TestDegradedModeServesPersistedRecord(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.service.GetOrRefresh(ctx, "acme", false)
	require.NoError(t, err)
	require.NoError(t, h.service.Invalidate(ctx, "acme"))

	h.sessions.setErr(failure.New(failure.KindInvalidCredentials, "fake.acquire", "rejected"))
	res, err := h.service.GetOrRefresh(ctx, "acme", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeDegraded, res.Outcome)
	require.Equal(t, "Acme", *res.Record.Organization.Name)
	require.Len(t, res.Record.Posts, 1)
	require.Equal(t, int64(1), h.extractor.calls.Load())

	// degraded results are not cached
	_, ok, err := h.cache.Get(ctx, cache.Key("acme"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDegradedModeWithoutPersistedRecord(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.setErr(failure.New(failure.KindAuthenticationIncomplete, "fake.acquire", "verification timed out"))

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.ErrorIs(t, err, failure.ErrNotFound)
	require.Equal(t, OutcomeDegraded, res.Outcome)
	require.Nil(t, res.Record)
	require.Equal(t, int64(0), h.extractor.calls.Load())
	require.Len(t, h.recorder.Reports("warning", report_degraded), 1)

	_, err = h.store.Counts(context.Background(), "acme")
	require.ErrorIs(t, err, failure.ErrNotFound)
	ids, err := h.store.OrgIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)

	_, ok, err := h.cache.Get(context.Background(), cache.Key("acme"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOtherSessionErrorsPropagate(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.setErr(failure.New(failure.KindTransientNetwork, "fake.acquire", "timeout"))

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.ErrorIs(t, err, failure.ErrTransientNetwork)
	require.Equal(t, OutcomeNone, res.Outcome)
}

func TestRejectedSessionIsRenewedOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		if handle.Generation == 1 {
			return record.Snapshot{}, failure.New(failure.KindSessionInvalid, "fake.extract", "authwall")
		}
		return snapshot(orgID), nil
	}

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, res.Outcome)
	require.Equal(t, []uint64{1}, h.sessions.invalidations)
	require.Equal(t, int64(2), h.extractor.calls.Load())
}

func TestRejectedRenewedSessionDegrades(t *testing.T) {
	h := newHarness(t, Config{})
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		return record.Snapshot{}, failure.New(failure.KindSessionInvalid, "fake.extract", "authwall")
	}

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.ErrorIs(t, err, failure.ErrNotFound)
	require.Equal(t, OutcomeDegraded, res.Outcome)
	require.Equal(t, []uint64{1, 2}, h.sessions.invalidations)
	require.Equal(t, int64(2), h.extractor.calls.Load())
}

func TestMirrorProfilePicture(t *testing.T) {
	h := newHarness(t, Config{}, WithMirror(fakeMirror{}))
	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Equal(t, "https://bucket.example/profile_pictures/acme.png", *res.Record.Organization.ProfilePicture)

	h = newHarness(t, Config{}, WithMirror(fakeMirror{err: errors.New("bucket is gone")}))
	res, err = h.service.GetOrRefresh(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Equal(t, "https://media.example/acme.png", *res.Record.Organization.ProfilePicture)
}

func TestCacheErrorsAreMisses(t *testing.T) {
	h := newHarness(t, Config{})
	h.service.cache = brokenCache{Cache: h.cache}

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, res.Outcome)
	require.Len(t, h.recorder.Reports("warning", report_cache), 2)
}

func TestConcurrentCallsShareOneExecution(t *testing.T) {
	h := newHarness(t, Config{})
	release := make(chan struct{})
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		<-release
		return snapshot(orgID), nil
	}

	const callers = 10
	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.service.GetOrRefresh(context.Background(), "acme", true)
		}()
	}
	require.Eventually(t, func() bool { return h.extractor.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].RunID, results[i].RunID)
	}
	require.Equal(t, int64(1), h.extractor.calls.Load())
	require.Equal(t, 0, h.service.group.inflight())
}

func TestCancelledWaiterDoesNotWedgeLaterCalls(t *testing.T) {
	h := newHarness(t, Config{})
	var cancelled atomic.Bool
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		if h.extractor.calls.Load() == 1 {
			<-ctx.Done()
			cancelled.Store(true)
			return record.Snapshot{}, ctx.Err()
		}
		return snapshot(orgID), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.service.GetOrRefresh(ctx, "acme", false)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.extractor.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}
	require.Eventually(t, cancelled.Load, 2*time.Second, time.Millisecond, "the execution is cancelled with its last waiter")

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, res.Outcome)
}

func TestCancelledExecutionIsNotOverlapped(t *testing.T) {
	h := newHarness(t, Config{})
	release := make(chan struct{})
	var running, peak atomic.Int64
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		n := running.Add(1)
		defer running.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		if h.extractor.calls.Load() == 1 {
			// ignores cancellation until released
			<-release
		}
		return snapshot(orgID), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := h.service.GetOrRefresh(ctx, "acme", true)
		first <- err
	}()
	require.Eventually(t, func() bool { return h.extractor.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-first, context.Canceled)
	require.Equal(t, 1, h.service.group.inflight(), "the cancelled execution still holds its key")

	second := make(chan Result, 1)
	go func() {
		res, err := h.service.GetOrRefresh(context.Background(), "acme", true)
		require.NoError(t, err)
		second <- res
	}()
	require.Never(t, func() bool { return h.extractor.calls.Load() > 1 }, 50*time.Millisecond, time.Millisecond)

	close(release)
	res := <-second
	require.Equal(t, OutcomeFresh, res.Outcome)
	require.Equal(t, int64(2), h.extractor.calls.Load())
	require.Equal(t, int64(1), peak.Load())
	require.Equal(t, 0, h.service.group.inflight())
}

func TestRemainingWaiterKeepsExecution(t *testing.T) {
	h := newHarness(t, Config{})
	release := make(chan struct{})
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		select {
		case <-release:
			return snapshot(orgID), nil
		case <-ctx.Done():
			return record.Snapshot{}, ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := h.service.GetOrRefresh(ctx, "acme", false)
		first <- err
	}()
	require.Eventually(t, func() bool { return h.extractor.calls.Load() == 1 }, 2*time.Second, time.Millisecond)

	second := make(chan Result, 1)
	go func() {
		res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
		require.NoError(t, err)
		second <- res
	}()
	require.Eventually(t, func() bool {
		h.service.group.mu.Lock()
		defer h.service.group.mu.Unlock()
		cl, ok := h.service.group.calls["acme"]
		return ok && cl.waiters == 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)
	close(release)

	res := <-second
	require.Equal(t, OutcomeFresh, res.Outcome)
	require.Equal(t, int64(1), h.extractor.calls.Load())
}

func TestPanicReleasesCoalescingEntry(t *testing.T) {
	h := newHarness(t, Config{})
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		if h.extractor.calls.Load() == 1 {
			panic("selector exploded")
		}
		return snapshot(orgID), nil
	}

	_, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.ErrorContains(t, err, "selector exploded")
	require.Equal(t, 0, h.service.group.inflight())

	res, err := h.service.GetOrRefresh(context.Background(), "acme", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, res.Outcome)
}

func TestMaxConcurrentExecutions(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrent: 1})
	var running, peak atomic.Int64
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return snapshot(orgID), nil
	}

	refreshes, err := h.service.RefreshAll(context.Background(), []string{"acme", "initech", "globex"}, 3)
	require.NoError(t, err)
	require.Len(t, refreshes, 3)
	require.Equal(t, int64(1), peak.Load())
}

func TestRefreshAll(t *testing.T) {
	h := newHarness(t, Config{})
	h.extractor.extract = func(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
		if orgID == "initech" {
			return record.Snapshot{}, failure.New(failure.KindNotFound, "fake.extract", "no such page")
		}
		return snapshot(orgID), nil
	}

	ids := []string{"acme", "initech", "globex"}
	refreshes, err := h.service.RefreshAll(context.Background(), ids, 0)
	require.ErrorIs(t, err, failure.ErrNotFound)
	require.ErrorContains(t, err, "initech")
	for i, r := range refreshes {
		require.Equal(t, ids[i], r.OrgID)
		if r.OrgID == "initech" {
			require.Error(t, r.Err)
			continue
		}
		require.NoError(t, r.Err)
		require.Equal(t, OutcomeFresh, r.Result.Outcome)
	}

	orgIDs, err := h.store.OrgIDs(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"acme", "globex"}, orgIDs)
}

func TestOutcomeString(t *testing.T) {
	for outcome, want := range map[Outcome]string{
		OutcomeNone:     "none",
		OutcomeFresh:    "fresh",
		OutcomeCached:   "cached",
		OutcomeDegraded: "degraded",
	} {
		require.Equal(t, want, outcome.String(), fmt.Sprint(int(outcome)))
	}
}
