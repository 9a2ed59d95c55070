// Package session owns the authenticated session with the target: reusing stored
// cookies, logging in, waiting for verification and remembering failures that need an
// operator.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"insights-backend/internal/assert"
	"insights-backend/internal/components/chrono"
	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/credstore"
	"insights-backend/internal/failure"
	"insights-backend/internal/notify"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("insights.internal.session")

const (
	report_renew        = "renew"
	report_save         = "save-artifact"
	report_load         = "load-artifact"
	report_notify       = "notify"
	report_verification = "verification"
)

var ErrNoPendingVerification = errors.New("no verification is pending")

type Config struct {
	Credentials Credentials
	// StepTimeout bounds every single network step of a renewal.
	StepTimeout              time.Duration
	VerificationPollInterval time.Duration
	VerificationTimeout      time.Duration
	// FailureCooldown is how long a Failed state is kept before a renewal is attempted
	// again on its own, 0 keeps it until an operator acts.
	FailureCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		StepTimeout:              30 * time.Second,
		VerificationPollInterval: 3 * time.Second,
		VerificationTimeout:      2 * time.Minute,
		FailureCooldown:          30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StepTimeout <= 0 {
		c.StepTimeout = d.StepTimeout
	}
	if c.VerificationPollInterval <= 0 {
		c.VerificationPollInterval = d.VerificationPollInterval
	}
	if c.VerificationTimeout <= 0 {
		c.VerificationTimeout = d.VerificationTimeout
	}
	if c.FailureCooldown < 0 {
		c.FailureCooldown = 0
	}
	return c
}

type options struct {
	tel      telemetry.API
	time     chrono.TimeAPI
	notifier notify.Notifier
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

func WithNotifier(notifier notify.Notifier) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

// Manager hands out session handles. Concurrent callers that need a renewal share a
// single one, the fast path only takes a read lock.
type Manager struct {
	auth   Authenticator
	store  credstore.Store
	config Config
	tel    telemetry.API
	time   chrono.TimeAPI
	notify notify.Notifier

	// ctx is the parent of every renewal, renewals outlive the callers that started
	// them and stop when the manager is closed.
	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group
	codes  chan string

	mu         sync.RWMutex
	state      State
	handle     Handle
	generation uint64
	failedAt   time.Time
	lastErr    error
	challenge  *Challenge
}

func NewManager(auth Authenticator, store credstore.Store, config Config, opts ...Option) *Manager {
	assert.NotNil(auth, "authenticator")
	assert.NotNil(store, "credential store")

	o := options{
		tel:      telemetry.SlogAPI{},
		time:     chrono.StandardTime{},
		notifier: notify.Log{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		auth:   auth,
		store:  store,
		config: config.withDefaults(),
		tel:    telemetry.NewScopedAPI("session", o.tel),
		time:   o.time,
		notify: o.notifier,
		ctx:    ctx,
		cancel: cancel,
		codes:  make(chan string, 1),
		state:  StateNoSession,
	}
}

// Close stops any renewal in progress.
func (m *Manager) Close() {
	m.cancel()
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		State:               m.state,
		Generation:          m.generation,
		AcquiredAt:          m.handle.AcquiredAt,
		FailedAt:            m.failedAt,
		VerificationPending: m.challenge != nil,
	}
	if m.lastErr != nil {
		status.LastFailure = failure.KindOf(m.lastErr).String()
	}
	if m.challenge != nil {
		status.ChallengeStartedAt = m.challenge.StartedAt
	}
	return status
}

// Acquire returns a usable session handle, renewing the session when needed.
//
// A Failed session is returned as its recorded failure without any network activity
// until Reset or SupplyCookies is called, a newer artifact is stored or the cooldown
// elapses.
func (m *Manager) Acquire(ctx context.Context) (Handle, error) {
	m.mu.RLock()
	if m.state == StateAuthenticated {
		h := m.handle
		m.mu.RUnlock()
		return h, nil
	}
	m.mu.RUnlock()

	if err := m.checkFailed(ctx); err != nil {
		return Handle{}, err
	}

	// the renewal keeps the first caller's trace but not its cancellation
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan("renew", func() (any, error) {
		return m.renew(detached)
	})
	select {
	case <-ctx.Done():
		return Handle{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Handle{}, res.Err
		}
		return res.Val.(Handle), nil
	}
}

func (m *Manager) checkFailed(ctx context.Context) error {
	m.mu.RLock()
	state, failedAt, lastErr := m.state, m.failedAt, m.lastErr
	m.mu.RUnlock()
	if state != StateFailed {
		return nil
	}

	now := m.time.Now()
	if m.config.FailureCooldown > 0 && now.Sub(failedAt) >= m.config.FailureCooldown {
		m.clearFailed("cooldown elapsed")
		return nil
	}
	artifact, err := m.store.Load(ctx)
	if err == nil && artifact.CapturedAt.After(failedAt) && artifact.Validate(now) == nil {
		m.clearFailed("newer credential artifact")
		return nil
	}
	return lastErr
}

func (m *Manager) clearFailed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateFailed {
		return
	}
	m.state = StateNoSession
	m.lastErr = nil
	slog.Info("cleared failed session", "reason", reason)
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *Manager) authenticated(cookies []credstore.Cookie) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.handle = Handle{
		Generation: m.generation,
		Cookies:    append([]credstore.Cookie(nil), cookies...),
		AcquiredAt: m.time.Now(),
	}
	m.state = StateAuthenticated
	m.lastErr = nil
	return m.handle
}

// fail records a failed renewal. Only failures that need an operator are sticky, the
// rest leave the session empty so the next Acquire tries again.
func (m *Manager) fail(err error) error {
	sticky := false
	switch failure.KindOf(err) {
	case failure.KindInvalidCredentials, failure.KindAuthenticationIncomplete:
		sticky = !errors.Is(err, context.Canceled)
	}

	m.mu.Lock()
	if sticky {
		m.state = StateFailed
		m.failedAt = m.time.Now()
		m.lastErr = err
	} else {
		m.state = StateNoSession
	}
	m.mu.Unlock()

	if sticky {
		m.tel.ReportBroken(report_renew, err)
	} else if !errors.Is(err, context.Canceled) {
		m.tel.ReportWarning(report_renew, err)
	}
	return err
}

func (m *Manager) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.config.StepTimeout)
}

func (m *Manager) renew(ctx context.Context) (Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	ctx, span := tracer.Start(ctx, "renew")
	defer span.End()

	m.setState(StateAuthenticating)
	handle, err := m.renewSteps(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "renewal failed")
		return Handle{}, m.fail(err)
	}
	span.SetAttributes(attribute.Int64("generation", int64(handle.Generation)))
	return handle, nil
}

func (m *Manager) renewSteps(ctx context.Context) (Handle, error) {
	artifact, err := m.store.Load(ctx)
	switch {
	case err == nil:
		handle, ok, err := m.tryArtifact(ctx, artifact)
		if err != nil {
			return Handle{}, err
		}
		if ok {
			return handle, nil
		}
	case errors.Is(err, credstore.ErrNoArtifact):
	default:
		m.tel.ReportWarning(report_load, err)
	}

	if m.config.Credentials.Username == "" {
		return Handle{}, failure.New(
			failure.KindInvalidCredentials,
			"session.renew",
			"no usable stored session and no credentials configured",
		)
	}

	stepCtx, cancel := m.step(ctx)
	result, err := m.auth.Login(stepCtx, m.config.Credentials.Username, m.config.Credentials.Password)
	cancel()
	if err != nil {
		return Handle{}, loginError(ctx, err)
	}
	if result.Challenge == nil {
		return m.persist(ctx, result.Cookies, credstore.SourceLogin), nil
	}
	return m.awaitVerification(ctx, *result.Challenge)
}

// loginError classifies a login failure, deadlines of a single step are network
// problems while the renewal itself being cancelled is not.
func loginError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) && failure.KindOf(err) != failure.KindTransientNetwork {
		return failure.Wrap(failure.KindTransientNetwork, "session.login", err, "login timed out")
	}
	return err
}

// tryArtifact probes a stored artifact, ok is false when it does not authenticate.
func (m *Manager) tryArtifact(ctx context.Context, artifact credstore.Artifact) (Handle, bool, error) {
	if err := artifact.Validate(m.time.Now()); err != nil {
		slog.DebugContext(ctx, "stored session is unusable", "err", err)
		return Handle{}, false, nil
	}

	stepCtx, cancel := m.step(ctx)
	defer cancel()
	valid, err := m.auth.Probe(stepCtx, artifact.Cookies)
	if err != nil {
		return Handle{}, false, loginError(ctx, err)
	}
	if !valid {
		slog.InfoContext(ctx, "stored session was rejected", "captured_at", artifact.CapturedAt)
		return Handle{}, false, nil
	}
	return m.authenticated(artifact.Cookies), true, nil
}

// persist saves the cookies of a fresh login and makes them the current session. A
// session that could not be saved is still used, the failure is reported.
func (m *Manager) persist(ctx context.Context, cookies []credstore.Cookie, source string) Handle {
	artifact := credstore.Artifact{
		Cookies:    cookies,
		CapturedAt: m.time.Now(),
		Source:     source,
	}
	if err := m.store.Save(ctx, artifact); err != nil {
		m.tel.ReportBroken(report_save, err)
	}
	return m.authenticated(cookies)
}

func (m *Manager) beginVerification(challenge *Challenge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateAwaitingVerification
	m.challenge = challenge
	// a code meant for an earlier challenge is useless now
	select {
	case <-m.codes:
	default:
	}
}

func (m *Manager) endVerification() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenge = nil
	if m.state == StateAwaitingVerification {
		m.state = StateAuthenticating
	}
}

func (m *Manager) awaitVerification(ctx context.Context, challenge Challenge) (Handle, error) {
	ctx, span := tracer.Start(ctx, "awaitVerification")
	defer span.End()

	if challenge.StartedAt.IsZero() {
		challenge.StartedAt = m.time.Now()
	}
	m.beginVerification(&challenge)
	defer m.endVerification()

	nonce, err := random.String(8)
	if err != nil {
		nonce = fmt.Sprint(challenge.StartedAt.Unix())
	}
	notice := notify.VerificationNotice{
		Account:   m.config.Credentials.Username,
		Page:      challengePage(challenge.URL),
		StartedAt: challenge.StartedAt,
		Deadline:  challenge.StartedAt.Add(m.config.VerificationTimeout),
		Nonce:     nonce,
	}
	if err := m.notify.VerificationRequired(ctx, notice); err != nil {
		m.tel.ReportWarning(report_notify, err)
	}
	slog.WarnContext(ctx, "waiting for verification", "attempt", notice.Nonce, "timeout", m.config.VerificationTimeout)

	deadline := m.time.After(m.config.VerificationTimeout)
	poll := m.time.After(m.config.VerificationPollInterval)

	for {
		select {
		case <-ctx.Done():
			return Handle{}, ctx.Err()
		case <-deadline:
			return Handle{}, failure.New(
				failure.KindAuthenticationIncomplete,
				"session.verification",
				fmt.Sprintf("verification was not completed within %s", m.config.VerificationTimeout),
			)
		case code := <-m.codes:
			stepCtx, cancel := m.step(ctx)
			cookies, err := m.auth.SubmitVerification(stepCtx, challenge, code)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return Handle{}, ctx.Err()
				}
				m.tel.ReportWarning(report_verification, err)
				continue
			}
			return m.persist(ctx, cookies, credstore.SourceLogin), nil
		case <-poll:
			poll = m.time.After(m.config.VerificationPollInterval)
			handle, ok, err := m.pollVerification(ctx, challenge)
			if err != nil {
				if ctx.Err() != nil {
					return Handle{}, ctx.Err()
				}
				slog.DebugContext(ctx, "verification poll failed", "err", err)
				continue
			}
			if ok {
				return handle, nil
			}
		}
	}
}

// pollVerification looks for a session obtained out of band: cookies stored after the
// challenge started, or the challenge having been approved in the app.
func (m *Manager) pollVerification(ctx context.Context, challenge Challenge) (Handle, bool, error) {
	artifact, err := m.store.Load(ctx)
	if err == nil && !artifact.CapturedAt.Before(challenge.StartedAt) {
		handle, ok, err := m.tryArtifact(ctx, artifact)
		if err != nil || ok {
			return handle, ok, err
		}
	}

	stepCtx, cancel := m.step(ctx)
	defer cancel()
	cookies, resolved, err := m.auth.CheckChallenge(stepCtx, challenge)
	if err != nil || !resolved {
		return Handle{}, false, err
	}
	return m.persist(ctx, cookies, credstore.SourceLogin), true, nil
}

// challengePage drops the query of a challenge url, it can carry tokens.
func challengePage(raw string) string {
	for i, c := range raw {
		if c == '?' || c == '#' {
			return raw[:i]
		}
	}
	return raw
}

// Invalidate marks the session expired if handle is still the current one. Reports
// about an older handle are ignored so many extractions hitting the same expiry cause a
// single renewal.
func (m *Manager) Invalidate(handle Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || handle.Generation != m.generation {
		return
	}
	m.state = StateExpired
	slog.Info("session invalidated", "generation", handle.Generation)
}

// SubmitVerificationCode hands a one-time code to the renewal waiting for one.
func (m *Manager) SubmitVerificationCode(code string) error {
	m.mu.RLock()
	pending := m.state == StateAwaitingVerification && m.challenge != nil
	m.mu.RUnlock()
	if !pending {
		return ErrNoPendingVerification
	}
	select {
	case m.codes <- code:
		return nil
	default:
		return fmt.Errorf("a verification code is already being processed")
	}
}

// SupplyCookies stores an operator supplied artifact and makes the next Acquire use it.
func (m *Manager) SupplyCookies(ctx context.Context, artifact credstore.Artifact) error {
	now := m.time.Now()
	if err := artifact.Validate(now); err != nil {
		return err
	}
	if artifact.CapturedAt.IsZero() {
		artifact.CapturedAt = now
	}
	if artifact.Source == "" {
		artifact.Source = credstore.SourceImport
	}
	if err := m.store.Save(ctx, artifact); err != nil {
		return fmt.Errorf("save supplied cookies: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateFailed, StateAuthenticated, StateExpired:
		m.state = StateNoSession
		m.lastErr = nil
	}
	return nil
}

// Reset clears a Failed state so the next Acquire renews.
func (m *Manager) Reset() {
	m.clearFailed("reset")
}
