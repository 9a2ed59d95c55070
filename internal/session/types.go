package session

import (
	"context"
	"fmt"
	"time"

	"insights-backend/internal/credstore"
)

type State int

const (
	StateNoSession State = iota
	StateAuthenticating
	StateAwaitingVerification
	StateAuthenticated
	StateFailed
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateAuthenticating:
		return "authenticating"
	case StateAwaitingVerification:
		return "awaiting_verification"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	case StateExpired:
		return "expired"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Handle is a usable session. Generation increases on every renewal, Invalidate uses it
// to ignore reports about sessions that were already replaced.
type Handle struct {
	Generation uint64
	Cookies    []credstore.Cookie
	AcquiredAt time.Time
}

// String never includes cookie values.
func (h Handle) String() string {
	return fmt.Sprintf("session(generation=%d, cookies=%d)", h.Generation, len(h.Cookies))
}

// Challenge is a pending interactive verification. It carries everything needed to
// continue the login that produced it, including the cookies of that login attempt.
type Challenge struct {
	URL       string
	Action    string
	Fields    map[string]string
	Cookies   []credstore.Cookie
	StartedAt time.Time
}

// LoginResult is either a set of session cookies or a challenge.
type LoginResult struct {
	Cookies   []credstore.Cookie
	Challenge *Challenge
}

// Authenticator talks to the target on behalf of the session manager.
type Authenticator interface {
	// Probe reports whether cookies still authenticate.
	Probe(ctx context.Context, cookies []credstore.Cookie) (bool, error)
	// Login fails with failure.ErrInvalidCredentials when the target rejects the
	// credentials.
	Login(ctx context.Context, username, password string) (LoginResult, error)
	// SubmitVerification completes a challenge with a one-time code.
	SubmitVerification(ctx context.Context, challenge Challenge, code string) ([]credstore.Cookie, error)
	// CheckChallenge reports whether the challenge was resolved out of band (for example
	// approved in the mobile app) and returns the session cookies when it was.
	CheckChallenge(ctx context.Context, challenge Challenge) ([]credstore.Cookie, bool, error)
}

// Credentials are the account used for login, an empty username disables login so only
// stored or supplied cookies are used.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Credentials) String() string {
	return fmt.Sprintf("credentials(%s)", c.Username)
}

// Status is a snapshot of the manager for diagnostics.
type Status struct {
	State               State
	Generation          uint64
	AcquiredAt          time.Time
	FailedAt            time.Time
	LastFailure         string
	VerificationPending bool
	ChallengeStartedAt  time.Time
}
