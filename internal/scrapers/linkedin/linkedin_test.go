package linkedin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"insights-backend/internal/components/chrono"
	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/credstore"
	"insights-backend/internal/failure"
	"insights-backend/internal/record"
	"insights-backend/internal/session"
	tel "insights-backend/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeSite struct {
	server   *httptest.Server
	approved atomic.Bool
	requests atomic.Int64
}

func fixture(t testing.TB, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	f := &fakeSite{}

	authenticated := func(r *http.Request) bool {
		c, err := r.Cookie("li_at")
		return err == nil && (c.Value == "good" || c.Value == "fresh")
	}
	page := func(name string) http.HandlerFunc {
		data := fixture(t, name)
		return func(w http.ResponseWriter, r *http.Request) {
			if !authenticated(r) {
				http.Redirect(w, r, "/authwall?trk=org", http.StatusFound)
				return
			}
			w.Header().Set("content-type", "text/html; charset=utf-8")
			w.Write(data)
		}
	}
	setSession := func(w http.ResponseWriter) {
		http.SetCookie(w, &http.Cookie{Name: "li_at", Value: "fresh", Path: "/", HttpOnly: true})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/company/acme/about/", page("about.html"))
	mux.HandleFunc("/company/acme/posts/", page("posts.html"))
	mux.HandleFunc("/company/acme/people/", page("people.html"))
	mux.HandleFunc("/feed/update/urn:li:activity:7100000000000000001/", page("post_1.html"))
	mux.HandleFunc("/feed/update/urn:li:activity:7100000000000000002/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/company/beta/about/", page("about_partial.html"))
	mux.HandleFunc("/company/beta/posts/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>No posts yet</p></body></html>"))
	})
	mux.HandleFunc("/company/beta/people/", http.NotFound)
	mux.HandleFunc("/company/missing/about/", http.NotFound)
	mux.HandleFunc("/company/throttled/about/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(999)
	})
	mux.HandleFunc("/authwall", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><title>Sign Up | LinkedIn</title></html>"))
	})
	mux.HandleFunc("/feed/", func(w http.ResponseWriter, r *http.Request) {
		if !authenticated(r) {
			http.Redirect(w, r, "/uas/login?session_redirect=%2Ffeed%2F", http.StatusFound)
			return
		}
		w.Write([]byte("<html><body>feed</body></html>"))
	})
	mux.HandleFunc("/uas/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture(t, "login.html"))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture(t, "login.html"))
	})
	mux.HandleFunc("/checkpoint/lg/login-submit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.PostFormValue("loginCsrfParam") != "csrf-456" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch {
		case r.PostFormValue("session_key") == "ok@example.com" && r.PostFormValue("session_password") == "hunter2":
			setSession(w)
			http.Redirect(w, r, "/feed/", http.StatusFound)
		case r.PostFormValue("session_key") == "challenge@example.com":
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ajax:123", Path: "/"})
			http.Redirect(w, r, "/checkpoint/challenge/abc", http.StatusFound)
		default:
			w.Write(fixture(t, "login_error.html"))
		}
	})
	mux.HandleFunc("/checkpoint/challenge/abc", func(w http.ResponseWriter, r *http.Request) {
		if f.approved.Load() {
			setSession(w)
			http.Redirect(w, r, "/feed/", http.StatusFound)
			return
		}
		w.Write(fixture(t, "challenge.html"))
	})
	mux.HandleFunc("/checkpoint/challenge/verify", func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie("JSESSIONID")
		if err == nil && r.PostFormValue("pin") == "123456" && r.PostFormValue("challengeId") == "challenge-789" {
			setSession(w)
			http.Redirect(w, r, "/feed/", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/checkpoint/challenge/abc", http.StatusFound)
	})

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func newTestScraper(t *testing.T, site *fakeSite) (*Scraper, *telemetry.Recorder) {
	t.Helper()
	cleanup := tel.SetupForTesting(t, "test:linkedin")
	t.Cleanup(cleanup)

	recorder := &telemetry.Recorder{}
	scraper, err := New(
		Config{BaseURL: site.server.URL, RequestsPerSecond: 1000},
		WithTelemetry(recorder),
		WithTime(chrono.NewFakeTime(testNow)),
	)
	require.NoError(t, err)
	return scraper, recorder
}

func goodHandle() session.Handle {
	return session.Handle{
		Generation: 1,
		Cookies: []credstore.Cookie{
			{Name: "li_at", Value: "good", Domain: ".linkedin.com", Path: "/", Secure: true},
		},
	}
}

func TestExtractFullPages(t *testing.T) {
	site := newFakeSite(t)
	scraper, recorder := newTestScraper(t, site)

	snapshot, err := scraper.Extract(context.Background(), goodHandle(), "acme")
	require.NoError(t, err)

	expectedOrg := record.Organization{
		OrgID:          "acme",
		Name:           record.Ptr("Acme Analytics"),
		URL:            record.Ptr(site.server.URL + "/company/acme/"),
		LinkedinID:     record.Ptr("1035"),
		ProfilePicture: record.Ptr("https://media.example.com/acme.png"),
		Description:    record.Ptr("Acme builds analytics tools for growing teams."),
		Website:        record.Ptr("https://acme.example.com"),
		Industry:       record.Ptr("Software Development"),
		Location:       record.Ptr("San Francisco, CA"),
		HeadCount:      record.Ptr("51-200"),
		Followers:      record.Ptr(int64(12345)),
		Specialities:   []string{"SaaS", "Analytics", "Data Visualization"},
		Founded:        record.Ptr("2012"),
		CompanyType:    record.Ptr("Privately Held"),
		LastScrapedAt:  testNow,
	}
	if diff := cmp.Diff(expectedOrg, snapshot.Organization); diff != "" {
		t.Fatal(diff)
	}
	require.False(t, snapshot.Missing.Has(record.SectionOrganization, record.FieldFollowers))

	require.Len(t, snapshot.Posts, 2, "duplicate post should be collapsed")

	first := snapshot.Posts[0]
	require.Equal(t, "7100000000000000001", first.ExternalID)
	require.Equal(t, "We are hiring data engineers!", *first.Content)
	require.Equal(t, "Acme Analytics", *first.AuthorName)
	require.Equal(t, site.server.URL+"/company/acme/posts/", *first.AuthorURL)
	require.Equal(t, int64(1204), *first.Likes)
	require.Equal(t, int64(2), *first.CommentsCount)
	require.Equal(t, int64(15), *first.Shares)
	require.Equal(t, testNow.Add(-72*time.Hour), *first.CreatedAt)
	require.Equal(t, testNow, first.ScrapedAt)

	require.Len(t, first.Comments, 2)
	require.Equal(t, "Jane Doe", *first.Comments[0].AuthorName)
	require.Equal(t, site.server.URL+"/in/jane-doe/", *first.Comments[0].AuthorURL)
	require.Equal(t, "Congrats team!", *first.Comments[0].Content)
	require.Equal(t, int64(4), *first.Comments[0].Likes)
	require.Equal(t, testNow.Add(-24*time.Hour), *first.Comments[0].CreatedAt)
	require.Nil(t, first.Comments[1].CreatedAt)

	second := snapshot.Posts[1]
	require.Equal(t, "7100000000000000002", second.ExternalID)
	require.Nil(t, second.Likes, "unparsable reactions count")
	require.Equal(t, int64(0), *second.CommentsCount)
	require.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), *second.CreatedAt)
	require.Equal(t, site.server.URL+"/feed/update/urn:li:activity:7100000000000000002/", *second.PostURL)
	require.Empty(t, second.Comments)

	reason, ok := snapshot.Missing.Reason(record.SectionPosts, record.FieldLikes)
	require.True(t, ok)
	require.Equal(t, record.ReasonExtractionError, reason)
	reason, ok = snapshot.Missing.Reason(record.SectionPosts, record.FieldComments)
	require.True(t, ok, "comments of the second post could not be fetched")
	require.Equal(t, record.ReasonExtractionError, reason)
	require.NotEmpty(t, recorder.Reports("warning", report_field))

	require.Len(t, snapshot.People, 2)
	require.Equal(t, site.server.URL+"/in/jane-doe/", snapshot.People[0].ProfileURL)
	require.Equal(t, "Jane Doe", *snapshot.People[0].Name)
	require.Equal(t, "Head of Data", *snapshot.People[0].CurrentPosition)
	require.Equal(t, "Oakland, CA", *snapshot.People[0].Location)
	require.Nil(t, snapshot.People[1].CurrentPosition)
	require.True(t, snapshot.Missing.Has(record.SectionPeople, record.FieldCurrentPosition))
}

func TestExtractPartialPage(t *testing.T) {
	site := newFakeSite(t)
	scraper, _ := newTestScraper(t, site)

	snapshot, err := scraper.Extract(context.Background(), goodHandle(), "beta")
	require.NoError(t, err)

	require.Equal(t, "Beta Labs", *snapshot.Organization.Name)
	require.Equal(t, "Research", *snapshot.Organization.Industry)
	require.Nil(t, snapshot.Organization.Followers)
	require.Nil(t, snapshot.Organization.Founded)

	expectations := map[string]record.Reason{
		record.FieldFollowers:   record.ReasonAbsent,
		record.FieldWebsite:     record.ReasonAbsent,
		record.FieldLinkedinID:  record.ReasonAbsent,
		record.FieldFounded:     record.ReasonExtractionError,
		record.FieldDescription: record.ReasonAbsent,
	}
	for field, expected := range expectations {
		reason, ok := snapshot.Missing.Reason(record.SectionOrganization, field)
		require.True(t, ok, field)
		require.Equal(t, expected, reason, field)
	}

	require.Empty(t, snapshot.Posts)
	reason, ok := snapshot.Missing.Reason(record.SectionPosts, record.FieldPostList)
	require.True(t, ok)
	require.Equal(t, record.ReasonAbsent, reason)

	require.Empty(t, snapshot.People)
	reason, ok = snapshot.Missing.Reason(record.SectionPeople, record.FieldPeopleList)
	require.True(t, ok)
	require.Equal(t, record.ReasonExtractionError, reason)
}

func TestExtractFailures(t *testing.T) {
	site := newFakeSite(t)
	scraper, _ := newTestScraper(t, site)
	ctx := context.Background()

	expired := session.Handle{Cookies: []credstore.Cookie{{Name: "li_at", Value: "stale"}}}
	_, err := scraper.Extract(ctx, expired, "acme")
	require.ErrorIs(t, err, failure.ErrSessionInvalid)

	_, err = scraper.Extract(ctx, goodHandle(), "missing")
	require.ErrorIs(t, err, failure.ErrNotFound)

	_, err = scraper.Extract(ctx, goodHandle(), "throttled")
	require.ErrorIs(t, err, failure.ErrTransientNetwork)
	require.True(t, failure.IsTransient(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = scraper.Extract(cancelled, goodHandle(), "acme")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, failure.IsTransient(err))
}

func TestCurrentPosition(t *testing.T) {
	cases := []struct {
		headline string
		org      string
		position string
		ok       bool
	}{
		{"Head of Data at Acme Analytics", "Acme Analytics", "Head of Data", true},
		{"Engineer at Acme Analytics Inc | Speaker", "Acme Analytics", "Engineer", true},
		{"Founder @ Acme Analytics", "acme analytics", "Founder", true},
		{"Advisor at Globex Corporation", "Acme Analytics", "", false},
		{"Looking at new opportunities", "Acme Analytics", "", false},
		{"Engineer", "Acme Analytics", "", false},
	}
	for _, c := range cases {
		t.Run(c.headline, func(t *testing.T) {
			position, ok := CurrentPosition(c.headline, c.org)
			require.Equal(t, c.ok, ok)
			require.Equal(t, c.position, position)
		})
	}
}

func TestFallbackPostID(t *testing.T) {
	a := fallbackPostID("Acme", "hello")
	require.Equal(t, a, fallbackPostID("Acme", "hello"))
	require.NotEqual(t, a, fallbackPostID("Acme", "hello!"))
	require.NotEqual(t, fallbackPostID("ab", "c"), fallbackPostID("a", "bc"))
}

func newTestAuthenticator(t *testing.T, site *fakeSite) *Authenticator {
	scraper, _ := newTestScraper(t, site)
	return scraper.Authenticator()
}

func TestProbe(t *testing.T) {
	site := newFakeSite(t)
	auth := newTestAuthenticator(t, site)
	ctx := context.Background()

	ok, err := auth.Probe(ctx, goodHandle().Cookies)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = auth.Probe(ctx, []credstore.Cookie{{Name: "li_at", Value: "stale"}})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogin(t *testing.T) {
	site := newFakeSite(t)
	auth := newTestAuthenticator(t, site)
	ctx := context.Background()

	result, err := auth.Login(ctx, "ok@example.com", "hunter2")
	require.NoError(t, err)
	require.Nil(t, result.Challenge)
	artifact := credstore.Artifact{Cookies: result.Cookies}
	require.NoError(t, artifact.Validate(testNow))
	cookie, _ := artifact.Cookie("li_at")
	require.Equal(t, "fresh", cookie.Value)

	_, err = auth.Login(ctx, "ok@example.com", "wrong")
	require.ErrorIs(t, err, failure.ErrInvalidCredentials)
	require.NotContains(t, err.Error(), "wrong")
}

func TestLoginChallenge(t *testing.T) {
	site := newFakeSite(t)
	auth := newTestAuthenticator(t, site)
	ctx := context.Background()

	result, err := auth.Login(ctx, "challenge@example.com", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, result.Challenge)
	challenge := *result.Challenge
	require.Equal(t, "/checkpoint/challenge/verify", challenge.Action)
	require.Equal(t, "challenge-789", challenge.Fields["challengeId"])
	require.Equal(t, testNow, challenge.StartedAt)

	_, err = auth.SubmitVerification(ctx, challenge, "000000")
	require.ErrorIs(t, err, failure.ErrAuthenticationIncomplete)

	_, resolved, err := auth.CheckChallenge(ctx, challenge)
	require.NoError(t, err)
	require.False(t, resolved)

	cookies, err := auth.SubmitVerification(ctx, challenge, " 123456 ")
	require.NoError(t, err)
	require.NoError(t, credstore.Artifact{Cookies: cookies}.Validate(testNow))
}

func TestCheckChallengeApprovedOutOfBand(t *testing.T) {
	site := newFakeSite(t)
	auth := newTestAuthenticator(t, site)
	ctx := context.Background()

	result, err := auth.Login(ctx, "challenge@example.com", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, result.Challenge)

	site.approved.Store(true)
	cookies, resolved, err := auth.CheckChallenge(ctx, *result.Challenge)
	require.NoError(t, err)
	require.True(t, resolved)
	require.NoError(t, credstore.Artifact{Cookies: cookies}.Validate(testNow))
}

func TestLoginServerDown(t *testing.T) {
	site := newFakeSite(t)
	auth := newTestAuthenticator(t, site)
	site.server.Close()

	_, err := auth.Login(context.Background(), "ok@example.com", "hunter2")
	require.Error(t, err)
	require.True(t, errors.Is(err, failure.ErrTransientNetwork))
}
