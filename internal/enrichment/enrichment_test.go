package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/failure"
	"insights-backend/internal/record"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const organizationsBody = `{
	"elements": [{
		"id": 1035,
		"name": {
			"localized": {"en_US": "Acme Corp", "de_DE": "Acme GmbH"},
			"preferredLocale": {"country": "US", "language": "en"}
		},
		"description": {"localized": {"en_US": "We build rockets."}},
		"localizedWebsite": "https://acme.example",
		"industries": ["urn:li:industry:4"],
		"specialties": ["Rockets", "Anvils"],
		"foundedOn": {"year": 1949},
		"locations": [
			{"address": {"city": "Springfield", "geographicArea": "OR", "country": "US"}},
			{"address": {"city": "Elsewhere"}}
		]
	}]
}`

type fakeAPI struct {
	requests   atomic.Int64
	orgStatus  int
	orgBody    string
	sizeStatus int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if r.Header.Get("Authorization") != "Bearer secret-token" ||
		r.Header.Get("LinkedIn-Version") != DefaultVersion ||
		r.Header.Get("X-Restli-Protocol-Version") != "2.0.0" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/rest/organizations":
		if r.URL.Query().Get("q") != "vanityName" || r.URL.Query().Get("vanityName") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.orgStatus != 0 {
			w.WriteHeader(f.orgStatus)
			return
		}
		if r.URL.Query().Get("vanityName") != "acme" {
			w.Write([]byte(`{"elements": []}`))
			return
		}
		body := f.orgBody
		if body == "" {
			body = organizationsBody
		}
		w.Write([]byte(body))
	case "/rest/networkSizes/urn:li:organization:1035":
		if r.URL.Query().Get("edgeType") != "COMPANY_FOLLOWED_BY_MEMBER" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.sizeStatus != 0 {
			w.WriteHeader(f.sizeStatus)
			return
		}
		w.Write([]byte(`{"firstDegreeSize": 12345}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, api *fakeAPI, token string) (Source, *telemetry.Recorder) {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	recorder := &telemetry.Recorder{}
	source := Open(Config{
		BaseURL:           server.URL,
		Token:             token,
		RequestsPerSecond: 1000,
	}, WithTelemetry(recorder))
	return source, recorder
}

func TestLookup(t *testing.T) {
	source, _ := newTestClient(t, &fakeAPI{}, "secret-token")

	partial, err := source.Lookup(context.Background(), "acme")
	require.NoError(t, err)

	expected := record.Partial{
		Name:         record.Ptr("Acme Corp"),
		LinkedinID:   record.Ptr("1035"),
		Description:  record.Ptr("We build rockets."),
		Website:      record.Ptr("https://acme.example"),
		Industry:     record.Ptr("urn:li:industry:4"),
		Location:     record.Ptr("Springfield, OR, US"),
		Followers:    record.Ptr(int64(12345)),
		Specialities: []string{"Rockets", "Anvils"},
		Founded:      record.Ptr("1949"),
	}
	if diff := cmp.Diff(expected, partial); diff != "" {
		t.Fatalf("partial mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupPlainStrings(t *testing.T) {
	api := &fakeAPI{orgBody: `{"elements": [{
		"id": "1035",
		"name": "Acme",
		"localizedSpecialties": ["Anvils"]
	}]}`}
	source, _ := newTestClient(t, api, "secret-token")

	partial, err := source.Lookup(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme", *partial.Name)
	require.Equal(t, "1035", *partial.LinkedinID)
	require.Equal(t, []string{"Anvils"}, partial.Specialities)
	require.Nil(t, partial.Description)
	require.Nil(t, partial.Location)
	require.Nil(t, partial.Founded)
}

func TestLookupWithoutFollowers(t *testing.T) {
	source, recorder := newTestClient(t, &fakeAPI{sizeStatus: http.StatusForbidden}, "secret-token")

	partial, err := source.Lookup(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", *partial.Name)
	require.Nil(t, partial.Followers)
	require.Len(t, recorder.Reports("debug", report_followers), 1)
}

func TestLookupUnavailable(t *testing.T) {
	cases := []struct {
		name  string
		api   *fakeAPI
		token string
		orgID string
	}{
		{name: "bad token", api: &fakeAPI{}, token: "wrong", orgID: "acme"},
		{name: "quota", api: &fakeAPI{orgStatus: http.StatusTooManyRequests}, token: "secret-token", orgID: "acme"},
		{name: "server error", api: &fakeAPI{orgStatus: http.StatusBadGateway}, token: "secret-token", orgID: "acme"},
		{name: "unknown organization", api: &fakeAPI{}, token: "secret-token", orgID: "initech"},
		{name: "garbage", api: &fakeAPI{orgBody: `{"elements": [`}, token: "secret-token", orgID: "acme"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			source, recorder := newTestClient(t, c.api, c.token)
			_, err := source.Lookup(context.Background(), c.orgID)
			require.ErrorIs(t, err, failure.ErrEnrichmentUnavailable)
			require.Len(t, recorder.Reports("warning", report_lookup), 1)
		})
	}
}

func TestLookupNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	source := Open(Config{BaseURL: server.URL, Token: "secret-token"}, WithTelemetry(&telemetry.Recorder{}))
	_, err := source.Lookup(context.Background(), "acme")
	require.ErrorIs(t, err, failure.ErrEnrichmentUnavailable)
}

func TestDisabledWithoutToken(t *testing.T) {
	api := &fakeAPI{}
	source, _ := newTestClient(t, api, "  ")
	require.IsType(t, Disabled{}, source)

	_, err := source.Lookup(context.Background(), "acme")
	require.ErrorIs(t, err, failure.ErrEnrichmentUnavailable)
	require.Equal(t, int64(0), api.requests.Load())
}
