package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"insights-backend/internal/failure"
	"insights-backend/internal/ingest"
	"insights-backend/internal/record"
	"insights-backend/internal/session"

	"github.com/stretchr/testify/require"
)

type orgCall struct {
	id    string
	force bool
}

type fakeOrgs struct {
	calls []orgCall
	res   ingest.Result
	err   error
}

func (f *fakeOrgs) GetOrRefresh(ctx context.Context, orgIdentifier string, forceRefresh bool) (ingest.Result, error) {
	f.calls = append(f.calls, orgCall{id: orgIdentifier, force: forceRefresh})
	return f.res, f.err
}

type fakeControl struct {
	status session.Status
	codes  []string
	err    error
}

func (f *fakeControl) Status() session.Status {
	return f.status
}

func (f *fakeControl) SubmitVerificationCode(code string) error {
	if f.err != nil {
		return f.err
	}
	f.codes = append(f.codes, code)
	return nil
}

func newTestServer(t *testing.T, orgs *fakeOrgs, control *fakeControl) *httptest.Server {
	server := httptest.NewServer(handlers{orgs: orgs, sessions: control}.routes())
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, out any) int {
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "application/json", res.Header.Get("content-type"))
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	return res.StatusCode
}

func postCode(t *testing.T, url, body string) int {
	res, err := http.Post(url+"/session/verify", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	res.Body.Close()
	return res.StatusCode
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &fakeOrgs{}, &fakeControl{})
	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/healthz", &body))
	require.Equal(t, "ok", body["status"])
}

func TestOrganization(t *testing.T) {
	orgs := &fakeOrgs{res: ingest.Result{
		Outcome: ingest.OutcomeCached,
		RunID:   "run-1",
		Record: &record.Canonical{
			Organization: record.Organization{OrgID: "acme", Name: record.Ptr("Acme")},
		},
		Missing: record.Missing{record.SectionOrganization: {record.FieldFounded: record.ReasonAbsent}},
	}}
	server := newTestServer(t, orgs, &fakeControl{})

	var body organizationResponse
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/organizations/acme", &body))
	require.Equal(t, "cached", body.Outcome)
	require.Equal(t, "run-1", body.RunID)
	require.Equal(t, "Acme", *body.Record.Organization.Name)
	require.Equal(t, record.ReasonAbsent, body.Missing[record.SectionOrganization][record.FieldFounded])

	getJSON(t, server.URL+"/organizations/acme?force=true", &body)
	require.Equal(t, []orgCall{{id: "acme"}, {id: "acme", force: true}}, orgs.calls)
}

func TestOrganizationErrors(t *testing.T) {
	cases := []struct {
		name     string
		outcome  ingest.Outcome
		err      error
		status   int
		kind     string
		reported string
	}{
		{"not found", ingest.OutcomeNone, failure.New(failure.KindNotFound, "extract", "no such organization"), http.StatusNotFound, "not_found", ""},
		{"bad credentials", ingest.OutcomeNone, failure.ErrInvalidCredentials, http.StatusServiceUnavailable, "invalid_credentials", ""},
		{"transient", ingest.OutcomeNone, failure.Wrap(failure.KindTransientNetwork, "extract", errors.New("reset"), "fetch"), http.StatusBadGateway, "transient_network_error", ""},
		{"degraded without copy", ingest.OutcomeDegraded, failure.Wrap(failure.KindNotFound, "degraded", failure.ErrAuthenticationIncomplete, "nothing persisted"), http.StatusServiceUnavailable, "not_found", "degraded"},
		{"integrity", ingest.OutcomeNone, fmt.Errorf("save: %w", failure.ErrIntegrityViolation), http.StatusInternalServerError, "integrity_violation", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			orgs := &fakeOrgs{res: ingest.Result{Outcome: c.outcome}, err: c.err}
			server := newTestServer(t, orgs, &fakeControl{})

			var body errorResponse
			require.Equal(t, c.status, getJSON(t, server.URL+"/organizations/acme", &body))
			require.Equal(t, c.kind, body.Kind)
			require.Equal(t, c.reported, body.Outcome)
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestOrganizationInvalidIdentifier(t *testing.T) {
	orgs := &fakeOrgs{}
	server := newTestServer(t, orgs, &fakeControl{})

	var body errorResponse
	status := getJSON(t, server.URL+"/organizations/%20", &body)
	require.Equal(t, http.StatusBadRequest, status)
	require.Empty(t, orgs.calls)
}

func TestMethodNotAllowed(t *testing.T) {
	orgs := &fakeOrgs{}
	server := newTestServer(t, orgs, &fakeControl{})

	res, err := http.Post(server.URL+"/organizations/acme", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)

	res, err = http.Get(server.URL + "/session/verify")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	require.Empty(t, orgs.calls)
}

func TestSessionStatus(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	control := &fakeControl{status: session.Status{
		State:               session.StateAwaitingVerification,
		Generation:          3,
		VerificationPending: true,
		ChallengeStartedAt:  started,
	}}
	server := newTestServer(t, &fakeOrgs{}, control)

	var body sessionResponse
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/session", &body))
	require.Equal(t, "awaiting_verification", body.State)
	require.Equal(t, uint64(3), body.Generation)
	require.True(t, body.VerificationPending)
	require.True(t, started.Equal(*body.ChallengeStartedAt))
	require.Nil(t, body.AcquiredAt)
	require.Nil(t, body.FailedAt)
}

func TestSessionVerify(t *testing.T) {
	control := &fakeControl{}
	server := newTestServer(t, &fakeOrgs{}, control)

	require.Equal(t, http.StatusAccepted, postCode(t, server.URL, `{"code": "123456"}`))
	require.Equal(t, []string{"123456"}, control.codes)

	require.Equal(t, http.StatusBadRequest, postCode(t, server.URL, `{}`))
	require.Equal(t, http.StatusBadRequest, postCode(t, server.URL, `not json`))

	control.err = session.ErrNoPendingVerification
	require.Equal(t, http.StatusConflict, postCode(t, server.URL, `{"code": "123456"}`))
	require.Len(t, control.codes, 1)
}
