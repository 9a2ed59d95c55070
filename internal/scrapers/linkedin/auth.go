package linkedin

import (
	"context"
	"fmt"
	"strings"

	"insights-backend/internal/credstore"
	"insights-backend/internal/failure"
	"insights-backend/internal/session"
	"insights-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_login        = "login"
	report_verification = "verification"
)

const defaultLoginAction = "/checkpoint/lg/login-submit"

// Authenticator logs in with a username and password over plain http and implements
// session.Authenticator.
type Authenticator struct {
	site *site
	opts options
}

// NewAuthenticator creates an Authenticator with its own request pacing, use
// Scraper.Authenticator to share pacing with extraction.
func NewAuthenticator(config Config, opts ...Option) (*Authenticator, error) {
	o := newOptions(opts)
	s, err := newSite(config, o.tel)
	if err != nil {
		return nil, err
	}
	return &Authenticator{site: s, opts: o}, nil
}

var _ session.Authenticator = (*Authenticator)(nil)

func (a *Authenticator) clientWith(cookies []credstore.Cookie) (*resty.Client, error) {
	artifact := credstore.Artifact{Cookies: cookies}
	return a.site.newClient(artifact.HTTPCookies(a.opts.time.Now()))
}

// Probe requests the feed, a session that is no longer valid is redirected to a login
// or authwall page.
func (a *Authenticator) Probe(ctx context.Context, cookies []credstore.Cookie) (bool, error) {
	ctx, span := tracer.Start(ctx, "Probe")
	defer span.End()

	client, err := a.clientWith(cookies)
	if err != nil {
		return false, err
	}
	res, err := client.R().
		SetContext(ctx).
		Get("/feed/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe request failed")
		return false, transportError("linkedin.probe", err)
	}

	final := finalURL(res)
	span.SetAttributes(attribute.String("final_path", final.Path))
	if isSessionWall(final) {
		return false, nil
	}
	err = statusError("linkedin.probe", res.StatusCode())
	if failure.KindOf(err) == failure.KindSessionInvalid {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type loginForm struct {
	action string
	fields map[string]string
}

// formFields collects the named inputs of a form except the ones listed in skip.
func formFields(form *goquery.Selection, skip ...string) map[string]string {
	fields := map[string]string{}
	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		for _, s := range skip {
			if name == s {
				return
			}
		}
		value, _ := input.Attr("value")
		fields[name] = value
	})
	return fields
}

func (a *Authenticator) findLoginForm(p page) (loginForm, error) {
	var form *goquery.Selection
	for _, selector := range []string{
		"form.login__form",
		`form[action*="login-submit"]`,
	} {
		sel := p.doc.Find(selector).First()
		if sel.Length() > 0 {
			form = sel
			break
		}
	}
	if form == nil {
		form = p.doc.Find(`input[name="session_key"]`).Closest("form")
	}
	if form.Length() == 0 {
		return loginForm{}, fmt.Errorf("could not find login form")
	}

	action := defaultLoginAction
	if href, ok := form.Attr("action"); ok && strings.TrimSpace(href) != "" {
		link, sameHost := a.site.resolve(href)
		if !sameHost {
			return loginForm{}, fmt.Errorf("login form posts to another host")
		}
		action = link.RequestURI()
	}
	return loginForm{
		action: action,
		fields: formFields(form, "session_key", "session_password"),
	}, nil
}

func (a *Authenticator) Login(ctx context.Context, username, password string) (session.LoginResult, error) {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	result, err := a.login(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		if failure.KindOf(err) != failure.KindInvalidCredentials && ctx.Err() == nil {
			a.opts.tel.ReportWarning(report_login, err)
		}
		return session.LoginResult{}, err
	}
	span.SetAttributes(attribute.Bool("challenge", result.Challenge != nil))
	return result, nil
}

func (a *Authenticator) login(ctx context.Context, username, password string) (session.LoginResult, error) {
	const op = "linkedin.login"

	client, err := a.site.newClient(nil)
	if err != nil {
		return session.LoginResult{}, err
	}

	res, err := client.R().
		SetContext(ctx).
		Get("/login")
	if err != nil {
		return session.LoginResult{}, transportError(op, err)
	}
	err = statusError(op, res.StatusCode())
	if err != nil {
		return session.LoginResult{}, err
	}
	p, err := newPage(res, a.site.base)
	if err != nil {
		return session.LoginResult{}, fmt.Errorf("%s: parse login page: %w", op, err)
	}
	form, err := a.findLoginForm(p)
	if err != nil {
		return session.LoginResult{}, fmt.Errorf("%s: %w", op, err)
	}

	form.fields["session_key"] = username
	form.fields["session_password"] = password
	res, err = client.R().
		SetContext(ctx).
		SetFormData(form.fields).
		Post(form.action)
	if err != nil {
		return session.LoginResult{}, transportError(op, err)
	}
	err = statusError(op, res.StatusCode())
	if err != nil && failure.KindOf(err) == failure.KindTransientNetwork {
		return session.LoginResult{}, err
	}

	p, err = newPage(res, a.site.base)
	if err != nil {
		return session.LoginResult{}, fmt.Errorf("%s: parse login response: %w", op, err)
	}
	return a.loginOutcome(op, client, p)
}

func isChallenge(p page) bool {
	path := p.final.Path
	if strings.Contains(path, "/challenge") || strings.Contains(path, "/verify") {
		return true
	}
	return p.doc.Find(`input[name="pin"]`).Length() > 0
}

// loginOutcome decides what a page reached after submitting credentials or a code means.
func (a *Authenticator) loginOutcome(op string, client *resty.Client, p page) (session.LoginResult, error) {
	if isFeed(p.final) {
		cookies := a.site.jarCookies(client)
		artifact := credstore.Artifact{Cookies: cookies}
		if err := artifact.Validate(a.opts.time.Now()); err != nil {
			return session.LoginResult{}, fmt.Errorf("%s: reached the feed without a usable session: %w", op, err)
		}
		return session.LoginResult{Cookies: cookies}, nil
	}

	if isChallenge(p) {
		challenge := session.Challenge{
			URL:       p.final.String(),
			Fields:    map[string]string{},
			Cookies:   a.site.jarCookies(client),
			StartedAt: a.opts.time.Now(),
		}
		form := p.doc.Find(`input[name="pin"]`).Closest("form")
		if form.Length() > 0 {
			challenge.Fields = formFields(form, "pin")
			if href, ok := form.Attr("action"); ok && strings.TrimSpace(href) != "" {
				link, sameHost := a.site.resolve(href)
				if sameHost {
					challenge.Action = link.RequestURI()
				}
			}
		}
		if challenge.Action == "" {
			challenge.Action = p.final.RequestURI()
		}
		return session.LoginResult{Challenge: &challenge}, nil
	}

	message := "login was rejected"
	for _, selector := range []string{"#error-for-password", "#error-for-username", ".alert-content"} {
		text := htmlutil.SelectionText(p.doc.Find(selector))
		if text != "" {
			message = text
			break
		}
	}
	return session.LoginResult{}, failure.New(failure.KindInvalidCredentials, op, message)
}

// SubmitVerification posts a one-time code to the challenge form. A code the target does
// not accept fails with AuthenticationIncomplete, the challenge stays usable.
func (a *Authenticator) SubmitVerification(ctx context.Context, challenge session.Challenge, code string) ([]credstore.Cookie, error) {
	const op = "linkedin.submit-verification"

	ctx, span := tracer.Start(ctx, "SubmitVerification")
	defer span.End()

	client, err := a.clientWith(challenge.Cookies)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(challenge.Fields)+1)
	for k, v := range challenge.Fields {
		fields[k] = v
	}
	fields["pin"] = strings.TrimSpace(code)

	res, err := client.R().
		SetContext(ctx).
		SetFormData(fields).
		Post(challenge.Action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit verification failed")
		return nil, transportError(op, err)
	}
	err = statusError(op, res.StatusCode())
	if err != nil && failure.KindOf(err) == failure.KindTransientNetwork {
		return nil, err
	}

	p, err := newPage(res, a.site.base)
	if err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", op, err)
	}
	if !isFeed(p.final) {
		a.opts.tel.ReportDebug("verification code not accepted", p.final.Path)
		return nil, failure.New(failure.KindAuthenticationIncomplete, op, "verification code was not accepted")
	}
	result, err := a.loginOutcome(op, client, p)
	if err != nil {
		a.opts.tel.ReportWarning(report_verification, err)
		return nil, err
	}
	return result.Cookies, nil
}

// CheckChallenge reloads the challenge page, once approved out of band it redirects to
// the feed.
func (a *Authenticator) CheckChallenge(ctx context.Context, challenge session.Challenge) ([]credstore.Cookie, bool, error) {
	const op = "linkedin.check-challenge"

	ctx, span := tracer.Start(ctx, "CheckChallenge")
	defer span.End()

	link, sameHost := a.site.resolve(challenge.URL)
	if !sameHost {
		return nil, false, fmt.Errorf("%s: challenge is on another host", op)
	}
	client, err := a.clientWith(challenge.Cookies)
	if err != nil {
		return nil, false, err
	}
	res, err := client.R().
		SetContext(ctx).
		Get(link.RequestURI())
	if err != nil {
		return nil, false, transportError(op, err)
	}
	err = statusError(op, res.StatusCode())
	if err != nil && failure.KindOf(err) == failure.KindTransientNetwork {
		return nil, false, err
	}

	final := finalURL(res)
	if !isFeed(final) {
		return nil, false, nil
	}
	cookies := a.site.jarCookies(client)
	artifact := credstore.Artifact{Cookies: cookies}
	if err := artifact.Validate(a.opts.time.Now()); err != nil {
		return nil, false, nil
	}
	return cookies, true, nil
}
