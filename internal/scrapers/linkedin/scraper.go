package linkedin

import (
	"context"
	"errors"
	"net/url"
	"time"

	"insights-backend/internal/credstore"
	"insights-backend/internal/failure"
	"insights-backend/internal/record"
	"insights-backend/internal/session"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const report_extract = "extract"

// Scraper extracts organization snapshots from authenticated pages.
type Scraper struct {
	site *site
	opts options
}

func New(config Config, opts ...Option) (*Scraper, error) {
	o := newOptions(opts)
	s, err := newSite(config, o.tel)
	if err != nil {
		return nil, err
	}
	return &Scraper{site: s, opts: o}, nil
}

// Authenticator returns an authenticator that shares the scraper's request pacing.
func (s *Scraper) Authenticator() *Authenticator {
	return &Authenticator{site: s.site, opts: s.opts}
}

// fatal reports whether err must abort the whole extraction.
func fatal(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch failure.KindOf(err) {
	case failure.KindSessionInvalid, failure.KindTransientNetwork:
		return true
	}
	return false
}

// Extract scrapes the about, posts and people pages of orgID. Session and network
// failures fail the extraction, anything that only affects some fields is recorded in
// the snapshot's Missing set.
func (s *Scraper) Extract(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID))

	snapshot, err := s.extract(ctx, handle, orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		if !fatal(err) && failure.KindOf(err) != failure.KindNotFound {
			s.opts.tel.ReportBroken(report_extract, err, orgID)
		}
		return record.Snapshot{}, err
	}
	span.SetAttributes(
		attribute.Int("posts", len(snapshot.Posts)),
		attribute.Int("people", len(snapshot.People)),
	)
	return snapshot, nil
}

func (s *Scraper) extract(ctx context.Context, handle session.Handle, orgID string) (record.Snapshot, error) {
	now := s.opts.time.Now()
	artifact := credstore.Artifact{Cookies: handle.Cookies}
	client, err := s.site.newClient(artifact.HTTPCookies(now))
	if err != nil {
		return record.Snapshot{}, err
	}

	snapshot := record.Snapshot{}
	orgFields := fields{section: record.SectionOrganization, missing: &snapshot.Missing, tel: s.opts.tel}
	postFields := fields{section: record.SectionPosts, missing: &snapshot.Missing, tel: s.opts.tel}
	peopleFields := fields{section: record.SectionPeople, missing: &snapshot.Missing, tel: s.opts.tel}

	base := "/company/" + url.PathEscape(orgID)

	about, err := s.site.get(ctx, client, "linkedin.about", base+"/about/")
	if err != nil {
		return record.Snapshot{}, err
	}
	snapshot.Organization = s.site.parseOrganization(orgID, about, orgFields)
	snapshot.Organization.LastScrapedAt = now

	orgName := orgID
	if snapshot.Organization.Name != nil {
		orgName = *snapshot.Organization.Name
	}

	postsPage, err := s.site.get(ctx, client, "linkedin.posts", base+"/posts/")
	switch {
	case err == nil:
		snapshot.Posts = s.site.parsePosts(postsPage, s.site.config.MaxPosts, now, postFields)
		err = s.fetchComments(ctx, client, snapshot.Posts, now, postFields)
		if err != nil {
			return record.Snapshot{}, err
		}
	case fatal(err):
		return record.Snapshot{}, err
	default:
		postFields.broken(record.FieldPostList, err)
	}

	peoplePage, err := s.site.get(ctx, client, "linkedin.people", base+"/people/")
	switch {
	case err == nil:
		snapshot.People = s.site.parsePeople(peoplePage, orgName, s.site.config.MaxPeople, now, peopleFields)
	case fatal(err):
		return record.Snapshot{}, err
	default:
		peopleFields.broken(record.FieldPeopleList, err)
	}

	snapshot.Posts = record.DedupePosts(snapshot.Posts)
	snapshot.People = record.DedupePeople(snapshot.People)
	return snapshot, nil
}

// fetchComments fills in the comments of every post with a url on the target. A post
// whose comments could not be fetched keeps none and is recorded as an extraction
// error, only cancellation stops the loop.
func (s *Scraper) fetchComments(ctx context.Context, client *resty.Client, posts []record.Post, now time.Time, f fields) error {
	for i := range posts {
		post := &posts[i]
		if post.PostURL == nil {
			continue
		}
		link, sameHost := s.site.resolve(*post.PostURL)
		if !sameHost {
			continue
		}

		p, err := s.site.get(ctx, client, "linkedin.post", link.RequestURI())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.opts.tel.ReportDebug("comments unavailable", post.ExternalID)
			f.broken(record.FieldComments, err)
			continue
		}
		post.Comments = parseComments(p, s.site.config.MaxComments, now, f)
	}
	return nil
}
