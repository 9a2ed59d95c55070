// Package store persists canonical records while keeping the ownership rules of the
// schema: an organization owns its posts and people, a post owns its comments, and a
// child never outlives or precedes its owner.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"insights-backend/internal/assert"
	"insights-backend/internal/components/chrono"
	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/db"
	"insights-backend/internal/failure"
	"insights-backend/internal/record"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("insights.internal.store")

const (
	report_store_save   = "save"
	report_store_load   = "load"
	report_store_decode = "decode"
)

type Store struct {
	db     *sqlx.DB
	makeTx db.MakeTx
	tel    telemetry.API
	time   chrono.TimeAPI
}

type Option func(s *Store)

func WithTelemetry(tel telemetry.API) Option {
	return func(s *Store) {
		s.tel = telemetry.NewScopedAPI("store", tel)
	}
}

func WithTime(time chrono.TimeAPI) Option {
	return func(s *Store) {
		s.time = time
	}
}

func New(conn *sqlx.DB, opts ...Option) *Store {
	assert.NotNil(conn, "db")
	s := &Store{
		db:     conn,
		makeTx: db.NewMakeTx(conn),
		tel:    telemetry.NewScopedAPI("store", telemetry.SlogAPI{}),
		time:   chrono.StandardTime{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mapErr turns constraint failures into IntegrityViolation and missing rows into NotFound.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ferr *failure.Error
	if errors.As(err, &ferr) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return failure.Wrap(failure.KindNotFound, op, err, "no such organization")
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return failure.Wrap(failure.KindIntegrityViolation, op, err, "owner does not exist")
	case strings.Contains(msg, "CHECK constraint failed"):
		return failure.Wrap(failure.KindIntegrityViolation, op, err, "value out of range")
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return failure.Wrap(failure.KindIntegrityViolation, op, err, "required value missing")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) upsertOrganization(ctx context.Context, q *db.Queries, org record.Organization, missing record.Missing, enriched bool) (int64, error) {
	if org.OrgID == "" {
		return 0, failure.New(failure.KindIntegrityViolation, "store.upsert_organization", "organization has no id")
	}
	row, err := organizationRow(org, missing, enriched, s.time.Now())
	if err != nil {
		return 0, err
	}
	ref, err := q.UpsertOrganization(ctx, row)
	return ref, mapErr("store.upsert_organization", err)
}

func (s *Store) replaceChildren(ctx context.Context, q *db.Queries, orgRef int64, posts []record.Post, people []record.Person) error {
	exists, err := q.OrganizationExists(ctx, orgRef)
	if err != nil {
		return mapErr("store.replace_children", err)
	}
	if !exists {
		return failure.New(
			failure.KindIntegrityViolation,
			"store.replace_children",
			fmt.Sprintf("organization %d does not exist", orgRef),
		)
	}

	// comments go with their posts through the cascade
	err = q.DeletePosts(ctx, orgRef)
	if err != nil {
		return mapErr("store.replace_children", err)
	}
	err = q.DeletePeople(ctx, orgRef)
	if err != nil {
		return mapErr("store.replace_children", err)
	}

	for i, post := range record.DedupePosts(posts) {
		postRef, err := q.UpsertPost(ctx, postRow(orgRef, i, post))
		if err != nil {
			return mapErr("store.replace_children", err)
		}
		for j, comment := range post.Comments {
			_, err = q.InsertComment(ctx, commentRow(postRef, j, comment))
			if err != nil {
				return mapErr("store.replace_children", err)
			}
		}
	}
	for i, person := range record.DedupePeople(people) {
		_, err = q.UpsertPerson(ctx, personRow(orgRef, i, person))
		if err != nil {
			return mapErr("store.replace_children", err)
		}
	}
	return nil
}

// UpsertOrganization creates or updates the organization by its org id and returns its
// row id. Missing fields and the enrichment flag are cleared, use Save to persist a
// complete record.
func (s *Store) UpsertOrganization(ctx context.Context, org record.Organization) (int64, error) {
	var ref int64
	err := db.WithTx(ctx, s.makeTx, "upsert organization", func(q *db.Queries) error {
		var err error
		ref, err = s.upsertOrganization(ctx, q, org, nil, false)
		return err
	})
	return ref, err
}

// ReplaceChildren replaces every post, comment and person owned by the organization.
// It fails with IntegrityViolation when the organization does not exist.
func (s *Store) ReplaceChildren(ctx context.Context, orgRef int64, posts []record.Post, people []record.Person) error {
	return db.WithTx(ctx, s.makeTx, "replace children", func(q *db.Queries) error {
		return s.replaceChildren(ctx, q, orgRef, posts, people)
	})
}

// Save persists a canonical record in a single transaction, a failure leaves the
// previously persisted record untouched.
func (s *Store) Save(ctx context.Context, rec record.Canonical) error {
	ctx, span := tracer.Start(ctx, "Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("org_id", rec.Organization.OrgID),
		attribute.Int("posts", len(rec.Posts)),
		attribute.Int("people", len(rec.People)),
	)

	err := db.WithTx(ctx, s.makeTx, "save record", func(q *db.Queries) error {
		org := rec.Organization
		row, err := q.GetOrganization(ctx, org.OrgID)
		switch {
		case err == nil:
			stored, _, err := organizationFromRow(row)
			if err != nil {
				return fmt.Errorf("store.save: decode stored organization: %w", err)
			}
			org = keepStored(stored, org, rec.Missing)
		case !errors.Is(err, sql.ErrNoRows):
			return mapErr("store.save", err)
		}

		ref, err := s.upsertOrganization(ctx, q, org, rec.Missing, rec.Enriched)
		if err != nil {
			return err
		}
		return s.replaceChildren(ctx, q, ref, rec.Posts, rec.People)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save record")
		s.tel.ReportBroken(report_store_save, err, rec.Organization.OrgID)
		return err
	}
	return nil
}

// Load reads the persisted record of orgID, it returns NotFound when there is none.
func (s *Store) Load(ctx context.Context, orgID string) (record.Canonical, error) {
	ctx, span := tracer.Start(ctx, "Load")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID))

	var out record.Canonical
	err := db.WithTx(ctx, s.makeTx, "load record", func(q *db.Queries) error {
		row, err := q.GetOrganization(ctx, orgID)
		if err != nil {
			return mapErr("store.load", err)
		}
		org, missing, err := organizationFromRow(row)
		if err != nil {
			s.tel.ReportBroken(report_store_decode, err, orgID)
			return fmt.Errorf("store.load: decode organization: %w", err)
		}
		out.Organization = org
		out.Missing = missing
		out.Enriched = row.Enriched

		postRows, err := q.ListPosts(ctx, row.ID)
		if err != nil {
			return mapErr("store.load", err)
		}
		commentRows, err := q.ListComments(ctx, row.ID)
		if err != nil {
			return mapErr("store.load", err)
		}
		comments := map[int64][]record.Comment{}
		for _, c := range commentRows {
			comments[c.PostRef] = append(comments[c.PostRef], commentFromRow(c))
		}
		out.Posts = make([]record.Post, 0, len(postRows))
		for _, p := range postRows {
			post := postFromRow(p)
			post.Comments = comments[p.ID]
			out.Posts = append(out.Posts, post)
		}

		peopleRows, err := q.ListPeople(ctx, row.ID)
		if err != nil {
			return mapErr("store.load", err)
		}
		out.People = make([]record.Person, 0, len(peopleRows))
		for _, p := range peopleRows {
			out.People = append(out.People, personFromRow(p))
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, failure.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load record")
			s.tel.ReportWarning(report_store_load, err, orgID)
		}
		return record.Canonical{}, err
	}
	return out, nil
}

// Counts returns how many children the organization owns.
func (s *Store) Counts(ctx context.Context, orgID string) (db.Counts, error) {
	var counts db.Counts
	err := db.WithTx(ctx, s.makeTx, "count children", func(q *db.Queries) error {
		row, err := q.GetOrganization(ctx, orgID)
		if err != nil {
			return mapErr("store.counts", err)
		}
		counts, err = q.CountChildren(ctx, row.ID)
		return mapErr("store.counts", err)
	})
	return counts, err
}

// Delete removes the organization and, through the cascade, everything it owns.
func (s *Store) Delete(ctx context.Context, orgID string) error {
	return db.WithTx(ctx, s.makeTx, "delete organization", func(q *db.Queries) error {
		n, err := q.DeleteOrganization(ctx, orgID)
		if err != nil {
			return mapErr("store.delete", err)
		}
		if n == 0 {
			return failure.New(failure.KindNotFound, "store.delete", "no such organization")
		}
		return nil
	})
}

// OrgIDs lists every persisted organization.
func (s *Store) OrgIDs(ctx context.Context) ([]string, error) {
	ids, err := db.New(s.db).ListOrganizationIDs(ctx)
	return ids, mapErr("store.org_ids", err)
}
