package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Queries struct {
	db sqlx.ExtContext
}

func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

func (q *Queries) namedReturningID(ctx context.Context, query string, arg any) (int64, error) {
	bound, args, err := q.db.BindNamed(query, arg)
	if err != nil {
		return 0, err
	}
	var id int64
	err = q.db.QueryRowxContext(ctx, bound, args...).Scan(&id)
	return id, err
}

const upsertOrganization = `
INSERT INTO organizations (
    org_id, name, url, linkedin_id, profile_picture, description, website, industry,
    location, head_count, followers, specialities, founded, company_type, missing,
    enriched, last_scraped_at, updated_at
) VALUES (
    :org_id, :name, :url, :linkedin_id, :profile_picture, :description, :website, :industry,
    :location, :head_count, :followers, :specialities, :founded, :company_type, :missing,
    :enriched, :last_scraped_at, :updated_at
)
ON CONFLICT (org_id) DO UPDATE SET
    name = excluded.name,
    url = excluded.url,
    linkedin_id = excluded.linkedin_id,
    profile_picture = excluded.profile_picture,
    description = excluded.description,
    website = excluded.website,
    industry = excluded.industry,
    location = excluded.location,
    head_count = excluded.head_count,
    followers = excluded.followers,
    specialities = excluded.specialities,
    founded = excluded.founded,
    company_type = excluded.company_type,
    missing = excluded.missing,
    enriched = excluded.enriched,
    last_scraped_at = excluded.last_scraped_at,
    updated_at = excluded.updated_at
RETURNING id`

func (q *Queries) UpsertOrganization(ctx context.Context, arg Organization) (int64, error) {
	return q.namedReturningID(ctx, upsertOrganization, arg)
}

const getOrganization = `SELECT * FROM organizations WHERE org_id = ?`

func (q *Queries) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	var row Organization
	err := sqlx.GetContext(ctx, q.db, &row, getOrganization, orgID)
	return row, err
}

const organizationExists = `SELECT EXISTS (SELECT 1 FROM organizations WHERE id = ?)`

func (q *Queries) OrganizationExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.db, &exists, organizationExists, id)
	return exists, err
}

const deleteOrganization = `DELETE FROM organizations WHERE org_id = ?`

func (q *Queries) DeleteOrganization(ctx context.Context, orgID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteOrganization, orgID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listOrganizationIDs = `SELECT org_id FROM organizations ORDER BY org_id`

func (q *Queries) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, q.db, &ids, listOrganizationIDs)
	return ids, err
}

const deletePosts = `DELETE FROM posts WHERE org_ref = ?`

func (q *Queries) DeletePosts(ctx context.Context, orgRef int64) error {
	_, err := q.db.ExecContext(ctx, deletePosts, orgRef)
	return err
}

const deletePeople = `DELETE FROM people WHERE org_ref = ?`

func (q *Queries) DeletePeople(ctx context.Context, orgRef int64) error {
	_, err := q.db.ExecContext(ctx, deletePeople, orgRef)
	return err
}

const upsertPost = `
INSERT INTO posts (
    org_ref, external_post_id, content, author_name, author_url, post_url, likes,
    comments_count, shares, created_at, scraped_at, position
) VALUES (
    :org_ref, :external_post_id, :content, :author_name, :author_url, :post_url, :likes,
    :comments_count, :shares, :created_at, :scraped_at, :position
)
ON CONFLICT (org_ref, external_post_id) DO UPDATE SET
    content = excluded.content,
    author_name = excluded.author_name,
    author_url = excluded.author_url,
    post_url = excluded.post_url,
    likes = excluded.likes,
    comments_count = excluded.comments_count,
    shares = excluded.shares,
    created_at = excluded.created_at,
    scraped_at = excluded.scraped_at,
    position = excluded.position
RETURNING id`

func (q *Queries) UpsertPost(ctx context.Context, arg Post) (int64, error) {
	return q.namedReturningID(ctx, upsertPost, arg)
}

const insertComment = `
INSERT INTO comments (post_ref, author_name, author_url, content, likes, created_at, position)
VALUES (:post_ref, :author_name, :author_url, :content, :likes, :created_at, :position)
RETURNING id`

func (q *Queries) InsertComment(ctx context.Context, arg Comment) (int64, error) {
	return q.namedReturningID(ctx, insertComment, arg)
}

const deleteComments = `DELETE FROM comments WHERE post_ref = ?`

func (q *Queries) DeleteComments(ctx context.Context, postRef int64) error {
	_, err := q.db.ExecContext(ctx, deleteComments, postRef)
	return err
}

const upsertPerson = `
INSERT INTO people (
    org_ref, name, profile_url, headline, current_position, location, scraped_at, position
) VALUES (
    :org_ref, :name, :profile_url, :headline, :current_position, :location, :scraped_at, :position
)
ON CONFLICT (org_ref, profile_url) DO UPDATE SET
    name = excluded.name,
    headline = excluded.headline,
    current_position = excluded.current_position,
    location = excluded.location,
    scraped_at = excluded.scraped_at,
    position = excluded.position
RETURNING id`

func (q *Queries) UpsertPerson(ctx context.Context, arg Person) (int64, error) {
	return q.namedReturningID(ctx, upsertPerson, arg)
}

const listPosts = `SELECT * FROM posts WHERE org_ref = ? ORDER BY position, id`

func (q *Queries) ListPosts(ctx context.Context, orgRef int64) ([]Post, error) {
	var rows []Post
	err := sqlx.SelectContext(ctx, q.db, &rows, listPosts, orgRef)
	return rows, err
}

const listComments = `
SELECT comments.* FROM comments
INNER JOIN posts ON posts.id = comments.post_ref
WHERE posts.org_ref = ?
ORDER BY comments.post_ref, comments.position, comments.id`

// ListComments returns the comments of every post of an organization.
func (q *Queries) ListComments(ctx context.Context, orgRef int64) ([]Comment, error) {
	var rows []Comment
	err := sqlx.SelectContext(ctx, q.db, &rows, listComments, orgRef)
	return rows, err
}

const listPeople = `SELECT * FROM people WHERE org_ref = ? ORDER BY position, id`

func (q *Queries) ListPeople(ctx context.Context, orgRef int64) ([]Person, error) {
	var rows []Person
	err := sqlx.SelectContext(ctx, q.db, &rows, listPeople, orgRef)
	return rows, err
}

const countChildren = `
SELECT
    (SELECT COUNT(*) FROM posts WHERE org_ref = :org_ref) AS posts,
    (SELECT COUNT(*) FROM comments INNER JOIN posts ON posts.id = comments.post_ref
        WHERE posts.org_ref = :org_ref) AS comments,
    (SELECT COUNT(*) FROM people WHERE org_ref = :org_ref) AS people`

func (q *Queries) CountChildren(ctx context.Context, orgRef int64) (Counts, error) {
	bound, args, err := q.db.BindNamed(countChildren, map[string]any{"org_ref": orgRef})
	if err != nil {
		return Counts{}, err
	}
	var counts Counts
	err = sqlx.GetContext(ctx, q.db, &counts, bound, args...)
	return counts, err
}

const foreignKeyCheck = `PRAGMA foreign_key_check`

func (q *Queries) ForeignKeyCheck(ctx context.Context) ([]ForeignKeyViolation, error) {
	var rows []ForeignKeyViolation
	err := sqlx.SelectContext(ctx, q.db, &rows, foreignKeyCheck)
	return rows, err
}
