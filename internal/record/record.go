package record

import (
	"time"
)

// Organization is an organization profile. Optional values are pointers, nil means the
// value was not available from the source that produced the record.
type Organization struct {
	OrgID          string    `json:"org_id"`
	Name           *string   `json:"name,omitempty"`
	URL            *string   `json:"url,omitempty"`
	LinkedinID     *string   `json:"linkedin_id,omitempty"`
	ProfilePicture *string   `json:"profile_picture,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Website        *string   `json:"website,omitempty"`
	Industry       *string   `json:"industry,omitempty"`
	Location       *string   `json:"location,omitempty"`
	HeadCount      *string   `json:"head_count,omitempty"`
	Followers      *int64    `json:"followers,omitempty"`
	Specialities   []string  `json:"specialities,omitempty"`
	Founded        *string   `json:"founded,omitempty"`
	CompanyType    *string   `json:"company_type,omitempty"`
	LastScrapedAt  time.Time `json:"last_scraped_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Comment struct {
	AuthorName *string    `json:"author_name,omitempty"`
	AuthorURL  *string    `json:"author_url,omitempty"`
	Content    *string    `json:"content,omitempty"`
	Likes      *int64     `json:"likes,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

type Post struct {
	ExternalID    string     `json:"external_id"`
	Content       *string    `json:"content,omitempty"`
	AuthorName    *string    `json:"author_name,omitempty"`
	AuthorURL     *string    `json:"author_url,omitempty"`
	PostURL       *string    `json:"post_url,omitempty"`
	Likes         *int64     `json:"likes,omitempty"`
	CommentsCount *int64     `json:"comments_count,omitempty"`
	Shares        *int64     `json:"shares,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	ScrapedAt     time.Time  `json:"scraped_at"`
	Comments      []Comment  `json:"comments,omitempty"`
}

type Person struct {
	Name            *string   `json:"name,omitempty"`
	ProfileURL      string    `json:"profile_url"`
	Headline        *string   `json:"headline,omitempty"`
	CurrentPosition *string   `json:"current_position,omitempty"`
	Location        *string   `json:"location,omitempty"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// Snapshot is what the field extractor produces for one organization.
type Snapshot struct {
	Organization Organization `json:"organization"`
	Posts        []Post       `json:"posts"`
	People       []Person     `json:"people"`
	Missing      Missing      `json:"missing"`
}

// Partial is what the enrichment source produces, it only ever covers organization
// fields.
type Partial struct {
	Name         *string  `json:"name,omitempty"`
	LinkedinID   *string  `json:"linkedin_id,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Website      *string  `json:"website,omitempty"`
	Industry     *string  `json:"industry,omitempty"`
	Location     *string  `json:"location,omitempty"`
	Followers    *int64   `json:"followers,omitempty"`
	Specialities []string `json:"specialities,omitempty"`
	Founded      *string  `json:"founded,omitempty"`
}

// Canonical is the merged, authoritative record. It is what gets persisted and cached.
type Canonical struct {
	Organization Organization `json:"organization"`
	Posts        []Post       `json:"posts"`
	People       []Person     `json:"people"`
	// Missing lists the fields neither source could provide.
	Missing Missing `json:"missing"`
	// Enriched is true when the secondary source contributed to the merge.
	Enriched bool `json:"enriched"`
}

// Snapshot returns the canonical record viewed as extractor output, this is what makes
// merging an already merged record possible.
func (c Canonical) Snapshot() Snapshot {
	return Snapshot{
		Organization: c.Organization,
		Posts:        c.Posts,
		People:       c.People,
		Missing:      c.Missing,
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
