package db

// timestamps are unix seconds, nullable columns are pointers

type Organization struct {
	ID             int64   `db:"id"`
	OrgID          string  `db:"org_id"`
	Name           *string `db:"name"`
	Url            *string `db:"url"`
	LinkedinID     *string `db:"linkedin_id"`
	ProfilePicture *string `db:"profile_picture"`
	Description    *string `db:"description"`
	Website        *string `db:"website"`
	Industry       *string `db:"industry"`
	Location       *string `db:"location"`
	HeadCount      *string `db:"head_count"`
	Followers      *int64  `db:"followers"`
	Specialities   *string `db:"specialities"`
	Founded        *string `db:"founded"`
	CompanyType    *string `db:"company_type"`
	Missing        *string `db:"missing"`
	Enriched       bool    `db:"enriched"`
	LastScrapedAt  *int64  `db:"last_scraped_at"`
	UpdatedAt      int64   `db:"updated_at"`
}

type Post struct {
	ID             int64   `db:"id"`
	OrgRef         int64   `db:"org_ref"`
	ExternalPostID string  `db:"external_post_id"`
	Content        *string `db:"content"`
	AuthorName     *string `db:"author_name"`
	AuthorUrl      *string `db:"author_url"`
	PostUrl        *string `db:"post_url"`
	Likes          *int64  `db:"likes"`
	CommentsCount  *int64  `db:"comments_count"`
	Shares         *int64  `db:"shares"`
	CreatedAt      *int64  `db:"created_at"`
	ScrapedAt      int64   `db:"scraped_at"`
	Position       int64   `db:"position"`
}

type Comment struct {
	ID         int64   `db:"id"`
	PostRef    int64   `db:"post_ref"`
	AuthorName *string `db:"author_name"`
	AuthorUrl  *string `db:"author_url"`
	Content    *string `db:"content"`
	Likes      *int64  `db:"likes"`
	CreatedAt  *int64  `db:"created_at"`
	Position   int64   `db:"position"`
}

type Person struct {
	ID              int64   `db:"id"`
	OrgRef          int64   `db:"org_ref"`
	Name            *string `db:"name"`
	ProfileUrl      string  `db:"profile_url"`
	Headline        *string `db:"headline"`
	CurrentPosition *string `db:"current_position"`
	Location        *string `db:"location"`
	ScrapedAt       int64   `db:"scraped_at"`
	Position        int64   `db:"position"`
}

type Counts struct {
	Posts    int64 `db:"posts"`
	Comments int64 `db:"comments"`
	People   int64 `db:"people"`
}

// ForeignKeyViolation is a row of PRAGMA foreign_key_check.
type ForeignKeyViolation struct {
	Table  string `db:"table"`
	RowID  *int64 `db:"rowid"`
	Parent string `db:"parent"`
	FkID   int64  `db:"fkid"`
}
