package store

import (
	"encoding/json"
	"time"

	"insights-backend/internal/db"
	"insights-backend/internal/record"
)

func unixPtr(t *time.Time) *int64 {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Unix()
	return &v
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnixPtr(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func encodeJSON(v any, empty bool) (*string, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func organizationRow(org record.Organization, missing record.Missing, enriched bool, now time.Time) (db.Organization, error) {
	specialities, err := encodeJSON(org.Specialities, len(org.Specialities) == 0)
	if err != nil {
		return db.Organization{}, err
	}
	missingText, err := encodeJSON(missing, missing.Empty())
	if err != nil {
		return db.Organization{}, err
	}
	updated := org.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	return db.Organization{
		OrgID:          org.OrgID,
		Name:           org.Name,
		Url:            org.URL,
		LinkedinID:     org.LinkedinID,
		ProfilePicture: org.ProfilePicture,
		Description:    org.Description,
		Website:        org.Website,
		Industry:       org.Industry,
		Location:       org.Location,
		HeadCount:      org.HeadCount,
		Followers:      org.Followers,
		Specialities:   specialities,
		Founded:        org.Founded,
		CompanyType:    org.CompanyType,
		Missing:        missingText,
		Enriched:       enriched,
		LastScrapedAt:  unixPtr(&org.LastScrapedAt),
		UpdatedAt:      updated.Unix(),
	}, nil
}

func organizationFromRow(row db.Organization) (record.Organization, record.Missing, error) {
	org := record.Organization{
		OrgID:          row.OrgID,
		Name:           row.Name,
		URL:            row.Url,
		LinkedinID:     row.LinkedinID,
		ProfilePicture: row.ProfilePicture,
		Description:    row.Description,
		Website:        row.Website,
		Industry:       row.Industry,
		Location:       row.Location,
		HeadCount:      row.HeadCount,
		Followers:      row.Followers,
		Founded:        row.Founded,
		CompanyType:    row.CompanyType,
		UpdatedAt:      fromUnix(row.UpdatedAt),
	}
	if row.LastScrapedAt != nil {
		org.LastScrapedAt = fromUnix(*row.LastScrapedAt)
	}
	if row.Specialities != nil {
		err := json.Unmarshal([]byte(*row.Specialities), &org.Specialities)
		if err != nil {
			return record.Organization{}, nil, err
		}
	}
	var missing record.Missing
	if row.Missing != nil {
		err := json.Unmarshal([]byte(*row.Missing), &missing)
		if err != nil {
			return record.Organization{}, nil, err
		}
	}
	return org, missing, nil
}

func postRow(orgRef int64, position int, p record.Post) db.Post {
	return db.Post{
		OrgRef:         orgRef,
		ExternalPostID: p.ExternalID,
		Content:        p.Content,
		AuthorName:     p.AuthorName,
		AuthorUrl:      p.AuthorURL,
		PostUrl:        p.PostURL,
		Likes:          p.Likes,
		CommentsCount:  p.CommentsCount,
		Shares:         p.Shares,
		CreatedAt:      unixPtr(p.CreatedAt),
		ScrapedAt:      unix(p.ScrapedAt),
		Position:       int64(position),
	}
}

func postFromRow(row db.Post) record.Post {
	return record.Post{
		ExternalID:    row.ExternalPostID,
		Content:       row.Content,
		AuthorName:    row.AuthorName,
		AuthorURL:     row.AuthorUrl,
		PostURL:       row.PostUrl,
		Likes:         row.Likes,
		CommentsCount: row.CommentsCount,
		Shares:        row.Shares,
		CreatedAt:     fromUnixPtr(row.CreatedAt),
		ScrapedAt:     fromUnix(row.ScrapedAt),
	}
}

func commentRow(postRef int64, position int, c record.Comment) db.Comment {
	return db.Comment{
		PostRef:    postRef,
		AuthorName: c.AuthorName,
		AuthorUrl:  c.AuthorURL,
		Content:    c.Content,
		Likes:      c.Likes,
		CreatedAt:  unixPtr(c.CreatedAt),
		Position:   int64(position),
	}
}

func commentFromRow(row db.Comment) record.Comment {
	return record.Comment{
		AuthorName: row.AuthorName,
		AuthorURL:  row.AuthorUrl,
		Content:    row.Content,
		Likes:      row.Likes,
		CreatedAt:  fromUnixPtr(row.CreatedAt),
	}
}

func personRow(orgRef int64, position int, p record.Person) db.Person {
	return db.Person{
		OrgRef:          orgRef,
		Name:            p.Name,
		ProfileUrl:      p.ProfileURL,
		Headline:        p.Headline,
		CurrentPosition: p.CurrentPosition,
		Location:        p.Location,
		ScrapedAt:       unix(p.ScrapedAt),
		Position:        int64(position),
	}
}

func personFromRow(row db.Person) record.Person {
	return record.Person{
		Name:            row.Name,
		ProfileURL:      row.ProfileUrl,
		Headline:        row.Headline,
		CurrentPosition: row.CurrentPosition,
		Location:        row.Location,
		ScrapedAt:       fromUnix(row.ScrapedAt),
	}
}

// keepStored fills the fields the new scrape failed to parse with the values already
// stored. A field that is absent on the page is still cleared.
func keepStored(stored, org record.Organization, missing record.Missing) record.Organization {
	failed := func(field string) bool {
		reason, ok := missing.Reason(record.SectionOrganization, field)
		return ok && reason == record.ReasonExtractionError
	}
	keep := func(dst **string, src *string, field string) {
		if *dst == nil && failed(field) {
			*dst = src
		}
	}
	keep(&org.Name, stored.Name, record.FieldName)
	keep(&org.URL, stored.URL, record.FieldURL)
	keep(&org.LinkedinID, stored.LinkedinID, record.FieldLinkedinID)
	keep(&org.ProfilePicture, stored.ProfilePicture, record.FieldProfilePicture)
	keep(&org.Description, stored.Description, record.FieldDescription)
	keep(&org.Website, stored.Website, record.FieldWebsite)
	keep(&org.Industry, stored.Industry, record.FieldIndustry)
	keep(&org.Location, stored.Location, record.FieldLocation)
	keep(&org.HeadCount, stored.HeadCount, record.FieldHeadCount)
	keep(&org.Founded, stored.Founded, record.FieldFounded)
	keep(&org.CompanyType, stored.CompanyType, record.FieldCompanyType)
	if org.Followers == nil && failed(record.FieldFollowers) {
		org.Followers = stored.Followers
	}
	if len(org.Specialities) == 0 && failed(record.FieldSpecialities) {
		org.Specialities = stored.Specialities
	}
	return org
}
