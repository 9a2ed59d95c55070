package record

import (
	"fmt"
	"sort"
)

type Section string

const (
	SectionOrganization Section = "organization"
	SectionPosts        Section = "posts"
	SectionPeople       Section = "people"
)

// Reason distinguishes a field that does not exist on the target from one that exists
// but could not be parsed.
type Reason int

const (
	ReasonAbsent Reason = iota
	ReasonExtractionError
)

func (r Reason) String() string {
	if r == ReasonExtractionError {
		return "error"
	}
	return "absent"
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(text []byte) error {
	switch string(text) {
	case "absent":
		*r = ReasonAbsent
	case "error":
		*r = ReasonExtractionError
	default:
		return fmt.Errorf("unknown missing field reason %q", text)
	}
	return nil
}

// field names, shared by the extractor, merge and the cli
const (
	FieldName           = "name"
	FieldURL            = "url"
	FieldLinkedinID     = "linkedin_id"
	FieldProfilePicture = "profile_picture"
	FieldDescription    = "description"
	FieldWebsite        = "website"
	FieldIndustry       = "industry"
	FieldLocation       = "location"
	FieldHeadCount      = "head_count"
	FieldFollowers      = "followers"
	FieldSpecialities   = "specialities"
	FieldFounded        = "founded"
	FieldCompanyType    = "company_type"

	FieldPostList      = "list"
	FieldContent       = "content"
	FieldAuthor        = "author"
	FieldPostURL       = "post_url"
	FieldLikes         = "likes"
	FieldCommentsCount = "comments_count"
	FieldShares        = "shares"
	FieldCreatedAt     = "created_at"
	FieldComments      = "comments"

	FieldPeopleList      = "list"
	FieldHeadline        = "headline"
	FieldCurrentPosition = "current_position"
)

// Missing is the set of fields, per section, that were attempted but not obtained.
type Missing map[Section]map[string]Reason

// Add records a missing field. An extraction error is never downgraded to absent, so
// one broken post is still visible after many posts that simply lack the field.
func (m *Missing) Add(section Section, field string, reason Reason) {
	if *m == nil {
		*m = Missing{}
	}
	fields, ok := (*m)[section]
	if !ok {
		fields = map[string]Reason{}
		(*m)[section] = fields
	}
	existing, ok := fields[field]
	if ok && existing == ReasonExtractionError {
		return
	}
	fields[field] = reason
}

func (m Missing) Has(section Section, field string) bool {
	_, ok := m[section][field]
	return ok
}

func (m Missing) Reason(section Section, field string) (Reason, bool) {
	r, ok := m[section][field]
	return r, ok
}

// Fields returns the sorted field names missing from a section.
func (m Missing) Fields(section Section) []string {
	out := make([]string, 0, len(m[section]))
	for field := range m[section] {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

func (m Missing) Empty() bool {
	for _, fields := range m {
		if len(fields) > 0 {
			return false
		}
	}
	return true
}

func (m *Missing) Remove(section Section, field string) {
	if *m == nil {
		return
	}
	fields, ok := (*m)[section]
	if !ok {
		return
	}
	delete(fields, field)
	if len(fields) == 0 {
		delete(*m, section)
	}
}

func (m Missing) Clone() Missing {
	if m == nil {
		return nil
	}
	out := make(Missing, len(m))
	for section, fields := range m {
		copied := make(map[string]Reason, len(fields))
		for field, reason := range fields {
			copied[field] = reason
		}
		out[section] = copied
	}
	return out
}

// Merge adds every entry of other into m.
func (m *Missing) Merge(other Missing) {
	for section, fields := range other {
		for field, reason := range fields {
			m.Add(section, field, reason)
		}
	}
}
