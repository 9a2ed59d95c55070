package record

// Merge combines a scraped snapshot with an optional enrichment record.
//
// Scraped values always win. Enrichment only fills organization fields that are nil
// (or, for specialities, empty) in the snapshot, so merging the result again with the
// same secondary record changes nothing. Posts and people come from the snapshot only.
func Merge(primary Snapshot, secondary *Partial) Canonical {
	out := Canonical{
		Organization: primary.Organization,
		Posts:        primary.Posts,
		People:       primary.People,
		Missing:      primary.Missing.Clone(),
		Enriched:     secondary != nil,
	}
	out.Organization.Specialities = cloneStrings(primary.Organization.Specialities)

	if secondary != nil {
		org := &out.Organization
		missing := &out.Missing

		fill(org.Name == nil, func() { org.Name = clonePtr(secondary.Name) }, secondary.Name != nil, missing, FieldName)
		fill(org.LinkedinID == nil, func() { org.LinkedinID = clonePtr(secondary.LinkedinID) }, secondary.LinkedinID != nil, missing, FieldLinkedinID)
		fill(org.Description == nil, func() { org.Description = clonePtr(secondary.Description) }, secondary.Description != nil, missing, FieldDescription)
		fill(org.Website == nil, func() { org.Website = clonePtr(secondary.Website) }, secondary.Website != nil, missing, FieldWebsite)
		fill(org.Industry == nil, func() { org.Industry = clonePtr(secondary.Industry) }, secondary.Industry != nil, missing, FieldIndustry)
		fill(org.Location == nil, func() { org.Location = clonePtr(secondary.Location) }, secondary.Location != nil, missing, FieldLocation)
		fill(org.Founded == nil, func() { org.Founded = clonePtr(secondary.Founded) }, secondary.Founded != nil, missing, FieldFounded)
		fill(
			org.Followers == nil,
			func() { org.Followers = clonePtr(secondary.Followers) },
			secondary.Followers != nil && *secondary.Followers >= 0,
			missing, FieldFollowers,
		)
		fill(
			len(org.Specialities) == 0,
			func() { org.Specialities = cloneStrings(secondary.Specialities) },
			len(secondary.Specialities) > 0,
			missing, FieldSpecialities,
		)
	}

	out.Organization.Followers = nonNegative(out.Organization.Followers)
	return out
}

func fill(dstEmpty bool, assign func(), srcPresent bool, missing *Missing, field string) {
	if !dstEmpty || !srcPresent {
		return
	}
	assign()
	missing.Remove(SectionOrganization, field)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func nonNegative(n *int64) *int64 {
	if n == nil || *n < 0 {
		return nil
	}
	return n
}
