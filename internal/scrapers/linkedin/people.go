package linkedin

import (
	"strings"
	"time"

	"insights-backend/internal/record"
	"insights-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
)

// positionMatchThreshold is the Jaro-Winkler similarity above which the company part of
// a headline is considered to name the organization.
const positionMatchThreshold = 0.85

var (
	personSelectors = []string{
		"li.org-people-profile-card__profile-card-spacing",
		"div.org-people-profile-card",
		"li.reusable-search__result-container",
		"div.entity-result",
	}
	personNameSelectors = []string{
		".org-people-profile-card__profile-title",
		".artdeco-entity-lockup__title",
		".entity-result__title-text a span[aria-hidden=\"true\"]",
		".entity-result__title-text a",
	}
	personHeadlineSelectors = []string{
		".artdeco-entity-lockup__subtitle",
		".entity-result__primary-subtitle",
		".org-people-profile-card__profile-info .lt-line-clamp",
	}
	personLocationSelectors = []string{
		".entity-result__secondary-subtitle",
		".org-people-profile-card__location",
	}
)

// CurrentPosition derives the position from a headline of the form "<title> at
// <company>" when company names the organization.
func CurrentPosition(headline, organization string) (string, bool) {
	org := strings.ToLower(strings.TrimSpace(organization))
	if org == "" {
		return "", false
	}
	lower := strings.ToLower(headline)
	for _, sep := range []string{" at ", " @ "} {
		idx := strings.LastIndex(lower, sep)
		if idx <= 0 {
			continue
		}
		title := strings.TrimSpace(headline[:idx])
		company := strings.TrimSpace(lower[idx+len(sep):])
		// "Engineer at Acme | Speaker" only the first segment names the company
		if cut := strings.IndexAny(company, "|·,"); cut > 0 {
			company = strings.TrimSpace(company[:cut])
		}
		if title == "" || company == "" {
			continue
		}
		if matchr.JaroWinkler(company, org, false) >= positionMatchThreshold {
			return title, true
		}
	}
	return "", false
}

// parsePeople extracts up to limit people from a company people page. Cards without a
// profile link cannot be stored and are skipped.
func (s *site) parsePeople(p page, organization string, limit int, now time.Time, f fields) []record.Person {
	var cards *goquery.Selection
	for _, selector := range personSelectors {
		cards = p.doc.Find(selector)
		if cards.Length() > 0 {
			break
		}
	}
	if cards == nil || cards.Length() == 0 {
		f.absent(record.FieldPeopleList)
		return nil
	}

	var people []record.Person
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		href := firstAttr(card, "href", `a[href*="/in/"]`)
		if href == "" {
			f.tel.ReportDebug("skipped person without profile link")
			return true
		}
		person := record.Person{
			ProfileURL: htmlutil.AbsoluteURL(s.base, href),
			ScrapedAt:  now,
		}
		person.Name = f.text(record.FieldName, firstText(card, personNameSelectors...))
		person.Headline = f.text(record.FieldHeadline, firstText(card, personHeadlineSelectors...))
		person.Location = f.text(record.FieldLocation, firstText(card, personLocationSelectors...))

		if person.Headline != nil {
			if position, ok := CurrentPosition(*person.Headline, organization); ok {
				person.CurrentPosition = &position
			}
		}
		if person.CurrentPosition == nil {
			f.absent(record.FieldCurrentPosition)
		}

		people = append(people, person)
		return len(people) < limit
	})
	if len(people) == 0 {
		f.absent(record.FieldPeopleList)
	}
	return people
}
