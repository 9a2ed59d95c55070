package linkedin

import (
	"net/url"
	"regexp"
	"strings"

	"insights-backend/internal/record"
	"insights-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// aboutFacts is the definition list of the about page ("Website", "Industry",
// "Company size", ...) keyed by the lowercased term.
type aboutFacts map[string]*goquery.Selection

func parseAboutFacts(doc *goquery.Document) aboutFacts {
	facts := aboutFacts{}
	doc.Find("dl dt").Each(func(_ int, dt *goquery.Selection) {
		term := strings.ToLower(htmlutil.SelectionText(dt))
		if term == "" {
			return
		}
		if _, exists := facts[term]; exists {
			return
		}
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		facts[term] = dd
	})
	return facts
}

func (f aboutFacts) text(terms ...string) string {
	for _, term := range terms {
		dd, ok := f[term]
		if !ok {
			continue
		}
		if text := htmlutil.SelectionText(dd); text != "" {
			return text
		}
	}
	return ""
}

func (f aboutFacts) href(term string) string {
	dd, ok := f[term]
	if !ok {
		return ""
	}
	href, _ := dd.Find("a[href]").First().Attr("href")
	return strings.TrimSpace(href)
}

var (
	nameSelectors = []string{
		"h1.org-top-card-summary__title",
		`h1[data-test-id="org-name"]`,
		"h1.top-card-layout__title",
		"h1.text-heading-xlarge",
		".org-top-card-summary__title",
		`[data-test-id="org-name"]`,
		"h1",
	}
	pictureSelectors = []string{
		"img.org-top-card-primary-content__logo",
		".org-top-card-primary-content__logo img",
		"img.top-card-layout__entity-image",
		".org-top-card-summary__image img",
		`img[data-test-id="org-logo"]`,
	}
	descriptionSelectors = []string{
		".org-about-us-organization-description__text",
		`[data-test-id="about-us__description"]`,
		"section.org-about-module p",
		".org-about-module__description",
	}
	infoItemSelectors = []string{
		".org-top-card-summary-info-list__info-item",
		".top-card-layout__first-subline",
		".org-top-card-summary-info-list",
	}
	websiteSelectors = []string{
		`a[data-test-id="about-us__website"]`,
		".org-top-card-primary-actions__inner a[href^=\"http\"]",
	}
)

var yearRegex = regexp.MustCompile(`\b(1[6-9]\d{2}|20\d{2})\b`)

// infoItems returns the texts of the top card summary ("Software Development",
// "San Francisco, CA", "12K followers").
func infoItems(doc *goquery.Document) []string {
	var items []string
	for _, selector := range infoItemSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			if text := htmlutil.SelectionText(sel); text != "" {
				items = append(items, text)
			}
		})
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

func hasDigit(s string) bool {
	return strings.IndexAny(s, "0123456789") >= 0
}

// externalLink unwraps the redirect links the site puts in front of external urls.
func (s *site) externalLink(href string) string {
	link, sameHost := s.resolve(href)
	if link == nil {
		return ""
	}
	if sameHost || strings.HasPrefix(link.Path, "/redir/") {
		target := link.Query().Get("url")
		if target == "" {
			return ""
		}
		unwrapped, err := url.Parse(target)
		if err != nil || unwrapped.Host == "" {
			return ""
		}
		return unwrapped.String()
	}
	if link.Scheme != "http" && link.Scheme != "https" {
		return ""
	}
	return link.String()
}

func splitSpecialities(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimSpace(strings.TrimPrefix(part, "and "))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseOrganization extracts the organization fields of an about page. Every field is
// extracted on its own so one broken field never hides the others.
func (s *site) parseOrganization(orgID string, p page, f fields) record.Organization {
	doc := p.doc
	facts := parseAboutFacts(doc)
	items := infoItems(doc)
	ldOrgs, ldErrs := jsonLDOrganizations(doc)
	for _, err := range ldErrs {
		f.tel.ReportDebug("skipped json-ld block", err)
	}
	var ld jsonLDOrganization
	if len(ldOrgs) > 0 {
		ld = ldOrgs[0]
	}

	org := record.Organization{
		OrgID: orgID,
		URL:   record.Ptr(s.url("/company/" + url.PathEscape(orgID) + "/")),
	}

	name := ""
	for _, selector := range nameSelectors {
		candidate := firstText(doc.Selection, selector)
		if candidate != "" && !isGenericTitle(candidate) {
			name = candidate
			break
		}
	}
	if name == "" {
		if og := trimTitleSuffix(firstAttr(doc.Selection, "content", `meta[property="og:title"]`)); og != "" && !isGenericTitle(og) {
			name = og
		}
	}
	if name == "" && ld.Name != "" && !isGenericTitle(ld.Name) {
		name = ld.Name
	}
	if name == "" {
		name = unescapeJSONString(firstMatch(p.body, embeddedNamePatterns...))
	}
	if name == "" {
		if title := trimTitleSuffix(firstText(doc.Selection, "title")); !isGenericTitle(title) {
			name = title
		}
	}
	org.Name = f.text(record.FieldName, name)

	linkedinID := firstMatch(p.body, embeddedOrgIDPatterns...)
	if linkedinID == "" {
		linkedinID = firstAttr(doc.Selection, "data-organization-id", "[data-organization-id]")
	}
	if linkedinID == "" {
		linkedinID = firstAttr(doc.Selection, "data-company-id", "[data-company-id]")
	}
	org.LinkedinID = f.text(record.FieldLinkedinID, linkedinID)

	picture := firstAttr(doc.Selection, "src", pictureSelectors...)
	if picture == "" {
		picture = firstAttr(doc.Selection, "data-delayed-url", pictureSelectors...)
	}
	if picture == "" {
		picture = ld.logo()
	}
	if picture == "" {
		picture = unescapeJSONString(firstMatch(p.body, embeddedLogoPatterns...))
	}
	if picture != "" {
		if link, _ := s.resolve(picture); link != nil {
			picture = link.String()
		}
	}
	org.ProfilePicture = f.text(record.FieldProfilePicture, picture)

	description := firstText(doc.Selection, descriptionSelectors...)
	if description == "" {
		description = htmlutil.CleanText(ld.Description)
	}
	if description == "" {
		description = htmlutil.CleanText(unescapeJSONString(firstMatch(p.body, embeddedDescriptionPatterns...)))
	}
	org.Description = f.text(record.FieldDescription, description)

	website := ""
	if href := facts.href("website"); href != "" {
		website = s.externalLink(href)
	}
	if website == "" {
		if text := facts.text("website"); strings.HasPrefix(text, "http") {
			website = text
		}
	}
	if website == "" {
		if href := firstAttr(doc.Selection, "href", websiteSelectors...); href != "" {
			website = s.externalLink(href)
		}
	}
	if website == "" {
		website = unescapeJSONString(firstMatch(p.body, embeddedWebsitePatterns...))
	}
	org.Website = f.text(record.FieldWebsite, website)

	industry := facts.text("industry", "industries")
	if industry == "" && len(items) > 0 && !hasDigit(items[0]) {
		industry = items[0]
	}
	org.Industry = f.text(record.FieldIndustry, industry)

	location := facts.text("headquarters", "location")
	if location == "" {
		location = ld.address()
	}
	org.Location = f.text(record.FieldLocation, location)

	headCount := facts.text("company size", "size")
	if headCount == "" {
		for _, item := range items {
			if strings.Contains(strings.ToLower(item), "employee") {
				headCount = item
				break
			}
		}
	}
	headCount = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(headCount), "employees"))
	org.HeadCount = f.text(record.FieldHeadCount, headCount)

	org.Followers = s.parseFollowers(p, items, f)

	specialities := splitSpecialities(facts.text("specialties", "specialities"))
	if len(specialities) == 0 {
		f.absent(record.FieldSpecialities)
	}
	org.Specialities = specialities

	founded := facts.text("founded")
	if founded == "" && ld.FoundingDate != "" {
		founded = ld.FoundingDate
	}
	if founded == "" {
		founded = firstMatch(p.body, embeddedFoundedPatterns...)
	}
	switch {
	case founded == "":
		f.absent(record.FieldFounded)
	case yearRegex.MatchString(founded):
		org.Founded = record.Ptr(yearRegex.FindString(founded))
	default:
		f.broken(record.FieldFounded, errUnparsable("founded year", founded))
	}

	org.CompanyType = f.text(record.FieldCompanyType, facts.text("type", "company type", "organization type"))

	return org
}

func (s *site) parseFollowers(p page, items []string, f fields) *int64 {
	for _, item := range items {
		n, found, err := htmlutil.CountNear(item, "follower")
		if !found {
			continue
		}
		if err != nil {
			f.broken(record.FieldFollowers, err)
			return nil
		}
		return &n
	}
	if embedded := firstMatch(p.body, embeddedFollowerPatterns...); embedded != "" {
		return f.count(record.FieldFollowers, embedded)
	}
	f.absent(record.FieldFollowers)
	return nil
}
