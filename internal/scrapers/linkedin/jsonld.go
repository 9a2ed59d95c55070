package linkedin

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type jsonLDAddress struct {
	Locality string `json:"addressLocality"`
	Region   string `json:"addressRegion"`
	Country  string `json:"addressCountry"`
}

func (a jsonLDAddress) String() string {
	parts := []string{}
	for _, p := range []string{a.Locality, a.Region, a.Country} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

// jsonLDOrganization is the subset of a schema.org Organization the about page embeds.
type jsonLDOrganization struct {
	Type         any                  `json:"@type"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Logo         json.RawMessage      `json:"logo"`
	Address      json.RawMessage      `json:"address"`
	FoundingDate string               `json:"foundingDate"`
	Graph        []jsonLDOrganization `json:"@graph"`
}

func (o jsonLDOrganization) isOrganization() bool {
	switch t := o.Type.(type) {
	case string:
		return strings.Contains(t, "Organization") || t == "Corporation"
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.Contains(s, "Organization") {
				return true
			}
		}
	}
	return false
}

func (o jsonLDOrganization) logo() string {
	if len(o.Logo) == 0 {
		return ""
	}
	var url string
	if json.Unmarshal(o.Logo, &url) == nil {
		return url
	}
	var image struct {
		URL        string `json:"url"`
		ContentURL string `json:"contentUrl"`
	}
	if json.Unmarshal(o.Logo, &image) == nil {
		if image.ContentURL != "" {
			return image.ContentURL
		}
		return image.URL
	}
	return ""
}

func (o jsonLDOrganization) address() string {
	if len(o.Address) == 0 {
		return ""
	}
	var single jsonLDAddress
	if json.Unmarshal(o.Address, &single) == nil {
		return single.String()
	}
	var list []jsonLDAddress
	if json.Unmarshal(o.Address, &list) == nil && len(list) > 0 {
		return list[0].String()
	}
	return ""
}

// jsonLDOrganizations returns the organization objects of every JSON-LD block, blocks
// that do not decode are returned as errors so the caller can report them.
func jsonLDOrganizations(doc *goquery.Document) ([]jsonLDOrganization, []error) {
	var orgs []jsonLDOrganization
	var errs []error
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, script *goquery.Selection) {
		raw := strings.TrimSpace(script.Text())
		if raw == "" {
			return
		}

		var candidates []jsonLDOrganization
		if strings.HasPrefix(raw, "[") {
			err := json.Unmarshal([]byte(raw), &candidates)
			if err != nil {
				errs = append(errs, fmt.Errorf("json-ld block %d: %w", i, err))
				return
			}
		} else {
			var single jsonLDOrganization
			err := json.Unmarshal([]byte(raw), &single)
			if err != nil {
				errs = append(errs, fmt.Errorf("json-ld block %d: %w", i, err))
				return
			}
			candidates = append(candidates, single)
			candidates = append(candidates, single.Graph...)
		}
		for _, c := range candidates {
			if c.isOrganization() {
				orgs = append(orgs, c)
			}
		}
	})
	return orgs, errs
}

// patterns for data embedded in inline scripts and code blocks
var (
	embeddedOrgIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"entityUrn"\s*:\s*"urn:li:fs_(?:normalized_)?company:(\d+)"`),
		regexp.MustCompile(`"entityUrn"\s*:\s*"urn:li:organization:(\d+)"`),
		regexp.MustCompile(`"(?:companyId|organizationId)"\s*:\s*"?(\d+)`),
		regexp.MustCompile(`urn:li:(?:fs_company|organization|company):(\d+)`),
	}
	embeddedNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`"localizedName"\s*:\s*"([^"]+)"`),
	}
	embeddedFollowerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"followerCount"\s*:\s*(\d+)`),
		regexp.MustCompile(`"followersCount"\s*:\s*(\d+)`),
	}
	embeddedDescriptionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"localizedDescription"\s*:\s*"([^"]+)"`),
	}
	embeddedWebsitePatterns = []*regexp.Regexp{
		regexp.MustCompile(`"companyPageUrl"\s*:\s*"(https?://[^"]+)"`),
		regexp.MustCompile(`"websiteUrl"\s*:\s*"(https?://[^"]+)"`),
	}
	embeddedFoundedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"foundedOn"\s*:\s*\{[^}]*"year"\s*:\s*(\d{4})`),
	}
	embeddedLogoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"logoUrl"\s*:\s*"(https?://[^"]+)"`),
	}
)

// unescapeJSONString decodes the escapes of a string captured from raw json.
func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
