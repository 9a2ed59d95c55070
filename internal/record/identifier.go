package record

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// NormalizeOrgID turns user input into the identifier used for cache keys and the
// org_id column. It accepts a bare vanity name ("Acme ") or a company page URL
// ("https://www.linkedin.com/company/acme/about/").
func NormalizeOrgID(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" {
		return "", fmt.Errorf("empty organization identifier")
	}

	if strings.Contains(id, "/") {
		if !strings.Contains(id, "://") {
			id = "https://" + id
		}
		normalized, err := purell.NormalizeURLString(
			id,
			purell.FlagsUsuallySafeGreedy|purell.FlagRemoveDuplicateSlashes|purell.FlagRemoveFragment|purell.FlagRemoveWWW,
		)
		if err != nil {
			return "", fmt.Errorf("parse organization url: %w", err)
		}
		parsed, err := url.Parse(normalized)
		if err != nil {
			return "", fmt.Errorf("parse organization url: %w", err)
		}
		segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(segments) < 2 || (segments[0] != "company" && segments[0] != "school" && segments[0] != "showcase") {
			return "", fmt.Errorf("not an organization page url: %s", normalized)
		}
		id, err = url.PathUnescape(segments[1])
		if err != nil {
			return "", fmt.Errorf("parse organization url: %w", err)
		}
	}

	if strings.ContainsAny(id, " \t\n?#") {
		return "", fmt.Errorf("invalid organization identifier %q", id)
	}
	return id, nil
}
