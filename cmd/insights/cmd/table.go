package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"insights-backend/internal/record"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func str(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func num(n *int64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprint(*n)
}

func when(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(time.DateTime)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func missingSummary(missing record.Missing) string {
	if missing.Empty() {
		return "-"
	}
	sections := make([]string, 0, len(missing))
	for section := range missing {
		sections = append(sections, string(section))
	}
	sort.Strings(sections)

	var parts []string
	for _, section := range sections {
		for _, field := range missing.Fields(record.Section(section)) {
			reason, _ := missing.Reason(record.Section(section), field)
			parts = append(parts, fmt.Sprintf("%s.%s (%s)", section, field, reason))
		}
	}
	return strings.Join(parts, "\n")
}

func renderOrganization(rec record.Canonical, extra ...table.Row) {
	org := rec.Organization
	t := newTable()
	t.SetTitle(org.OrgID)
	t.AppendRows([]table.Row{
		{"Name", str(org.Name)},
		{"Industry", str(org.Industry)},
		{"Location", str(org.Location)},
		{"Head count", str(org.HeadCount)},
		{"Followers", num(org.Followers)},
		{"Founded", str(org.Founded)},
		{"Type", str(org.CompanyType)},
		{"Website", str(org.Website)},
		{"Specialities", truncate(strings.Join(org.Specialities, ", "), 80)},
		{"Description", truncate(str(org.Description), 80)},
		{"Picture", str(org.ProfilePicture)},
		{"Posts", len(rec.Posts)},
		{"People", len(rec.People)},
		{"Enriched", rec.Enriched},
		{"Last scraped", when(&org.LastScrapedAt)},
		{"Missing", missingSummary(rec.Missing)},
	})
	t.AppendRows(extra)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.Bold}},
	})
	t.Render()
}

func renderPosts(posts []record.Post) {
	if len(posts) == 0 {
		return
	}
	t := newTable()
	t.SetTitle("Posts")
	t.AppendHeader(table.Row{"ID", "Created", "Author", "Likes", "Comments", "Shares", "Content"})
	for _, p := range posts {
		t.AppendRow(table.Row{
			p.ExternalID,
			when(p.CreatedAt),
			str(p.AuthorName),
			num(p.Likes),
			fmt.Sprintf("%s (%d kept)", num(p.CommentsCount), len(p.Comments)),
			num(p.Shares),
			truncate(str(p.Content), 60),
		})
	}
	t.Render()
}

func renderPeople(people []record.Person) {
	if len(people) == 0 {
		return
	}
	t := newTable()
	t.SetTitle("People")
	t.AppendHeader(table.Row{"Name", "Position", "Location", "Profile"})
	for _, p := range people {
		t.AppendRow(table.Row{
			str(p.Name),
			truncate(str(p.CurrentPosition), 50),
			str(p.Location),
			p.ProfileURL,
		})
	}
	t.Render()
}
