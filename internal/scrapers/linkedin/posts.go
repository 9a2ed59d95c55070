package linkedin

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"insights-backend/internal/record"
	"insights-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var (
	postSelectors = []string{
		`div[data-urn^="urn:li:activity:"]`,
		"div.feed-shared-update-v2",
		"div.update-components-update-v2",
		`div[data-test-id="main-feed-activity-card"]`,
		"article.main-feed-activity-card",
	}
	postContentSelectors = []string{
		".update-components-text",
		".feed-shared-update-v2__description",
		".feed-shared-text",
		".feed-shared-text__text-view",
		`[data-test-id="main-feed-activity-card__commentary"]`,
		".break-words",
	}
	postAuthorSelectors = []string{
		".update-components-actor__name",
		".update-components-actor__title",
		".feed-shared-actor__name",
		`[data-test-id="main-feed-activity-card__entity-lockup"] a`,
	}
	postAuthorLinkSelectors = []string{
		"a.update-components-actor__meta-link",
		"a.update-components-actor__image",
		"a.feed-shared-actor__container-link",
	}
	postLinkSelectors = []string{
		`a[href*="/feed/update/urn:li:activity:"]`,
		`a[href*="/posts/"][href*="-activity-"]`,
		`a[data-test-id="post-link"]`,
	}
	postLikesSelectors = []string{
		".social-details-social-counts__reactions-count",
		".social-actions-button__reactions-count",
		`[data-test-id="social-actions__reaction-count"]`,
	}
	postCommentsSelectors = []string{
		".social-details-social-counts__comments",
		".social-actions-button__comment-count",
		`[data-test-id="social-actions__comments"]`,
	}
	postSharesSelectors = []string{
		".social-details-social-counts__item--right-aligned button[aria-label*=\"repost\"]",
		".social-actions-button__share-count",
		`[data-test-id="social-actions__reposts"]`,
	}
	postAgeSelectors = []string{
		".update-components-actor__sub-description",
		".feed-shared-actor__sub-description",
		"time",
	}
)

var activityRegex = regexp.MustCompile(`(?:urn:li:activity:|activity-)(\d+)`)

// fallbackPostID is stable across scrapes of the same post as long as its author and
// text do not change.
func fallbackPostID(author, content string) string {
	sum := sha256.Sum256([]byte(author + "\x00" + content))
	return "sha256:" + hex.EncodeToString(sum[:16])
}

func postElements(doc *goquery.Document) *goquery.Selection {
	for _, selector := range postSelectors {
		sel := doc.Find(selector)
		if sel.Length() > 0 {
			// nested matches (a reshared post inside a post) belong to their parent
			return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
				return s.ParentsFiltered(selector).Length() == 0
			})
		}
	}
	return doc.Find("none-found")
}

// parsePosts extracts up to limit posts from a company posts page.
func (s *site) parsePosts(p page, limit int, now time.Time, f fields) []record.Post {
	elements := postElements(p.doc)
	if elements.Length() == 0 {
		f.absent(record.FieldPostList)
		return nil
	}

	posts := make([]record.Post, 0, min(limit, elements.Length()))
	elements.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		posts = append(posts, s.parsePost(el, now, f))
		return len(posts) < limit
	})
	return posts
}

func (s *site) parsePost(el *goquery.Selection, now time.Time, f fields) record.Post {
	post := record.Post{ScrapedAt: now}

	content := firstText(el, postContentSelectors...)
	author := firstText(el, postAuthorSelectors...)
	post.Content = f.text(record.FieldContent, content)
	post.AuthorName = f.text(record.FieldAuthor, author)

	if href := firstAttr(el, "href", postAuthorLinkSelectors...); href != "" {
		post.AuthorURL = record.Ptr(htmlutil.AbsoluteURL(s.base, href))
	}

	urn, _ := el.Attr("data-urn")
	activity := ""
	if match := activityRegex.FindStringSubmatch(urn); match != nil {
		activity = match[1]
	}

	postURL := ""
	if href := firstAttr(el, "href", postLinkSelectors...); href != "" {
		postURL = htmlutil.AbsoluteURL(s.base, href)
		if activity == "" {
			if match := activityRegex.FindStringSubmatch(href); match != nil {
				activity = match[1]
			}
		}
	}
	if postURL == "" && activity != "" {
		postURL = s.url("/feed/update/urn:li:activity:" + activity + "/")
	}
	post.PostURL = f.text(record.FieldPostURL, postURL)

	if activity != "" {
		post.ExternalID = activity
	} else {
		post.ExternalID = fallbackPostID(author, content)
	}

	post.Likes = f.optionalCount(record.FieldLikes, firstText(el, postLikesSelectors...))
	post.CommentsCount = f.optionalCount(record.FieldCommentsCount, firstText(el, postCommentsSelectors...))
	post.Shares = f.optionalCount(record.FieldShares, firstText(el, postSharesSelectors...))

	datetime := firstAttr(el, "datetime", "time[datetime]")
	age := firstText(el, postAgeSelectors...)
	post.CreatedAt = f.timestamp(record.FieldCreatedAt, datetime, age, now)

	return post
}

var (
	commentSelectors = []string{
		"article.comments-comment-item",
		"article.comments-comment-entity",
		`section[data-test-id="comment"]`,
		"div.comment",
	}
	commentAuthorSelectors = []string{
		".comments-post-meta__name-text",
		".comments-comment-meta__description-title",
		".comment__actor-name",
		".comments-post-meta__actor-name",
	}
	commentAuthorLinkSelectors = []string{
		"a.comments-post-meta__actor-link",
		"a.comments-comment-meta__description-container",
		"a.comment__actor-link",
	}
	commentContentSelectors = []string{
		".comments-comment-item__main-content",
		".comments-comment-item-content-body",
		".comment__text",
		".comments-post-meta__text",
		".feed-shared-comment__text",
	}
	commentLikesSelectors = []string{
		".comments-comment-social-bar__reactions-count",
		".comment__social-action-count",
		"button.comments-comment-social-bar__reactions-count--cr span",
	}
	commentAgeSelectors = []string{
		"time.comments-comment-meta__data",
		".comments-comment-item__timestamp",
		"time",
	}
)

// parseComments extracts up to limit comments of a post page. Comment fields are
// recorded missing under the posts section.
func parseComments(p page, limit int, now time.Time, f fields) []record.Comment {
	var comments []record.Comment
	for _, selector := range commentSelectors {
		p.doc.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			comments = append(comments, parseComment(p, el, now, f))
			return len(comments) < limit
		})
		if len(comments) > 0 {
			break
		}
	}
	return comments
}

func parseComment(p page, el *goquery.Selection, now time.Time, f fields) record.Comment {
	var comment record.Comment
	if author := firstText(el, commentAuthorSelectors...); author != "" {
		comment.AuthorName = &author
	}
	if href := firstAttr(el, "href", commentAuthorLinkSelectors...); href != "" {
		comment.AuthorURL = record.Ptr(htmlutil.AbsoluteURL(p.base, href))
	}
	if content := firstText(el, commentContentSelectors...); content != "" {
		comment.Content = &content
	}
	comment.Likes = f.optionalCount(record.FieldLikes, firstText(el, commentLikesSelectors...))

	datetime := firstAttr(el, "datetime", "time[datetime]")
	age := strings.TrimSpace(firstText(el, commentAgeSelectors...))
	if datetime != "" || age != "" {
		comment.CreatedAt = f.timestamp(record.FieldCreatedAt, datetime, age, now)
	}
	return comment
}
