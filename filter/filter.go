// Package filter implements the keyword matcher applied to incoming posts.
package filter

import (
	"strings"

	"github.com/samber/lo"

	"redgram/models"
)

// Matches reports whether any keyword is a case-insensitive substring of
// text. No tokenization, no stemming.
func Matches(text string, keywords []string) bool {
	folded := strings.ToLower(text)
	for _, keyword := range keywords {
		if strings.Contains(folded, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// MatchesPost reports whether the post's title or body matches any keyword.
func MatchesPost(post models.Post, keywords []string) bool {
	return Matches(post.Title, keywords) || Matches(post.SelfText, keywords)
}

// Keywords normalizes a comma-separated keyword list plus optional extra
// groups into a lowercased, deduplicated set. Empty entries are dropped.
func Keywords(commaSeparated string, groups ...[]string) []string {
	var keywords []string
	for _, keyword := range strings.Split(commaSeparated, ",") {
		keywords = append(keywords, keyword)
	}
	for _, group := range groups {
		keywords = append(keywords, group...)
	}

	keywords = lo.FilterMap(keywords, func(keyword string, _ int) (string, bool) {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		return keyword, keyword != ""
	})

	return lo.Uniq(keywords)
}
