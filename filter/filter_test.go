package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"redgram/filter"
	"redgram/models"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		expected bool
	}{
		{
			name:     "empty text",
			text:     "",
			keywords: []string{"keycap"},
			expected: false,
		},
		{
			name:     "no keywords",
			text:     "Selling keycaps",
			keywords: nil,
			expected: false,
		},
		{
			name:     "exact substring",
			text:     "selling keycaps",
			keywords: []string{"keycap"},
			expected: true,
		},
		{
			name:     "case-insensitive match",
			text:     "Selling KEYCAPS",
			keywords: []string{"keycap"},
			expected: true,
		},
		{
			name:     "uppercase keyword",
			text:     "selling keycaps",
			keywords: []string{"KeyCap"},
			expected: true,
		},
		{
			name:     "substring inside a word",
			text:     "unsubscribed",
			keywords: []string{"sub"},
			expected: true,
		},
		{
			name:     "any of several keywords",
			text:     "[WTS] GMK set",
			keywords: []string{"artisan", "gmk"},
			expected: true,
		},
		{
			name:     "none of several keywords",
			text:     "trading a deskmat",
			keywords: []string{"artisan", "gmk"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filter.Matches(tt.text, tt.keywords)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMatchesPost(t *testing.T) {
	keywords := []string{"wts"}

	assert.True(t, filter.MatchesPost(models.Post{Title: "WTS keyboard"}, keywords))
	assert.True(t, filter.MatchesPost(models.Post{Title: "sale thread", SelfText: "WTS: switches"}, keywords))
	assert.False(t, filter.MatchesPost(models.Post{Title: "random", SelfText: "nothing here"}, keywords))
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		groups   [][]string
		expected []string
	}{
		{
			name:     "plain list",
			input:    "wts,keycap",
			expected: []string{"wts", "keycap"},
		},
		{
			name:     "trims and lowercases",
			input:    " WTS , Keycap ",
			expected: []string{"wts", "keycap"},
		},
		{
			name:     "drops empty entries",
			input:    "wts,,keycap,",
			expected: []string{"wts", "keycap"},
		},
		{
			name:     "merges groups and dedups",
			input:    "wts",
			groups:   [][]string{{"WTS", "artisan"}},
			expected: []string{"wts", "artisan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filter.Keywords(tt.input, tt.groups...)
			assert.Equal(t, tt.expected, result)
		})
	}
}
