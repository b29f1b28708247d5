package models

import (
	"fmt"
	"strconv"
	"time"
)

// Post is a single submission fetched from the subreddit's new listing.
// NumID is the base36-decoded form of ID and defines the source ordering.
type Post struct {
	ID        string    `json:"id"`
	NumID     uint64    `json:"-"`
	Title     string    `json:"title"`
	SelfText  string    `json:"selftext"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ParseID decodes a base36 post id into its numeric ordering key.
func ParseID(id string) (uint64, error) {
	num, err := strconv.ParseUint(id, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("parse post id %q: %w", id, err)
	}
	return num, nil
}

// ChatUpdate is one inbound update from the chat source. Exactly two
// variants exist: TextMessage and OtherUpdate.
type ChatUpdate interface {
	// Seq returns the update's monotonically increasing update id.
	Seq() int
}

// TextMessage is an inbound chat message carrying text.
type TextMessage struct {
	UpdateID int
	ChatID   int64
	Text     string
}

func (m TextMessage) Seq() int { return m.UpdateID }

// OtherUpdate is any inbound update that is not a text message. It still
// advances the offset but carries nothing to act on.
type OtherUpdate struct {
	UpdateID int
}

func (u OtherUpdate) Seq() int { return u.UpdateID }

// FeedBatch is the outcome of one feed poll cycle, fired by the poller.
type FeedBatch struct {
	// Posts are the matched posts in source arrival order.
	Posts []Post
	// Marker is the highest NumID over the entire fetched batch.
	Marker uint64
	// Advanced reports whether Marker moved past the previous cycle's value.
	Advanced bool
}

// UpdateBatch is one chat long-poll result, fired by the chat producer.
type UpdateBatch struct {
	Updates []ChatUpdate
}
