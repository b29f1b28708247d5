package reddit

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"redgram/models"
)

type thingData struct {
	Name        string  `json:"name"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	URL         string  `json:"url"`
	IsSelf      bool    `json:"is_self"`
	CreatedSecs float64 `json:"created_utc"`
}

type listing struct {
	Data struct {
		Children []struct {
			Data thingData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// decodeListing parses a /new listing response into posts in arrival order.
func decodeListing(body io.Reader) ([]models.Post, error) {
	var resp listing
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	posts := make([]models.Post, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		data := child.Data

		id := data.ID
		if id == "" {
			// Fullnames look like t3_<id>
			parts := strings.SplitN(data.Name, "_", 2)
			id = parts[len(parts)-1]
		}

		numID, err := models.ParseID(id)
		if err != nil {
			return nil, err
		}

		post := models.Post{
			ID:        id,
			NumID:     numID,
			Title:     html.UnescapeString(data.Title),
			SelfText:  html.UnescapeString(data.SelfText),
			CreatedAt: time.Unix(int64(data.CreatedSecs), 0),
		}
		// Self posts carry their own permalink as URL, which is noise for
		// notification purposes.
		if !data.IsSelf {
			post.URL = data.URL
		}

		posts = append(posts, post)
	}

	return posts, nil
}
