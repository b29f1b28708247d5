package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"redgram/models"
)

const (
	DefaultHost     = "https://oauth.reddit.com"
	DefaultAuthHost = "https://www.reddit.com"

	requestTimeout = 30 * time.Second
	// Refresh the token slightly before Reddit expires it.
	expirySlack = time.Minute
)

// Credentials identify a Reddit script application and the account it acts as.
// See https://github.com/reddit-archive/reddit/wiki/OAuth2-Quick-Start-Example
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Client is an authenticated Reddit API client using the password grant.
// All fetch failures are transient from the caller's point of view.
type Client struct {
	http      *http.Client
	host      string
	authHost  string
	userAgent string
	creds     Credentials

	token     string
	expiresAt time.Time
}

// ClientFromCredentials authorizes against the Reddit token endpoint and
// returns a ready client.
func ClientFromCredentials(ctx context.Context, userAgent string, creds Credentials) (*Client, error) {
	client := &Client{
		http:      &http.Client{Timeout: requestTimeout},
		host:      DefaultHost,
		authHost:  DefaultAuthHost,
		userAgent: userAgent,
		creds:     creds,
	}

	if err := client.authorize(ctx); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return client, nil
}

func (c *Client) authorize(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authHost+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return errors.New("token endpoint returned no access token")
	}

	c.token = token.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second).Add(-expirySlack)
	return nil
}

// Latest fetches up to limit most-recent posts from the subreddit's new
// listing, in arrival order.
func (c *Client) Latest(ctx context.Context, subreddit string, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 25
	}

	resp, err := c.get(ctx, "/r/"+subreddit+"/new", url.Values{
		"limit":    {strconv.Itoa(limit)},
		"raw_json": {"1"},
	})
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	defer resp.Body.Close()

	return decodeListing(resp.Body)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	// One re-auth attempt on an expired or rejected token.
	for attempt := 0; attempt < 2; attempt++ {
		if c.token == "" || time.Now().After(c.expiresAt) {
			if err := c.authorize(ctx); err != nil {
				return nil, fmt.Errorf("authorize: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, nil

		case http.StatusUnauthorized:
			resp.Body.Close()
			c.token = ""
			continue

		case http.StatusTooManyRequests:
			resp.Body.Close()
			reset, _ := strconv.Atoi(resp.Header.Get("X-Ratelimit-Reset"))
			return nil, &RateLimitError{ResetAfter: time.Duration(reset) * time.Second}

		default:
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
	}

	log.Warn("Reddit token rejected twice in a row")
	return nil, errors.New("unauthorized")
}

// RateLimitError reports a 429 from the API together with the advertised
// reset delay.
type RateLimitError struct {
	ResetAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate-limited, reset in %s", e.ResetAfter)
}
