// Package poller drives the feed side of the bridge: it polls the
// subreddit's new listing, deduplicates against the last seen marker,
// applies the keyword filter and emits matched posts as batch events.
package poller

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"redgram/filter"
	"redgram/models"
)

var (
	pollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redgram_poll_cycles_total",
		Help: "The total number of completed feed poll cycles",
	})

	pollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redgram_poll_errors_total",
		Help: "The total number of failed feed fetch attempts",
	})

	postsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redgram_posts_fetched_total",
		Help: "The total number of posts fetched from the feed source",
	})

	postsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redgram_posts_matched_total",
		Help: "The total number of fetched posts that matched the keyword set",
	})
)

// Source fetches the most recent posts from the feed. *reddit.Client
// satisfies this.
type Source interface {
	Latest(ctx context.Context, subreddit string, limit int) ([]models.Post, error)
}

// RetryPolicy bounds the in-cycle retry of failed fetches when streaming.
type RetryPolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxAttempts  uint64
}

// Config holds poller settings.
type Config struct {
	Subreddit    string
	Keywords     []string
	Limit        int
	PollInterval time.Duration
	Retry        RetryPolicy
}

// Poller owns the dedup marker between cycles. It is driven either cycle by
// cycle with Poll or as a self-paced stream with Run; it is not safe for use
// from multiple goroutines.
type Poller struct {
	source Source
	config Config
	marker uint64
}

// New creates a poller resuming from the given marker. A zero marker means
// nothing has been seen yet and the first cycle emits every match.
func New(source Source, config Config, marker uint64) *Poller {
	if config.Limit <= 0 {
		config.Limit = 20
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	return &Poller{source: source, config: config, marker: marker}
}

// Marker returns the current dedup marker.
func (p *Poller) Marker() uint64 {
	return p.marker
}

// Poll runs one cycle: fetch, partition against the marker, filter, advance.
// The new marker is the maximum id over the entire fetched batch, so a burst
// of unmatching posts still advances it. On fetch failure no state changes.
func (p *Poller) Poll(ctx context.Context) (models.FeedBatch, error) {
	posts, err := p.source.Latest(ctx, p.config.Subreddit, p.config.Limit)
	if err != nil {
		pollErrors.Inc()
		return models.FeedBatch{}, err
	}

	pollCycles.Inc()
	postsFetched.Add(float64(len(posts)))

	previous := p.marker
	var matched []models.Post
	for _, post := range posts {
		if post.NumID > p.marker {
			p.marker = post.NumID
		}

		candidate := previous == 0 || post.NumID > previous
		if candidate && filter.MatchesPost(post, p.config.Keywords) {
			matched = append(matched, post)
		}
	}

	postsMatched.Add(float64(len(matched)))

	log.WithFields(log.Fields{
		"subreddit": p.config.Subreddit,
		"fetched":   len(posts),
		"matched":   len(matched),
		"marker":    p.marker,
	}).Debug("Feed poll cycle complete")

	return models.FeedBatch{
		Posts:    matched,
		Marker:   p.marker,
		Advanced: p.marker > previous,
	}, nil
}

// Run streams batches to events until the context is cancelled. Each tick
// wraps Poll in the bounded retry policy; when retries are exhausted the tick
// is abandoned and the next one starts from the unchanged marker.
func (p *Poller) Run(ctx context.Context, events chan<- any) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		batch, err := p.pollWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("Feed poll failed after retries: %v", err)
		} else {
			select {
			case events <- batch:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) pollWithRetry(ctx context.Context) (models.FeedBatch, error) {
	policy := backoff.NewExponentialBackOff()
	if p.config.Retry.InitialDelay > 0 {
		policy.InitialInterval = p.config.Retry.InitialDelay
	}
	if p.config.Retry.Multiplier > 0 {
		policy.Multiplier = p.config.Retry.Multiplier
	}

	attempts := p.config.Retry.MaxAttempts
	if attempts == 0 {
		attempts = 3
	}

	return backoff.RetryWithData(func() (models.FeedBatch, error) {
		batch, err := p.Poll(ctx)
		if err != nil {
			log.Warnf("Feed fetch failed, backing off: %v", err)
		}
		return batch, err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, attempts), ctx))
}
