// Package bridge is the event loop joining the feed poller and the chat
// command handler into one action pipeline.
package bridge

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"redgram/bot"
	"redgram/models"
	"redgram/poller"
	"redgram/registry"
)

const (
	offsetKey = "offset"
	markerKey = "marker"
)

var (
	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redgram_messages_sent_total",
		Help: "The total number of notification messages sent to subscribers",
	})

	sendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redgram_send_errors_total",
		Help: "The total number of failed notification sends",
	})
)

// Settings is the cursor store. *db.DB satisfies this.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Bridge wires the two producers to a single dispatch loop. The loop body is
// the only place the registry and cursors are touched, so no locking is
// needed beyond the store's own atomicity.
type Bridge struct {
	settings Settings
	registry *registry.Registry
	poller   *poller.Poller
	handler  *bot.Handler
	sender   bot.Sender

	offset int
}

func New(settings Settings, reg *registry.Registry, p *poller.Poller, handler *bot.Handler, sender bot.Sender, offset int) *Bridge {
	return &Bridge{
		settings: settings,
		registry: reg,
		poller:   p,
		handler:  handler,
		sender:   sender,
		offset:   offset,
	}
}

// LoadCursors reads the persisted chat offset and feed dedup marker, applying
// defaults on first run.
func LoadCursors(ctx context.Context, settings Settings) (int, uint64, error) {
	var offset int
	var marker uint64

	value, ok, err := settings.GetSetting(ctx, offsetKey)
	if err != nil {
		return 0, 0, err
	}
	if ok {
		if offset, err = strconv.Atoi(value); err != nil {
			return 0, 0, err
		}
	}

	value, ok, err = settings.GetSetting(ctx, markerKey)
	if err != nil {
		return 0, 0, err
	}
	if ok {
		if marker, err = strconv.ParseUint(value, 10, 64); err != nil {
			return 0, 0, err
		}
	}

	return offset, marker, nil
}

// Run starts both producers and dispatches events until the context is
// cancelled. There is no other terminal state.
func (b *Bridge) Run(ctx context.Context) {
	events := make(chan any)
	offsets := make(chan int, 1)

	go b.poller.Run(ctx, events)
	go b.handler.Run(ctx, offsets, events)

	// Arm the chat producer with the resume offset.
	offsets <- b.offset

	log.WithFields(log.Fields{
		"offset":      b.offset,
		"marker":      b.poller.Marker(),
		"subscribers": b.registry.Len(),
	}).Info("Bridge started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Bridge stopped")
			return

		case event := <-events:
			switch event := event.(type) {
			case models.FeedBatch:
				b.dispatchPosts(ctx, event)
			case models.UpdateBatch:
				b.dispatchUpdates(ctx, event, offsets)
			default:
				log.Warnf("Unknown event type %T", event)
			}
		}
	}
}

func (b *Bridge) dispatchPosts(ctx context.Context, batch models.FeedBatch) {
	for _, post := range batch.Posts {
		subscribers := b.registry.Snapshot()

		log.WithFields(log.Fields{
			"post":        post.ID,
			"title":       post.Title,
			"subscribers": len(subscribers),
		}).Info("Forwarding matched post")

		text := ComposeMessage(post)
		for _, chatID := range subscribers {
			if err := b.sender.SendMessage(chatID, text); err != nil {
				sendErrors.Inc()
				log.WithFields(log.Fields{
					"chatId": chatID,
					"post":   post.ID,
				}).Warnf("Failed to send notification: %v", err)
				continue
			}
			messagesSent.Inc()
		}
	}

	if batch.Advanced {
		b.saveCursor(ctx, markerKey, strconv.FormatUint(batch.Marker, 10))
	}
}

func (b *Bridge) dispatchUpdates(ctx context.Context, batch models.UpdateBatch, offsets chan<- int) {
	next := b.handler.Process(ctx, b.offset, batch.Updates)
	if next != b.offset {
		b.offset = next
		b.saveCursor(ctx, offsetKey, strconv.Itoa(next))
	}

	// Re-arm the chat producer.
	offsets <- b.offset
}

func (b *Bridge) saveCursor(ctx context.Context, key, value string) {
	// The in-memory cursor stays authoritative within the process; a failed
	// write is retried on the next advance.
	if err := b.settings.SetSetting(ctx, key, value); err != nil {
		log.Errorf("Failed to persist %s cursor: %v", key, err)
	}
}

// ComposeMessage renders the notification text: the title, then the URL on
// its own line when present.
func ComposeMessage(post models.Post) string {
	if post.URL == "" {
		return post.Title
	}
	return post.Title + "\n" + post.URL
}
