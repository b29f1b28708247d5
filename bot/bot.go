// Package bot interprets inbound chat commands and manages the subscriber
// registry on their behalf.
package bot

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"redgram/models"
	"redgram/registry"
)

const (
	CommandSubscribe   = "/subscribe"
	CommandUnsubscribe = "/unsubscribe"

	// Bounded server-side wait of the long-poll.
	longPollTimeout = 10 * time.Second
	// Pause before retrying a failed fetch so errors do not hot-loop.
	fetchRetryDelay = 3 * time.Second
)

var commandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "redgram_commands_handled_total",
	Help: "The total number of recognized chat commands handled",
}, []string{"command"})

// Chat is the inbound side of the chat source. *telegram.Client satisfies it.
type Chat interface {
	GetUpdates(offset int, timeout time.Duration) ([]models.ChatUpdate, error)
}

// Sender is the outbound side of the chat source.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Handler processes chat updates: subscribe and unsubscribe commands mutate
// the registry and are acknowledged with a fixed message, everything else is
// ignored.
type Handler struct {
	chat           Chat
	sender         Sender
	registry       *registry.Registry
	ackSubscribe   string
	ackUnsubscribe string
}

func NewHandler(chat Chat, sender Sender, reg *registry.Registry, subreddit string) *Handler {
	return &Handler{
		chat:           chat,
		sender:         sender,
		registry:       reg,
		ackSubscribe:   "Subscribed to r/" + subreddit,
		ackUnsubscribe: "Unsubscribed from r/" + subreddit,
	}
}

// Run is the chat producer loop. It waits for an offset on offsets (the
// dispatcher re-arms it after processing each batch), long-polls from that
// offset and pushes the result to events. A failed fetch is retried with the
// same offset after a short pause, never surfaced as fatal.
func (h *Handler) Run(ctx context.Context, offsets <-chan int, events chan<- any) {
	for {
		var offset int
		select {
		case offset = <-offsets:
		case <-ctx.Done():
			return
		}

		for {
			updates, err := h.chat.GetUpdates(offset, longPollTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Errorf("Error fetching chat updates: %v", err)
				select {
				case <-time.After(fetchRetryDelay):
					continue
				case <-ctx.Done():
					return
				}
			}

			select {
			case events <- models.UpdateBatch{Updates: updates}:
			case <-ctx.Done():
				return
			}
			break
		}
	}
}

// Process handles one batch of updates in ascending update id order and
// returns the next offset: last update id + 1, or the input offset for an
// empty batch.
func (h *Handler) Process(ctx context.Context, offset int, updates []models.ChatUpdate) int {
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].Seq() < updates[j].Seq()
	})

	next := offset
	for _, update := range updates {
		switch update := update.(type) {
		case models.TextMessage:
			h.handleMessage(ctx, update)
		case models.OtherUpdate:
			// Nothing to act on, but the offset still advances.
		default:
			log.Warnf("Unknown chat update type %T", update)
		}
		next = update.Seq() + 1
	}

	return next
}

func (h *Handler) handleMessage(ctx context.Context, message models.TextMessage) {
	switch message.Text {
	case CommandSubscribe:
		if err := h.registry.Subscribe(ctx, message.ChatID); err != nil {
			log.Errorf("Subscribe failed for chat %d: %v", message.ChatID, err)
			return
		}
		commandsHandled.WithLabelValues("subscribe").Inc()
		h.ack(message.ChatID, h.ackSubscribe)

	case CommandUnsubscribe:
		if err := h.registry.Unsubscribe(ctx, message.ChatID); err != nil {
			log.Errorf("Unsubscribe failed for chat %d: %v", message.ChatID, err)
			return
		}
		commandsHandled.WithLabelValues("unsubscribe").Inc()
		h.ack(message.ChatID, h.ackUnsubscribe)

	default:
		// Not a recognized command; ignore.
	}
}

func (h *Handler) ack(chatID int64, text string) {
	if err := h.sender.SendMessage(chatID, text); err != nil {
		log.WithFields(log.Fields{
			"chatId": chatID,
		}).Warnf("Failed to send acknowledgement: %v", err)
	}
}
