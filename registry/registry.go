// Package registry maintains the set of subscribed chat ids, mirrored to
// durable storage.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Store persists subscriber membership. *db.DB satisfies this.
type Store interface {
	AddSubscriber(ctx context.Context, chatID int64) error
	RemoveSubscriber(ctx context.Context, chatID int64) error
	ListSubscribers(ctx context.Context) ([]int64, error)
}

// Registry is the in-memory subscriber set backed by a Store. Membership
// changes are persisted before they are considered applied; transient storage
// failures are retried with exponential backoff rather than treated as fatal.
type Registry struct {
	store       Store
	subscribers map[int64]struct{}
	maxRetries  uint64
}

// Load reads the full subscriber set from the store.
func Load(ctx context.Context, store Store) (*Registry, error) {
	chatIDs, err := store.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	registry := &Registry{
		store:       store,
		subscribers: make(map[int64]struct{}, len(chatIDs)),
		maxRetries:  4,
	}
	for _, chatID := range chatIDs {
		registry.subscribers[chatID] = struct{}{}
	}

	log.WithFields(log.Fields{
		"count": len(chatIDs),
	}).Info("Loaded subscriber registry")

	return registry, nil
}

// Subscribe adds a chat id. Subscribing an existing id is a no-op that still
// reports success.
func (r *Registry) Subscribe(ctx context.Context, chatID int64) error {
	if _, ok := r.subscribers[chatID]; ok {
		return nil
	}

	if err := r.persist(ctx, func() error {
		return r.store.AddSubscriber(ctx, chatID)
	}); err != nil {
		return fmt.Errorf("persist subscribe: %w", err)
	}

	r.subscribers[chatID] = struct{}{}
	return nil
}

// Unsubscribe removes a chat id. Removing an absent id is a no-op.
func (r *Registry) Unsubscribe(ctx context.Context, chatID int64) error {
	if _, ok := r.subscribers[chatID]; !ok {
		return nil
	}

	if err := r.persist(ctx, func() error {
		return r.store.RemoveSubscriber(ctx, chatID)
	}); err != nil {
		return fmt.Errorf("persist unsubscribe: %w", err)
	}

	delete(r.subscribers, chatID)
	return nil
}

// Contains reports membership.
func (r *Registry) Contains(chatID int64) bool {
	_, ok := r.subscribers[chatID]
	return ok
}

// Len returns the subscriber count.
func (r *Registry) Len() int {
	return len(r.subscribers)
}

// Snapshot returns the current chat ids in stable order for fan-out.
func (r *Registry) Snapshot() []int64 {
	chatIDs := lo.Keys(r.subscribers)
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs
}

func (r *Registry) persist(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond

	return backoff.Retry(func() error {
		err := op()
		if err != nil {
			log.Warnf("Registry write failed, retrying: %v", err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx))
}
