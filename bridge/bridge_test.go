package bridge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redgram/bot"
	"redgram/bridge"
	"redgram/models"
	"redgram/poller"
	"redgram/registry"
)

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (s *memSettings) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *memSettings) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memSettings) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

type memStore struct {
	mu          sync.Mutex
	subscribers map[int64]struct{}
}

func newMemStore(chatIDs ...int64) *memStore {
	s := &memStore{subscribers: make(map[int64]struct{})}
	for _, chatID := range chatIDs {
		s.subscribers[chatID] = struct{}{}
	}
	return s
}

func (s *memStore) AddSubscriber(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[chatID] = struct{}{}
	return nil
}

func (s *memStore) RemoveSubscriber(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, chatID)
	return nil
}

func (s *memStore) ListSubscribers(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chatIDs []int64
	for chatID := range s.subscribers {
		chatIDs = append(chatIDs, chatID)
	}
	return chatIDs, nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    map[int64][]string
	failFor map[int64]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[int64][]string), failFor: make(map[int64]bool)}
}

func (s *fakeSender) SendMessage(chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[chatID] {
		return errors.New("forbidden: bot was blocked by the user")
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func (s *fakeSender) messages(chatID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent[chatID]...)
}

type fakeSource struct {
	mu    sync.Mutex
	posts []models.Post
}

func (s *fakeSource) Latest(ctx context.Context, subreddit string, limit int) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts, nil
}

type fakeChat struct {
	mu      sync.Mutex
	batches [][]models.ChatUpdate
}

func (c *fakeChat) GetUpdates(offset int, timeout time.Duration) ([]models.ChatUpdate, error) {
	c.mu.Lock()
	if len(c.batches) > 0 {
		batch := c.batches[0]
		c.batches = c.batches[1:]
		c.mu.Unlock()
		return batch, nil
	}
	c.mu.Unlock()
	// Simulate the long-poll timing out with no data.
	time.Sleep(10 * time.Millisecond)
	return nil, nil
}

func post(t *testing.T, id, title, url string) models.Post {
	t.Helper()
	numID, err := models.ParseID(id)
	require.NoError(t, err)
	return models.Post{ID: id, NumID: numID, Title: title, URL: url}
}

func runBridge(t *testing.T, settings *memSettings, store *memStore, source *fakeSource, chat *fakeChat, sender *fakeSender) (cancel context.CancelFunc, done chan struct{}) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	offset, marker, err := bridge.LoadCursors(ctx, settings)
	require.NoError(t, err)

	reg, err := registry.Load(ctx, store)
	require.NoError(t, err)

	p := poller.New(source, poller.Config{
		Subreddit:    "mechmarket",
		Keywords:     []string{"wts"},
		PollInterval: 10 * time.Millisecond,
	}, marker)

	handler := bot.NewHandler(chat, sender, reg, "mechmarket")

	done = make(chan struct{})
	go func() {
		defer close(done)
		bridge.New(settings, reg, p, handler, sender, offset).Run(ctx)
	}()

	return cancel, done
}

func TestBridgeForwardsMatchedPosts(t *testing.T) {
	settings := newMemSettings()
	store := newMemStore(99)
	source := &fakeSource{posts: []models.Post{
		post(t, "3", "WTS keyboard", "https://redd.it/3"),
		post(t, "5", "random", ""),
	}}
	sender := newFakeSender()

	cancel, done := runBridge(t, settings, store, source, &fakeChat{}, sender)
	defer func() { cancel(); <-done }()

	assert.Eventually(t, func() bool {
		return len(sender.messages(99)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"WTS keyboard\nhttps://redd.it/3"}, sender.messages(99))

	// The marker covers the whole batch, so the unmatched post counts too.
	assert.Eventually(t, func() bool {
		return settings.get("marker") == "5"
	}, 2*time.Second, 10*time.Millisecond)

	// Repeated cycles with the same listing must not re-send.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sender.messages(99), 1)
}

func TestBridgeSendFailureDoesNotAbortFanout(t *testing.T) {
	settings := newMemSettings()
	store := newMemStore(1, 2)
	source := &fakeSource{posts: []models.Post{
		post(t, "a1", "wts something", ""),
	}}
	sender := newFakeSender()
	sender.failFor[1] = true

	cancel, done := runBridge(t, settings, store, source, &fakeChat{}, sender)
	defer func() { cancel(); <-done }()

	assert.Eventually(t, func() bool {
		return len(sender.messages(2)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, sender.messages(1))
}

func TestBridgeHandlesCommandsAndPersistsOffset(t *testing.T) {
	settings := newMemSettings()
	store := newMemStore()
	chat := &fakeChat{batches: [][]models.ChatUpdate{{
		models.TextMessage{UpdateID: 10, ChatID: 42, Text: "/subscribe"},
	}}}
	sender := newFakeSender()

	cancel, done := runBridge(t, settings, store, &fakeSource{}, chat, sender)
	defer func() { cancel(); <-done }()

	assert.Eventually(t, func() bool {
		return settings.get("offset") == "11"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"Subscribed to r/mechmarket"}, sender.messages(42))

	store.mu.Lock()
	_, subscribed := store.subscribers[42]
	store.mu.Unlock()
	assert.True(t, subscribed)
}

func TestLoadCursorsDefaults(t *testing.T) {
	offset, marker, err := bridge.LoadCursors(context.Background(), newMemSettings())
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Equal(t, uint64(0), marker)
}

func TestLoadCursorsRestoresPersistedValues(t *testing.T) {
	settings := newMemSettings()
	require.NoError(t, settings.SetSetting(context.Background(), "offset", "17"))
	require.NoError(t, settings.SetSetting(context.Background(), "marker", "12345"))

	offset, marker, err := bridge.LoadCursors(context.Background(), settings)
	require.NoError(t, err)
	assert.Equal(t, 17, offset)
	assert.Equal(t, uint64(12345), marker)
}

func TestComposeMessage(t *testing.T) {
	tests := []struct {
		name     string
		post     models.Post
		expected string
	}{
		{
			name:     "title only",
			post:     models.Post{Title: "WTS keyboard"},
			expected: "WTS keyboard",
		},
		{
			name:     "title and url",
			post:     models.Post{Title: "WTS keyboard", URL: "https://redd.it/3"},
			expected: "WTS keyboard\nhttps://redd.it/3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bridge.ComposeMessage(tt.post))
		})
	}
}
