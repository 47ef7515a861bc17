package statestore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Hub event names. The hub pushes a full dump after subscription and single
// deltas afterwards.
const (
	eventSubscribe    = "subscribe_states"
	eventStates       = "states"
	eventStateChanged = "state_changed"
)

// FeedOptions configures the hub subscription.
type FeedOptions struct {
	// URL is the hub endpoint, scheme://host[/path].
	URL       string
	Namespace string
	// ConnectTimeout bounds the wait for the initial connection. Defaults
	// to 10s.
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
	// OnEvent is invoked after the store has been updated; the argument is
	// the changed entity id, or empty for a full dump.
	OnEvent func(entityID string)
}

// Feed keeps a Memory store synchronized with the hub over a socket.io
// connection. Reconnects are handled by the underlying manager; the feed
// resubscribes on every connect.
type Feed struct {
	store  *Memory
	opts   FeedOptions
	logger *slog.Logger

	manager   *socket.Manager
	io        *socket.Socket
	connected atomic.Bool

	snapshotOnce sync.Once
	snapshotCh   chan struct{}
}

// NewFeed creates a feed writing into store. Call Start to connect.
func NewFeed(store *Memory, opts FeedOptions) *Feed {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &Feed{
		store:      store,
		opts:       opts,
		snapshotCh: make(chan struct{}),
	}
}

// Start connects to the hub and blocks until the initial connection is
// established or the timeout elapses. Event handling continues on the
// socket's goroutines after Start returns.
func (f *Feed) Start(ctx context.Context) error {
	f.logger = ctxlog.FromContext(ctx).With("component", "statefeed", "url", f.opts.URL)
	f.logger.Debug("Connecting to hub")

	parsedURL, err := url.Parse(f.opts.URL)
	if err != nil {
		return fmt.Errorf("failed to parse hub URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if f.opts.InsecureSkipVerify {
		f.logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	ready := make(chan error, 1)
	signalReady := func(err error) {
		select {
		case ready <- err:
		default:
		}
	}

	f.manager = socket.NewManager(baseURL, opts)
	f.io = f.manager.Socket(f.opts.Namespace, opts)

	f.io.On(types.EventName("connect"), func(...any) {
		f.connected.Store(true)
		f.logger.Info("Connected to hub", "namespace", f.opts.Namespace, "sid", f.io.Id())
		f.io.Emit(eventSubscribe)
		signalReady(nil)
	})

	f.io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				signalReady(err)
				return
			}
		}
		signalReady(fmt.Errorf("hub connection failed"))
	})

	f.io.On(types.EventName("disconnect"), func(...any) {
		f.connected.Store(false)
		f.logger.Warn("Disconnected from hub")
	})

	f.io.On(types.EventName(eventStates), f.handleStates)
	f.io.On(types.EventName(eventStateChanged), f.handleStateChanged)

	opCtx, cancel := context.WithTimeout(ctx, f.opts.ConnectTimeout)
	defer cancel()

	f.io.Connect()

	select {
	case <-opCtx.Done():
		f.io.Disconnect()
		return fmt.Errorf("timed out waiting for initial hub connection")
	case err := <-ready:
		if err != nil {
			f.io.Disconnect()
			return fmt.Errorf("hub connection failed: %w", err)
		}
		return nil
	}
}

// Close disconnects from the hub.
func (f *Feed) Close() {
	if f.io != nil {
		f.logger.Debug("Disconnecting from hub")
		f.io.Disconnect()
	}
}

// Connected reports whether the hub connection is currently up.
func (f *Feed) Connected() bool {
	return f.connected.Load()
}

// Socket exposes the underlying connection for request/response exchanges
// that ride the same hub session. Nil before Start.
func (f *Feed) Socket() *socket.Socket {
	return f.io
}

// WaitSnapshot blocks until the first full state dump has been applied.
func (f *Feed) WaitSnapshot(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.snapshotCh:
		return nil
	}
}

func (f *Feed) handleStates(data ...any) {
	if len(data) == 0 {
		return
	}
	var entities []Entity
	switch payload := data[0].(type) {
	case []any:
		for _, item := range payload {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if e, ok := decodeEntity(m, ""); ok {
				entities = append(entities, e)
			}
		}
	case map[string]any:
		for id, item := range payload {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if e, ok := decodeEntity(m, id); ok {
				entities = append(entities, e)
			}
		}
	default:
		f.logger.Warn("Unexpected states payload shape", "type", fmt.Sprintf("%T", data[0]))
		return
	}

	f.store.Replace(entities)
	f.logger.Info("Applied full state dump", "entities", len(entities))
	f.snapshotOnce.Do(func() { close(f.snapshotCh) })
	f.notify("")
}

func (f *Feed) handleStateChanged(data ...any) {
	if len(data) == 0 {
		return
	}
	payload, ok := data[0].(map[string]any)
	if !ok {
		return
	}

	// Deltas arrive either flat or with the fresh fields nested under
	// new_state. A delta with a null new_state means the entity was
	// removed.
	fields := payload
	if nested, found := payload["new_state"]; found {
		m, ok := nested.(map[string]any)
		if !ok {
			if id := stringField(payload, "entity_id"); id != "" {
				f.store.Remove(id)
				f.notify(id)
			}
			return
		}
		fields = m
	}

	id := stringField(fields, "entity_id")
	if id == "" {
		id = stringField(payload, "entity_id")
	}
	e, ok := decodeEntity(fields, id)
	if !ok {
		f.logger.Debug("Ignoring state_changed without entity id")
		return
	}
	f.store.Put(e)
	f.notify(e.ID)
}

func (f *Feed) notify(entityID string) {
	if f.opts.OnEvent != nil {
		f.opts.OnEvent(entityID)
	}
}

// decodeEntity reads a hub entity record. fallbackID is used when the record
// itself carries no entity_id (map-keyed dumps).
func decodeEntity(m map[string]any, fallbackID string) (Entity, bool) {
	id := stringField(m, "entity_id")
	if id == "" {
		id = fallbackID
	}
	if id == "" {
		return Entity{}, false
	}

	e := Entity{
		ID:          id,
		State:       stringField(m, "state"),
		LastUpdated: stringField(m, "last_updated", "last_changed"),
	}
	if attrs, ok := m["attributes"].(map[string]any); ok {
		e.Attributes = attrs
	}
	return e, true
}

// stringField reads the first present key as a string, rendering numbers so
// epoch markers still fingerprint stably.
func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(s)
		}
	}
	return ""
}
