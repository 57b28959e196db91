// Package hooks provides lifecycle event hooks around store operations.
// Pre-hooks run synchronously and may cancel the operation by returning an
// error; post-hooks run synchronously or asynchronously at the listener's
// preference.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/INLOpen/nexuskv/core"
)

// EventType defines the type of a hook event.
type EventType string

const (
	// Record lifecycle events
	EventPrePutRecord     EventType = "PrePutRecord"
	EventPostPutRecord    EventType = "PostPutRecord"
	EventPreGetRecord     EventType = "PreGetRecord"
	EventPostGetRecord    EventType = "PostGetRecord"
	EventPreDeleteRecord  EventType = "PreDeleteRecord"
	EventPostDeleteRecord EventType = "PostDeleteRecord"
	EventOnRecordExpire   EventType = "OnRecordExpire"

	// Query lifecycle events
	EventPreQuery  EventType = "PreQuery"
	EventPostQuery EventType = "PostQuery"
)

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete. Useful for graceful shutdown.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	// Type returns the type of the event.
	Type() EventType
	// Payload returns the data associated with the event.
	Payload() interface{}
}

// HookListener is implemented by components that want to observe events.
type HookListener interface {
	// OnEvent is called when a registered event fires. For Pre events a
	// non-nil error cancels the operation.
	OnEvent(ctx context.Context, event HookEvent) error
	// Priority orders listeners for one event; lower runs first.
	Priority() int
	// IsAsync requests asynchronous execution. Honored for Post events only.
	IsAsync() bool
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PrePutRecordPayload contains the data for a PrePutRecord event.
// Fields are pointers to allow listeners to modify the write before it lands.
type PrePutRecordPayload struct {
	Key    *core.Key
	Policy *core.WritePolicy
	Bins   *[]core.Bin
}

// NewPrePutRecordEvent creates a new event for before a record is written.
func NewPrePutRecordEvent(payload PrePutRecordPayload) HookEvent {
	return &BaseEvent{eventType: EventPrePutRecord, payload: payload}
}

// PostPutRecordPayload contains the data for a PostPutRecord event.
type PostPutRecordPayload struct {
	Key        core.Key
	Generation uint32
	Error      error
}

// NewPostPutRecordEvent creates a new event for after a record is written.
func NewPostPutRecordEvent(payload PostPutRecordPayload) HookEvent {
	return &BaseEvent{eventType: EventPostPutRecord, payload: payload}
}

// PreGetRecordPayload contains the data for a PreGetRecord event.
type PreGetRecordPayload struct {
	Key      *core.Key
	BinNames *[]string
}

// NewPreGetRecordEvent creates a new event for before a record is read.
func NewPreGetRecordEvent(payload PreGetRecordPayload) HookEvent {
	return &BaseEvent{eventType: EventPreGetRecord, payload: payload}
}

// PostGetRecordPayload contains the data for a PostGetRecord event.
// Record is a pointer so listeners can observe or adjust the result.
type PostGetRecordPayload struct {
	Key    core.Key
	Record *core.Record
	Error  error
}

// NewPostGetRecordEvent creates a new event for after a record is read.
func NewPostGetRecordEvent(payload PostGetRecordPayload) HookEvent {
	return &BaseEvent{eventType: EventPostGetRecord, payload: payload}
}

// PreDeleteRecordPayload contains the data for a PreDeleteRecord event.
type PreDeleteRecordPayload struct {
	Key *core.Key
}

// NewPreDeleteRecordEvent creates a new event for before a record is deleted.
func NewPreDeleteRecordEvent(payload PreDeleteRecordPayload) HookEvent {
	return &BaseEvent{eventType: EventPreDeleteRecord, payload: payload}
}

// PostDeleteRecordPayload contains the data for a PostDeleteRecord event.
type PostDeleteRecordPayload struct {
	Key     core.Key
	Existed bool
	Error   error
}

// NewPostDeleteRecordEvent creates a new event for after a record is deleted.
func NewPostDeleteRecordEvent(payload PostDeleteRecordPayload) HookEvent {
	return &BaseEvent{eventType: EventPostDeleteRecord, payload: payload}
}

// RecordExpirePayload contains the data for an OnRecordExpire event, fired
// when the sweeper reaps a record or a read observes one past its deadline.
type RecordExpirePayload struct {
	Key        core.Key
	Generation uint32
}

// NewRecordExpireEvent creates a new event for a reaped record.
func NewRecordExpireEvent(payload RecordExpirePayload) HookEvent {
	return &BaseEvent{eventType: EventOnRecordExpire, payload: payload}
}

// PreQueryPayload contains the data for a PreQuery event.
type PreQueryPayload struct {
	Namespace *string
	Set       *string
	BinName   *string
}

// NewPreQueryEvent creates an event for before a query executes.
func NewPreQueryEvent(payload PreQueryPayload) HookEvent {
	return &BaseEvent{eventType: EventPreQuery, payload: payload}
}

// PostQueryPayload contains the data for a PostQuery event.
type PostQueryPayload struct {
	Namespace string
	Set       string
	BinName   string
	Matches   int
	Duration  time.Duration
	Error     error
}

// NewPostQueryEvent creates an event for after a query has executed.
func NewPostQueryEvent(payload PostQueryPayload) HookEvent {
	return &BaseEvent{eventType: EventPostQuery, payload: payload}
}

// listenerWithPriority wraps a listener with its priority.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// The map stores slices of listeners, kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup // For tracking async listeners
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		// Default to a discard logger to prevent nil panics if no logger is provided.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]

	// sort.Search finds the first index i where l[i].priority >= item.priority.
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority >= item.priority
	})

	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item

	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		// Pre-hooks MUST be synchronous to allow for cancellation.
		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			m.wg.Add(1)
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
