// Package events provides the internal pub/sub bus connecting the engine to
// the API layer and other observers without direct imports.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSessionStarted   EventType = "SESSION_STARTED"
	EventSessionCompleted EventType = "SESSION_COMPLETED"
	EventSessionPaused    EventType = "SESSION_PAUSED"
	EventSessionResumed   EventType = "SESSION_RESUMED"
	EventTradeOpened      EventType = "TRADE_OPENED"
	EventTradeClosed      EventType = "TRADE_CLOSED"
	EventStopTriggered    EventType = "STOP_TRIGGERED"
	EventSignalGenerated  EventType = "SIGNAL_GENERATED"
	EventRegimeChanged    EventType = "REGIME_CHANGED"
	EventBreakerUpdate    EventType = "BREAKER_UPDATE"
	EventCandleClosed     EventType = "CANDLE_CLOSED"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(sessionID, symbol string, price, quoteAmount float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"session_id":   sessionID,
			"symbol":       symbol,
			"price":        price,
			"quote_amount": quoteAmount,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(sessionID, symbol string, price, pnl float64, reason string) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"symbol":     symbol,
			"price":      price,
			"pnl":        pnl,
			"reason":     reason,
		},
	})
}

// PublishRegimeChanged publishes a regime change event
func (eb *EventBus) PublishRegimeChanged(sessionID, from, to string, confidence float64) {
	eb.Publish(Event{
		Type: EventRegimeChanged,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"from":       from,
			"to":         to,
			"confidence": confidence,
		},
	})
}

// PublishBreakerUpdate publishes a circuit breaker state change
func (eb *EventBus) PublishBreakerUpdate(sessionID, state, reason string) {
	eb.Publish(Event{
		Type: EventBreakerUpdate,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"state":      state,
			"reason":     reason,
		},
	})
}

// PublishCandleClosed publishes a closed candle from a live stream
func (eb *EventBus) PublishCandleClosed(symbol, interval string, openTime int64, close, volume float64) {
	eb.Publish(Event{
		Type: EventCandleClosed,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"interval":  interval,
			"open_time": openTime,
			"close":     close,
			"volume":    volume,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
