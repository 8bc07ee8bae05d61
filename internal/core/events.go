package core

import (
	"sync"
	"time"
)

// EventType - имя события бэкенда
type EventType string

const (
	EventConnected            EventType = "connected"
	EventMessage              EventType = "message"
	EventConnectionProblem    EventType = "connection-problem"
	EventConnectionRecovering EventType = "connection-recovering"
	EventConnectionRecovered  EventType = "connection-recovered"
	EventConnectionFailed     EventType = "connection-failed"
	EventDisconnected         EventType = "disconnected"
)

// IsLink сообщает, относится ли событие к состоянию канала
func (t EventType) IsLink() bool {
	switch t {
	case EventConnected, EventConnectionProblem, EventConnectionRecovering,
		EventConnectionRecovered, EventConnectionFailed, EventDisconnected:
		return true
	}
	return false
}

// IsTerminal сообщает, что канал потерян и после него планируется очистка истории
func (t EventType) IsTerminal() bool {
	return t == EventConnectionFailed || t == EventDisconnected
}

// Event - одно событие из потока бэкенда
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// MessagePayload содержит текст входящего сообщения.
// GroupID/PartIndex/TotalParts заполняются для частей длинного сообщения.
type MessagePayload struct {
	Text       string `json:"text"`
	GroupID    string `json:"groupId,omitempty"`
	PartIndex  int    `json:"partIndex,omitempty"`
	TotalParts int    `json:"totalParts,omitempty"`
}

var (
	ErrEventsStopped  = newError(CodeFailedPrecondition, "event stream is stopped")
	ErrEventQueueFull = newError(CodeBackendFailure, "event queue is full")
)

// EventManager - буферизованный поток событий от бэкенда к единственному подписчику.
// При переполнении событие отбрасывается, отправитель не блокируется.
type EventManager struct {
	mu      sync.RWMutex
	queue   chan Event
	stopped bool
	dropped int
}

// NewEventManager создает поток с буфером size
func NewEventManager(size int) *EventManager {
	if size <= 0 {
		size = 1
	}
	return &EventManager{queue: make(chan Event, size)}
}

// PushEvent ставит событие в очередь; время проставляется, если не задано
func (em *EventManager) PushEvent(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	em.mu.RLock()
	if em.stopped {
		em.mu.RUnlock()
		return ErrEventsStopped
	}
	select {
	case em.queue <- event:
		em.mu.RUnlock()
		return nil
	default:
	}
	em.mu.RUnlock()

	em.mu.Lock()
	em.dropped++
	em.mu.Unlock()
	return ErrEventQueueFull
}

// Events возвращает канал подписчика; он закрывается в Stop
func (em *EventManager) Events() <-chan Event {
	return em.queue
}

// Stop закрывает поток. Повторный вызов ничего не делает.
func (em *EventManager) Stop() {
	em.mu.Lock()
	defer em.mu.Unlock()
	if !em.stopped {
		em.stopped = true
		close(em.queue)
	}
}

// Dropped возвращает число событий, потерянных из-за переполнения
func (em *EventManager) Dropped() int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.dropped
}

// StateEvent создает событие канала без полезной нагрузки
func StateEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now()}
}

// NewMessageEvent создает событие входящего сообщения
func NewMessageEvent(payload MessagePayload) Event {
	return Event{Type: EventMessage, Payload: payload, Timestamp: time.Now()}
}
