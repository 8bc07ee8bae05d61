package core

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ConnectionStatus - состояние канала после рукопожатия
type ConnectionStatus int

const (
	StatusConnected ConnectionStatus = iota
	StatusProblem
	StatusRecovering
	StatusDisconnected
	StatusFailed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnected:
		return "Connected"
	case StatusProblem:
		return "Problem"
	case StatusRecovering:
		return "Recovering"
	case StatusDisconnected:
		return "Disconnected"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// CanSend сообщает, разрешена ли отправка в этом состоянии
func (s ConnectionStatus) CanSend() bool {
	return s == StatusConnected
}

// HealthPolicy задает периоды ожидания перед очисткой истории
type HealthPolicy struct {
	PeerLeftGrace       time.Duration
	FailedRecoveryGrace time.Duration
}

// DefaultHealthPolicy возвращает эталонные значения
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		PeerLeftGrace:       15 * time.Second,
		FailedRecoveryGrace: 5 * time.Second,
	}
}

// HistoryWiper уничтожает историю сообщений
type HistoryWiper interface {
	Clear()
}

// ClearanceTimer - снимок запланированной очистки
type ClearanceTimer struct {
	ID          uint64
	ScheduledAt time.Time
	Grace       time.Duration
	Reason      EventType
}

// FiresAt возвращает момент срабатывания
func (t ClearanceTimer) FiresAt() time.Time {
	return t.ScheduledAt.Add(t.Grace)
}

type clearanceTimer struct {
	ClearanceTimer
	t *clock.Timer
}

// HealthMachine ведет состояние соединения по событиям бэкенда
// и владеет единственным таймером очистки истории
type HealthMachine struct {
	mu      sync.Mutex
	clock   clock.Clock
	policy  HealthPolicy
	wiper   HistoryWiper
	metrics *Metrics

	status ConnectionStatus
	timer  *clearanceTimer
	nextID uint64
	wipes  int

	onStatus func(ConnectionStatus)
	onWipe   func()
}

// NewHealthMachine создает машину состояний в статусе Connected
func NewHealthMachine(clk clock.Clock, policy HealthPolicy, wiper HistoryWiper, metrics *Metrics) *HealthMachine {
	if clk == nil {
		clk = clock.New()
	}
	if metrics == nil {
		metrics = nopMetrics()
	}
	def := DefaultHealthPolicy()
	if policy.PeerLeftGrace <= 0 {
		policy.PeerLeftGrace = def.PeerLeftGrace
	}
	if policy.FailedRecoveryGrace <= 0 {
		policy.FailedRecoveryGrace = def.FailedRecoveryGrace
	}
	return &HealthMachine{
		clock:   clk,
		policy:  policy,
		wiper:   wiper,
		metrics: metrics,
		status:  StatusConnected,
	}
}

// SetStatusCallback вызывается при каждой смене статуса
func (h *HealthMachine) SetStatusCallback(cb func(ConnectionStatus)) {
	h.mu.Lock()
	h.onStatus = cb
	h.mu.Unlock()
}

// SetWipeCallback вызывается после очистки истории
func (h *HealthMachine) SetWipeCallback(cb func()) {
	h.mu.Lock()
	h.onWipe = cb
	h.mu.Unlock()
}

// Status - единственный авторитетный источник текущего статуса
func (h *HealthMachine) Status() ConnectionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Wipes возвращает число выполненных очисток
func (h *HealthMachine) Wipes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wipes
}

// PendingTimer возвращает запланированную очистку, если она есть
func (h *HealthMachine) PendingTimer() (ClearanceTimer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer == nil {
		return ClearanceTimer{}, false
	}
	return h.timer.ClearanceTimer, true
}

// HandleEvent применяет событие канала. Возвращает true, если статус изменился.
func (h *HealthMachine) HandleEvent(ev EventType) bool {
	h.mu.Lock()

	// после очистки истории сессия завершена, вернуть ее может только восстановление
	if h.status == StatusFailed && ev != EventConnected && ev != EventConnectionRecovered {
		h.mu.Unlock()
		Debug("Событие %s проигнорировано: история уже очищена", ev)
		return false
	}

	var next ConnectionStatus
	switch ev {
	case EventConnected, EventConnectionRecovered:
		h.cancelLocked()
		next = StatusConnected
	case EventConnectionProblem:
		next = StatusProblem
	case EventConnectionRecovering:
		next = StatusRecovering
	case EventConnectionFailed:
		next = StatusDisconnected
		if h.timer == nil {
			h.scheduleLocked(h.policy.FailedRecoveryGrace, ev)
		}
	case EventDisconnected:
		next = StatusDisconnected
		h.cancelLocked()
		h.scheduleLocked(h.policy.PeerLeftGrace, ev)
	default:
		h.mu.Unlock()
		return false
	}

	changed, notify := h.setStatusLocked(next)
	h.mu.Unlock()

	notify()
	return changed
}

// Activate переводит машину в Connected для нового подтвержденного соединения
func (h *HealthMachine) Activate() {
	h.mu.Lock()
	h.cancelLocked()
	_, notify := h.setStatusLocked(StatusConnected)
	h.mu.Unlock()
	notify()
}

// CancelTimer отменяет запланированную очистку; без таймера ничего не делает
func (h *HealthMachine) CancelTimer() {
	h.mu.Lock()
	h.cancelLocked()
	h.mu.Unlock()
}

func (h *HealthMachine) scheduleLocked(grace time.Duration, reason EventType) {
	h.nextID++
	id := h.nextID
	h.timer = &clearanceTimer{
		ClearanceTimer: ClearanceTimer{
			ID:          id,
			ScheduledAt: h.clock.Now(),
			Grace:       grace,
			Reason:      reason,
		},
		t: h.clock.AfterFunc(grace, func() { h.fire(id) }),
	}
	Info("⏳ Очистка истории запланирована через %v (%s)", grace, reason)
}

func (h *HealthMachine) cancelLocked() {
	if h.timer == nil {
		return
	}
	h.timer.t.Stop()
	Info("Очистка истории #%d отменена", h.timer.ID)
	h.timer = nil
}

// fire срабатывает по таймеру и решает по статусу на момент срабатывания
func (h *HealthMachine) fire(id uint64) {
	h.mu.Lock()
	if h.timer == nil || h.timer.ID != id {
		h.mu.Unlock()
		return
	}
	h.timer = nil

	if h.status == StatusConnected {
		h.mu.Unlock()
		return
	}

	if h.wiper != nil {
		h.wiper.Clear()
	}
	h.wipes++
	_, notify := h.setStatusLocked(StatusFailed)
	onWipe := h.onWipe
	h.mu.Unlock()

	h.metrics.HistoryWipes.Inc()
	Warn("🧹 Собеседник недоступен, история сообщений уничтожена")
	if onWipe != nil {
		onWipe()
	}
	notify()
}

func (h *HealthMachine) setStatusLocked(next ConnectionStatus) (bool, func()) {
	if h.status == next {
		return false, func() {}
	}
	prev := h.status
	h.status = next
	h.metrics.LinkStatus.Set(float64(next))
	onStatus := h.onStatus
	return true, func() {
		Info("Статус соединения: %s -> %s", prev, next)
		if onStatus != nil {
			onStatus(next)
		}
	}
}
