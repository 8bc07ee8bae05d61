package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHealth() (*HealthMachine, *wipeCounter, *clock.Mock) {
	mock := clock.NewMock()
	wiper := &wipeCounter{}
	h := NewHealthMachine(mock, DefaultHealthPolicy(), wiper, nil)
	return h, wiper, mock
}

func TestHealthMachine_TransitionTable(t *testing.T) {
	tests := []struct {
		name      string
		events    []EventType
		want      ConnectionStatus
		wantTimer bool
	}{
		{"problem", []EventType{EventConnectionProblem}, StatusProblem, false},
		{"recovering", []EventType{EventConnectionRecovering}, StatusRecovering, false},
		{"recovered", []EventType{EventConnectionProblem, EventConnectionRecovered}, StatusConnected, false},
		{"failed", []EventType{EventConnectionFailed}, StatusDisconnected, true},
		{"disconnected", []EventType{EventDisconnected}, StatusDisconnected, true},
		{"connected cancels", []EventType{EventDisconnected, EventConnected}, StatusConnected, false},
		{"recovering keeps timer", []EventType{EventDisconnected, EventConnectionRecovering}, StatusRecovering, true},
		{"problem keeps timer", []EventType{EventConnectionFailed, EventConnectionProblem}, StatusProblem, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHealth()
			for _, ev := range tt.events {
				h.HandleEvent(ev)
			}
			assert.Equal(t, tt.want, h.Status())
			_, pending := h.PendingTimer()
			assert.Equal(t, tt.wantTimer, pending)
		})
	}
}

func TestHealthMachine_IdempotentStatus(t *testing.T) {
	h, _, _ := newTestHealth()

	assert.False(t, h.HandleEvent(EventConnected), "Connected -> Connected ничего не меняет")
	assert.True(t, h.HandleEvent(EventConnectionProblem))
	assert.False(t, h.HandleEvent(EventConnectionProblem))
	assert.True(t, h.HandleEvent(EventConnectionRecovered))
	assert.False(t, h.HandleEvent(EventConnectionRecovered))
	assert.False(t, h.HandleEvent(EventType("unknown")))
}

func TestHealthMachine_RecoveredPreventsWipe(t *testing.T) {
	h, wiper, mock := newTestHealth()

	h.HandleEvent(EventDisconnected)
	advance(mock, 14*time.Second)
	h.HandleEvent(EventConnectionRecovered)

	_, pending := h.PendingTimer()
	assert.False(t, pending, "recovered отменяет таймер синхронно")

	advance(mock, time.Hour)
	assert.Equal(t, 0, wiper.count())
	assert.Equal(t, StatusConnected, h.Status())
}

func TestHealthMachine_WipeExactlyOnce(t *testing.T) {
	h, wiper, mock := newTestHealth()

	var wiped atomic.Int32
	h.SetWipeCallback(func() { wiped.Add(1) })

	h.HandleEvent(EventDisconnected)
	timer, ok := h.PendingTimer()
	require.True(t, ok)
	assert.Equal(t, 15*time.Second, timer.Grace)
	assert.Equal(t, mock.Now().Add(15*time.Second), timer.FiresAt())

	mock.Add(15 * time.Second)
	eventually(t, func() bool { return wiper.count() == 1 }, "история должна быть очищена")
	assert.Equal(t, StatusFailed, h.Status())
	assert.Equal(t, 1, h.Wipes())

	// повторное срабатывание устаревшего таймера ничего не делает
	h.fire(timer.ID)
	advance(mock, time.Minute)
	assert.Equal(t, 1, wiper.count())
	eventually(t, func() bool { return wiped.Load() == 1 }, "колбэк очистки вызван один раз")
}

func TestHealthMachine_ScenarioFlapWithinGrace(t *testing.T) {
	h, wiper, mock := newTestHealth()

	h.HandleEvent(EventDisconnected)
	first, ok := h.PendingTimer()
	require.True(t, ok)

	advance(mock, 10*time.Second)
	h.HandleEvent(EventConnectionRecovering)
	still, ok := h.PendingTimer()
	require.True(t, ok, "recovering не трогает таймер")
	assert.Equal(t, first.ID, still.ID)

	advance(mock, 2*time.Second)
	h.HandleEvent(EventConnectionRecovered)

	advance(mock, 8*time.Second)
	assert.Equal(t, 0, wiper.count(), "на 20с очистки нет")
	assert.Equal(t, StatusConnected, h.Status())
}

func TestHealthMachine_FailedDoesNotReplacePendingTimer(t *testing.T) {
	h, wiper, mock := newTestHealth()

	h.HandleEvent(EventDisconnected)
	first, _ := h.PendingTimer()

	advance(mock, 3*time.Second)
	h.HandleEvent(EventConnectionFailed)
	second, ok := h.PendingTimer()
	require.True(t, ok)
	assert.Equal(t, first.ID, second.ID, "connection-failed не заменяет ожидающий таймер")

	advance(mock, 6*time.Second)
	assert.Equal(t, 0, wiper.count(), "короткий период failed-recovery не применяется")

	mock.Add(6 * time.Second)
	eventually(t, func() bool { return wiper.count() == 1 }, "очистка по исходному таймеру")
}

func TestHealthMachine_DisconnectReplacesTimer(t *testing.T) {
	h, wiper, mock := newTestHealth()

	h.HandleEvent(EventConnectionFailed)
	first, _ := h.PendingTimer()
	assert.Equal(t, 5*time.Second, first.Grace)

	advance(mock, 2*time.Second)
	h.HandleEvent(EventDisconnected)
	second, _ := h.PendingTimer()
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 15*time.Second, second.Grace)

	advance(mock, 4*time.Second)
	assert.Equal(t, 0, wiper.count(), "старый таймер отменен")

	mock.Add(11 * time.Second)
	eventually(t, func() bool { return wiper.count() == 1 }, "очистка по новому таймеру")
}

func TestHealthMachine_FireReadsLiveStatus(t *testing.T) {
	h, wiper, _ := newTestHealth()

	h.HandleEvent(EventDisconnected)
	timer, _ := h.PendingTimer()

	// статус изменился в обход событий, таймер должен прочитать текущее значение
	h.mu.Lock()
	h.status = StatusConnected
	h.mu.Unlock()

	h.fire(timer.ID)
	assert.Equal(t, 0, wiper.count())
	assert.Equal(t, StatusConnected, h.Status())
}

func TestHealthMachine_FailedIsTerminalUntilRecovery(t *testing.T) {
	h, wiper, mock := newTestHealth()

	h.HandleEvent(EventDisconnected)
	mock.Add(15 * time.Second)
	eventually(t, func() bool { return h.Status() == StatusFailed }, "статус Failed после очистки")

	assert.False(t, h.HandleEvent(EventDisconnected))
	assert.False(t, h.HandleEvent(EventConnectionFailed))
	_, pending := h.PendingTimer()
	assert.False(t, pending, "после очистки новые таймеры не ставятся")

	assert.True(t, h.HandleEvent(EventConnectionRecovered))
	assert.Equal(t, StatusConnected, h.Status())
	assert.Equal(t, 1, wiper.count())
}

func TestHealthMachine_CancelWithoutTimer(t *testing.T) {
	h, _, _ := newTestHealth()

	assert.NotPanics(t, func() {
		h.CancelTimer()
		h.CancelTimer()
	})
	h.Activate()
	assert.Equal(t, StatusConnected, h.Status())
}

func TestHealthMachine_StatusCallback(t *testing.T) {
	h, _, _ := newTestHealth()

	var got []ConnectionStatus
	h.SetStatusCallback(func(s ConnectionStatus) { got = append(got, s) })

	h.HandleEvent(EventConnectionProblem)
	h.HandleEvent(EventConnectionProblem)
	h.HandleEvent(EventConnectionRecovering)
	h.HandleEvent(EventConnected)

	assert.Equal(t, []ConnectionStatus{StatusProblem, StatusRecovering, StatusConnected}, got)
	assert.False(t, StatusProblem.CanSend())
	assert.True(t, StatusConnected.CanSend())
}
