package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// fakeBackend - управляемый вручную бэкенд для сценарных тестов
type fakeBackend struct {
	mu sync.Mutex

	events      chan Event
	subscribed  int
	unsubscribe int

	offers      int
	offerErr    error
	answerOK    bool
	answerErr   error
	answers     []string
	connected   bool
	fingerprint string
	sendOK      bool
	sent        []string
	disconnects int

	// sendGate позволяет задержать ответ SendText
	sendGate chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events:      make(chan Event, 32),
		answerOK:    true,
		connected:   true,
		fingerprint: "a1b2c3d4e5f6",
		sendOK:      true,
	}
}

func (f *fakeBackend) GenerateOffer(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offerErr != nil {
		return "", f.offerErr
	}
	f.offers++
	return fmt.Sprintf("offer-%d", f.offers), nil
}

func (f *fakeBackend) AcceptOfferAndCreateAnswer(ctx context.Context, offer string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return "answer-for-" + offer, nil
}

func (f *fakeBackend) SetAnswer(ctx context.Context, answer string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer)
	return f.answerOK, f.answerErr
}

func (f *fakeBackend) AcceptAnswer(ctx context.Context, answer string) (bool, error) {
	return f.SetAnswer(ctx, answer)
}

func (f *fakeBackend) IsConnected(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected, nil
}

func (f *fakeBackend) GetFingerprint(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fingerprint, nil
}

func (f *fakeBackend) SendText(ctx context.Context, msg string) (bool, error) {
	f.mu.Lock()
	gate := f.sendGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.sendOK, nil
}

func (f *fakeBackend) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeBackend) Subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed++
	return f.events, func() {
		f.mu.Lock()
		f.unsubscribe++
		f.mu.Unlock()
	}
}

func (f *fakeBackend) emit(t EventType) {
	f.events <- StateEvent(t)
}

func (f *fakeBackend) emitMessage(p MessagePayload) {
	f.events <- NewMessageEvent(p)
}

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeBackend) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// fixedStatus - StatusReader с изменяемым значением
type fixedStatus struct {
	mu     sync.Mutex
	status ConnectionStatus
}

func (s *fixedStatus) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fixedStatus) set(status ConnectionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

type fixedVerification bool

func (v fixedVerification) Confirmed() bool { return bool(v) }

// wipeCounter считает вызовы очистки истории
type wipeCounter struct {
	mu sync.Mutex
	n  int
}

func (w *wipeCounter) Clear() {
	w.mu.Lock()
	w.n++
	w.mu.Unlock()
}

func (w *wipeCounter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// advance сдвигает мок-часы и дает сработать колбэкам AfterFunc,
// которые clock.Mock запускает в отдельных горутинах
func advance(m *clock.Mock, d time.Duration) {
	m.Add(d)
	time.Sleep(5 * time.Millisecond)
}

// eventually - короткая обертка над require.Eventually
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}
