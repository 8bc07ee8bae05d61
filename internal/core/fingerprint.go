package core

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// FingerprintPolicy задает опрос бэкенда после connected
type FingerprintPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Verification - снимок состояния сверки отпечатка
type Verification struct {
	LocalCode    string
	Acknowledged bool
	Confirmed    bool
}

// FingerprintGate не пускает сообщения, пока обе стороны не сверили код
type FingerprintGate struct {
	mu      sync.Mutex
	backend IBackend
	clock   clock.Clock
	policy  FingerprintPolicy

	code         string
	acknowledged bool
	confirmed    bool
	gen          uint64
}

// NewFingerprintGate создает шлюз сверки отпечатка
func NewFingerprintGate(backend IBackend, clk clock.Clock, policy FingerprintPolicy) *FingerprintGate {
	if clk == nil {
		clk = clock.New()
	}
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 200 * time.Millisecond
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	return &FingerprintGate{
		backend: backend,
		clock:   clk,
		policy:  policy,
	}
}

// Fetch опрашивает is_connected, затем get_fingerprint с экспоненциальной задержкой.
// Код получается один раз на соединение; повторный вызов возвращает сохраненный.
func (g *FingerprintGate) Fetch(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.code != "" {
		code := g.code
		g.mu.Unlock()
		return code, nil
	}
	gen := g.gen
	g.mu.Unlock()

	delay := g.policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= g.policy.Attempts; attempt++ {
		code, err := g.tryFetch(ctx)
		if err == nil && code != "" {
			g.mu.Lock()
			if gen != g.gen {
				g.mu.Unlock()
				return "", ErrPeerLost
			}
			g.code = code
			g.mu.Unlock()

			Info("🔐 Отпечаток получен с попытки %d", attempt)
			return code, nil
		}
		if err != nil {
			lastErr = err
		}
		Debug("Отпечаток еще не готов (попытка %d/%d), ждем %v", attempt, g.policy.Attempts, delay)

		if attempt == g.policy.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-g.clock.After(delay):
		}

		delay *= 2
		if delay > g.policy.MaxDelay {
			delay = g.policy.MaxDelay
		}
	}

	if lastErr != nil {
		return "", Wrap(CodeFailedPrecondition, ErrFingerprintUnavailable.Message, lastErr)
	}
	return "", ErrFingerprintUnavailable
}

func (g *FingerprintGate) tryFetch(ctx context.Context) (string, error) {
	connected, err := g.backend.IsConnected(ctx)
	if err != nil {
		return "", err
	}
	if !connected {
		return "", nil
	}
	return g.backend.GetFingerprint(ctx)
}

// Acknowledge отмечает, что пользователь сверил код с собеседником
func (g *FingerprintGate) Acknowledge(ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmed {
		return
	}
	g.acknowledged = ok
}

// CanConfirm сообщает, доступно ли действие confirm
func (g *FingerprintGate) CanConfirm() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.code != "" && g.acknowledged && !g.confirmed
}

// Confirm подтверждает отпечаток; после этого канал сообщений открыт
func (g *FingerprintGate) Confirm() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.confirmed {
		return nil
	}
	if g.code == "" {
		return ErrFingerprintUnavailable
	}
	if !g.acknowledged {
		return ErrNotAcknowledged
	}
	g.confirmed = true
	Info("✅ Отпечаток подтвержден")
	return nil
}

// Cancel разрывает соединение и сбрасывает сверку
func (g *FingerprintGate) Cancel(ctx context.Context) error {
	g.Reset()

	if err := g.backend.Disconnect(ctx); err != nil {
		Warn("Ошибка отключения при отмене сверки: %v", err)
		return Wrap(CodeBackendFailure, "failed to disconnect", err)
	}
	Info("🚫 Сверка отпечатка отменена")
	return nil
}

// Confirmed реализует VerificationReader
func (g *FingerprintGate) Confirmed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirmed
}

// Verification возвращает снимок состояния
func (g *FingerprintGate) Verification() Verification {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Verification{
		LocalCode:    g.code,
		Acknowledged: g.acknowledged,
		Confirmed:    g.confirmed,
	}
}

// Reset забывает код текущего соединения; незавершенный Fetch будет отброшен
func (g *FingerprintGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	g.code = ""
	g.acknowledged = false
	g.confirmed = false
}
