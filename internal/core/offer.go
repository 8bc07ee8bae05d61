package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"SecretChat/pkg/config"
)

// OfferToken - приглашение с ограниченным временем жизни
type OfferToken struct {
	Payload   string
	CreatedAt time.Time
	TTL       time.Duration
	Seq       uint64
}

// ExpiresAt возвращает момент, начиная с которого токен недействителен
func (t OfferToken) ExpiresAt() time.Time {
	return t.CreatedAt.Add(t.TTL)
}

// ValidAt сообщает, принимается ли токен в момент now
func (t OfferToken) ValidAt(now time.Time) bool {
	return now.Before(t.ExpiresAt())
}

// OfferManager владеет единственным активным токеном приглашения
type OfferManager struct {
	mu      sync.Mutex
	backend IBackend
	clock   clock.Clock
	metrics *Metrics

	ctx    context.Context
	ttl    time.Duration
	open   bool
	frozen bool

	seq    uint64
	token  *OfferToken
	expiry *clock.Timer
	ticker *clock.Ticker
	stopCh chan struct{}

	onToken   func(OfferToken)
	onExpired func(OfferToken)
	onError   func(error)
	onTick    func(time.Duration)
}

// NewOfferManager создает менеджер приглашений
func NewOfferManager(backend IBackend, clk clock.Clock, metrics *Metrics) *OfferManager {
	if clk == nil {
		clk = clock.New()
	}
	if metrics == nil {
		metrics = nopMetrics()
	}
	return &OfferManager{
		backend: backend,
		clock:   clk,
		metrics: metrics,
	}
}

// SetTokenCallback вызывается при получении нового токена
func (m *OfferManager) SetTokenCallback(cb func(OfferToken)) {
	m.mu.Lock()
	m.onToken = cb
	m.mu.Unlock()
}

// SetExpiredCallback вызывается, когда токен достиг TTL
func (m *OfferManager) SetExpiredCallback(cb func(OfferToken)) {
	m.mu.Lock()
	m.onExpired = cb
	m.mu.Unlock()
}

// SetErrorCallback вызывается при ошибке генерации
func (m *OfferManager) SetErrorCallback(cb func(error)) {
	m.mu.Lock()
	m.onError = cb
	m.mu.Unlock()
}

// SetTickCallback вызывается раз в секунду с оставшимся временем
func (m *OfferManager) SetTickCallback(cb func(time.Duration)) {
	m.mu.Lock()
	m.onTick = cb
	m.mu.Unlock()
}

// Open открывает экран приглашения и генерирует первый токен.
// TTL фиксируется на все время, пока экран открыт.
func (m *OfferManager) Open(ctx context.Context, ttlSeconds int) (OfferToken, error) {
	m.mu.Lock()
	if m.open {
		m.closeLocked()
	}
	m.ctx = ctx
	m.ttl = time.Duration(config.ClampOfferTTL(ttlSeconds)) * time.Second
	m.open = true
	m.frozen = false
	m.stopCh = make(chan struct{})
	m.ticker = m.clock.Ticker(time.Second)
	go m.countdown(m.ticker, m.stopCh)
	m.mu.Unlock()

	Info("🎟️ Экран приглашения открыт, TTL %v", m.TTL())
	return m.Generate(ctx)
}

// Generate отбрасывает текущий токен и запрашивает новый у бэкенда.
// Результат устаревшего запроса отбрасывается с ErrOfferSuperseded.
func (m *OfferManager) Generate(ctx context.Context) (OfferToken, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return OfferToken{}, ErrOfferClosed
	}
	m.seq++
	seq := m.seq
	m.token = nil
	m.frozen = false
	m.stopExpiryLocked()
	m.mu.Unlock()

	payload, err := m.backend.GenerateOffer(ctx)

	m.mu.Lock()
	if seq != m.seq || !m.open {
		m.mu.Unlock()
		Debug("Результат генерации #%d отброшен", seq)
		return OfferToken{}, ErrOfferSuperseded
	}

	if err == nil && strings.TrimSpace(payload) == "" {
		err = ErrEmptyPayload
	}
	if err != nil {
		onError := m.onError
		m.mu.Unlock()

		wrapped := Wrap(CodeBackendFailure, "failed to generate offer", err)
		Error("❌ Не удалось создать приглашение: %v", err)
		if onError != nil {
			onError(wrapped)
		}
		return OfferToken{}, wrapped
	}

	token := OfferToken{
		Payload:   payload,
		CreatedAt: m.clock.Now(),
		TTL:       m.ttl,
		Seq:       seq,
	}
	m.token = &token
	m.expiry = m.clock.AfterFunc(m.ttl, func() { m.expire(seq) })
	onToken := m.onToken
	m.mu.Unlock()

	m.metrics.OffersGenerated.Inc()
	Info("✅ Приглашение #%d создано, действует до %s", seq, token.ExpiresAt().Format("15:04:05"))
	if onToken != nil {
		onToken(token)
	}
	return token, nil
}

func (m *OfferManager) expire(seq uint64) {
	m.mu.Lock()
	if seq != m.seq || !m.open || m.token == nil {
		m.mu.Unlock()
		return
	}
	expired := *m.token
	m.token = nil
	m.expiry = nil
	frozen := m.frozen
	ctx := m.ctx
	onExpired := m.onExpired
	m.mu.Unlock()

	m.metrics.OffersExpired.Inc()
	Info("⌛ Приглашение #%d истекло", seq)
	if onExpired != nil {
		onExpired(expired)
	}

	if frozen {
		return
	}
	if _, err := m.Generate(ctx); err != nil && !errors.Is(err, ErrOfferSuperseded) && !errors.Is(err, ErrOfferClosed) {
		Warn("Автоматическая генерация приглашения не удалась: %v", err)
	}
}

func (m *OfferManager) countdown(ticker *clock.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			onTick := m.onTick
			m.mu.Unlock()
			if onTick != nil {
				onTick(m.Remaining())
			}
		}
	}
}

// Current возвращает действующий токен
func (m *OfferManager) Current() (OfferToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil || !m.token.ValidAt(m.clock.Now()) {
		return OfferToken{}, false
	}
	return *m.token, true
}

// Accepts проверяет, что payload совпадает с действующим токеном
func (m *OfferManager) Accepts(payload string) bool {
	token, ok := m.Current()
	return ok && token.Payload == payload
}

// Remaining возвращает оставшееся время жизни токена
func (m *OfferManager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return 0
	}
	left := m.token.ExpiresAt().Sub(m.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// TTL возвращает зафиксированное время жизни токенов
func (m *OfferManager) TTL() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttl
}

// IsOpen сообщает, открыт ли экран приглашения
func (m *OfferManager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Freeze останавливает автоматическую регенерацию, пока применяется ответ.
// Токен остается действительным до собственного истечения.
func (m *OfferManager) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

// Close закрывает экран: останавливает таймеры и уничтожает токен
func (m *OfferManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *OfferManager) closeLocked() {
	if !m.open {
		return
	}
	m.open = false
	m.frozen = false
	m.seq++
	m.token = nil
	m.stopExpiryLocked()
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
}

func (m *OfferManager) stopExpiryLocked() {
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
}
