package core

import (
	"context"
	"strings"
	"sync"
)

// HandshakeState - состояние рукопожатия
type HandshakeState int

const (
	HandshakeIdle HandshakeState = iota
	HandshakeOfferPending
	HandshakeOfferActive
	HandshakeAwaitingAnswer
	HandshakeEstablished
	HandshakeExpired
	HandshakeFailed
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeIdle:
		return "Idle"
	case HandshakeOfferPending:
		return "OfferPending"
	case HandshakeOfferActive:
		return "OfferActive"
	case HandshakeAwaitingAnswer:
		return "AwaitingAnswer"
	case HandshakeEstablished:
		return "Established"
	case HandshakeExpired:
		return "Expired"
	case HandshakeFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Role - сторона рукопожатия
type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleResponder
)

// AnswerMode выбирает команду бэкенда для применения ответа
type AnswerMode string

const (
	AnswerModeSet    AnswerMode = "set_answer"
	AnswerModeAccept AnswerMode = "accept_answer"
)

// Handshake проводит обмен приглашением и ответом до состояния Established
type Handshake struct {
	mu      sync.Mutex
	backend IBackend
	offers  *OfferManager
	mode    AnswerMode
	metrics *Metrics

	state   HandshakeState
	role    Role
	answer  string
	lastErr error

	// gen отсекает результаты команд, завершившихся после Reset
	gen            uint64
	applying       bool
	earlyConnected bool

	onState       func(HandshakeState)
	onEstablished func(Role)
	onError       func(error)
}

// NewHandshake создает оркестратор рукопожатия
func NewHandshake(backend IBackend, offers *OfferManager, mode AnswerMode, metrics *Metrics) *Handshake {
	if mode != AnswerModeAccept {
		mode = AnswerModeSet
	}
	if metrics == nil {
		metrics = nopMetrics()
	}
	h := &Handshake{
		backend: backend,
		offers:  offers,
		mode:    mode,
		metrics: metrics,
	}
	offers.SetTokenCallback(h.onOfferToken)
	offers.SetExpiredCallback(h.onOfferExpired)
	offers.SetErrorCallback(h.onOfferError)
	return h
}

// SetStateCallback устанавливает обработчик смены состояния
func (h *Handshake) SetStateCallback(cb func(HandshakeState)) {
	h.mu.Lock()
	h.onState = cb
	h.mu.Unlock()
}

// SetEstablishedCallback вызывается один раз при переходе в Established
func (h *Handshake) SetEstablishedCallback(cb func(Role)) {
	h.mu.Lock()
	h.onEstablished = cb
	h.mu.Unlock()
}

// SetErrorCallback получает ошибки, которые нужно показать пользователю
func (h *Handshake) SetErrorCallback(cb func(error)) {
	h.mu.Lock()
	h.onError = cb
	h.mu.Unlock()
}

// State возвращает текущее состояние
func (h *Handshake) State() HandshakeState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Role возвращает сторону текущего рукопожатия
func (h *Handshake) Role() Role {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.role
}

// Answer возвращает ответ, созданный на принимающей стороне
func (h *Handshake) Answer() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.answer
}

// LastError возвращает последнюю ошибку рукопожатия
func (h *Handshake) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Offers возвращает менеджер приглашений
func (h *Handshake) Offers() *OfferManager {
	return h.offers
}

// StartOffer переводит Idle -> OfferPending и открывает экран приглашения
func (h *Handshake) StartOffer(ctx context.Context, ttlSeconds int) (OfferToken, error) {
	h.mu.Lock()
	if h.state != HandshakeIdle {
		h.mu.Unlock()
		return OfferToken{}, ErrInvalidState
	}
	h.role = RoleInitiator
	h.lastErr = nil
	notify := h.setStateLocked(HandshakeOfferPending)
	h.mu.Unlock()
	notify()

	return h.offers.Open(ctx, ttlSeconds)
}

// Regenerate вручную заменяет текущее приглашение
func (h *Handshake) Regenerate(ctx context.Context) (OfferToken, error) {
	h.mu.Lock()
	switch h.state {
	case HandshakeOfferPending, HandshakeOfferActive, HandshakeExpired:
	default:
		h.mu.Unlock()
		return OfferToken{}, ErrInvalidState
	}
	if h.applying {
		h.mu.Unlock()
		return OfferToken{}, ErrInvalidState
	}
	notify := h.setStateLocked(HandshakeOfferPending)
	h.mu.Unlock()
	notify()

	return h.offers.Generate(ctx)
}

// ApplyAnswer применяет ответ собеседника к действующему приглашению.
// Отказ бэкенда или пустой ответ переводят рукопожатие в Failed, затем в Idle.
func (h *Handshake) ApplyAnswer(ctx context.Context, answer string) error {
	answer = strings.TrimSpace(answer)

	h.mu.Lock()
	if h.state != HandshakeOfferActive || h.applying {
		h.mu.Unlock()
		return ErrInvalidState
	}
	if answer == "" {
		h.mu.Unlock()
		return h.fail(ErrEmptyPayload)
	}
	if _, ok := h.offers.Current(); !ok {
		h.mu.Unlock()
		return ErrOfferExpired
	}
	h.applying = true
	gen := h.gen
	mode := h.mode
	h.mu.Unlock()

	h.offers.Freeze()

	var ok bool
	var err error
	if mode == AnswerModeAccept {
		ok, err = h.backend.AcceptAnswer(ctx, answer)
	} else {
		ok, err = h.backend.SetAnswer(ctx, answer)
	}

	h.mu.Lock()
	if gen != h.gen {
		h.mu.Unlock()
		return ErrSessionClosed
	}
	h.applying = false
	if err != nil || !ok {
		h.earlyConnected = false
		h.mu.Unlock()
		if err == nil {
			return h.fail(ErrInvalidPayload)
		}
		return h.fail(classifyBackendError("answer rejected", err))
	}

	notify := h.setStateLocked(HandshakeAwaitingAnswer)
	established := func() {}
	if h.earlyConnected {
		established = h.establishLocked()
	}
	h.mu.Unlock()

	Info("🤝 Ответ применен (%s)", mode)
	notify()
	established()
	return nil
}

// AcceptOffer принимает чужое приглашение и создает ответ: Idle -> AwaitingAnswer
func (h *Handshake) AcceptOffer(ctx context.Context, offer string) (string, error) {
	offer = strings.TrimSpace(offer)

	h.mu.Lock()
	if h.state != HandshakeIdle || h.applying {
		h.mu.Unlock()
		return "", ErrInvalidState
	}
	if offer == "" {
		h.mu.Unlock()
		return "", h.fail(ErrEmptyPayload)
	}
	h.role = RoleResponder
	h.lastErr = nil
	h.applying = true
	gen := h.gen
	h.mu.Unlock()

	answer, err := h.backend.AcceptOfferAndCreateAnswer(ctx, offer)

	h.mu.Lock()
	if gen != h.gen {
		h.mu.Unlock()
		return "", ErrSessionClosed
	}
	h.applying = false
	if err == nil && strings.TrimSpace(answer) == "" {
		err = ErrEmptyPayload
	}
	if err != nil {
		h.earlyConnected = false
		h.mu.Unlock()
		return "", h.fail(classifyBackendError("offer rejected", err))
	}

	h.answer = answer
	notify := h.setStateLocked(HandshakeAwaitingAnswer)
	established := func() {}
	if h.earlyConnected {
		established = h.establishLocked()
	}
	h.mu.Unlock()

	Info("📨 Ответ на приглашение создан")
	notify()
	established()
	return answer, nil
}

// HandleConnected обрабатывает событие connected от бэкенда.
// Возвращает true, если рукопожатие перешло в Established.
func (h *Handshake) HandleConnected() bool {
	h.mu.Lock()
	switch {
	case h.state == HandshakeAwaitingAnswer:
		established := h.establishLocked()
		h.mu.Unlock()
		established()
		return true
	case h.applying:
		// ответ на команду еще не пришел, применим после него
		h.earlyConnected = true
		h.mu.Unlock()
		Debug("connected пришел раньше ответа бэкенда")
		return false
	default:
		state := h.state
		h.mu.Unlock()
		Debug("connected проигнорирован в состоянии %s", state)
		return false
	}
}

// Reset возвращает рукопожатие в Idle без частичного состояния
func (h *Handshake) Reset() {
	h.mu.Lock()
	h.gen++
	h.applying = false
	h.earlyConnected = false
	h.role = RoleNone
	h.answer = ""
	h.lastErr = nil
	notify := h.setStateLocked(HandshakeIdle)
	h.mu.Unlock()

	h.offers.Close()
	notify()
}

func (h *Handshake) establishLocked() func() {
	h.earlyConnected = false
	notify := h.setStateLocked(HandshakeEstablished)
	role := h.role
	onEstablished := h.onEstablished
	return func() {
		h.offers.Close()
		Info("🔗 Соединение установлено")
		notify()
		if onEstablished != nil {
			onEstablished(role)
		}
	}
}

// classifyBackendError отделяет отказ от некорректных данных (INVALID_INPUT)
// от сбоя самого бэкенда (BACKEND_FAILURE)
func classifyBackendError(message string, err error) error {
	if CodeOf(err) == CodeInvalidInput {
		return Wrap(CodeInvalidInput, message, err)
	}
	return Wrap(CodeBackendFailure, message, err)
}

// fail проводит переход в Failed и сразу обратно в Idle
func (h *Handshake) fail(err error) error {
	h.mu.Lock()
	h.gen++
	h.applying = false
	h.earlyConnected = false
	h.lastErr = err
	h.answer = ""
	h.role = RoleNone
	failed := h.setStateLocked(HandshakeFailed)
	idle := h.setStateLocked(HandshakeIdle)
	onError := h.onError
	h.mu.Unlock()

	h.offers.Close()
	h.metrics.HandshakeFailures.Inc()
	Warn("⚠️ Рукопожатие не удалось: %v", err)
	failed()
	idle()
	if onError != nil {
		onError(err)
	}
	return err
}

func (h *Handshake) onOfferToken(OfferToken) {
	h.mu.Lock()
	var notify func()
	switch h.state {
	case HandshakeOfferPending, HandshakeExpired:
		notify = h.setStateLocked(HandshakeOfferActive)
	default:
		notify = func() {}
	}
	h.mu.Unlock()
	notify()
}

func (h *Handshake) onOfferExpired(OfferToken) {
	h.mu.Lock()
	if h.state != HandshakeOfferActive || h.applying {
		h.mu.Unlock()
		return
	}
	expired := h.setStateLocked(HandshakeExpired)
	pending := h.setStateLocked(HandshakeOfferPending)
	h.mu.Unlock()
	expired()
	pending()
}

func (h *Handshake) onOfferError(err error) {
	h.mu.Lock()
	h.lastErr = err
	onError := h.onError
	h.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

// setStateLocked меняет состояние и возвращает отложенное уведомление,
// которое вызывается после снятия блокировки
func (h *Handshake) setStateLocked(state HandshakeState) func() {
	if h.state == state {
		return func() {}
	}
	h.state = state
	onState := h.onState
	return func() {
		if onState != nil {
			onState(state)
		}
	}
}
