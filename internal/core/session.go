package core

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"SecretChat/pkg/config"
)

// Phase - экран, на котором находится сессия
type Phase int

const (
	PhaseHandshake Phase = iota
	PhaseVerifying
	PhaseChat
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshake:
		return "Handshake"
	case PhaseVerifying:
		return "Verifying"
	case PhaseChat:
		return "Chat"
	default:
		return "Unknown"
	}
}

// NotificationKind - тип уведомления для UI
type NotificationKind string

const (
	NotifyPhase       NotificationKind = "phase"
	NotifyHandshake   NotificationKind = "handshake"
	NotifyOfferTick   NotificationKind = "offer-tick"
	NotifyFingerprint NotificationKind = "fingerprint"
	NotifyStatus      NotificationKind = "status"
	NotifyMessages    NotificationKind = "messages"
	NotifyWipe        NotificationKind = "wipe"
	NotifyError       NotificationKind = "error"
)

// Notification - уведомление об изменении состояния сессии
type Notification struct {
	Kind        NotificationKind
	Phase       Phase
	Handshake   HandshakeState
	Status      ConnectionStatus
	Offer       *OfferToken
	Remaining   time.Duration
	Fingerprint string
	Err         error
	Time        time.Time
}

// SessionOptions - зависимости и политики сессии
type SessionOptions struct {
	Clock       clock.Clock
	Metrics     *Metrics
	Settings    SettingsProvider
	AnswerMode  AnswerMode
	Fingerprint FingerprintPolicy
	Health      HealthPolicy

	// DefaultOfferTTL используется, если настройки недоступны
	DefaultOfferTTL    int
	NotificationBuffer int
}

// OptionsFromConfig собирает SessionOptions из конфигурации приложения
func OptionsFromConfig(cfg *config.Config) SessionOptions {
	return SessionOptions{
		AnswerMode: AnswerMode(cfg.Handshake.AnswerCommand),
		Fingerprint: FingerprintPolicy{
			Attempts:     cfg.Fingerprint.Attempts,
			InitialDelay: cfg.Fingerprint.InitialDelay,
			MaxDelay:     cfg.Fingerprint.MaxDelay,
		},
		Health: HealthPolicy{
			PeerLeftGrace:       cfg.Health.PeerLeftGrace,
			FailedRecoveryGrace: cfg.Health.FailedRecoveryGrace,
		},
		DefaultOfferTTL: cfg.Offer.TTL,
	}
}

// ISessionController - интерфейс сессии для UI
type ISessionController interface {
	Start(ctx context.Context) error
	Close()

	StartOffer(ctx context.Context) (OfferToken, error)
	RegenerateOffer(ctx context.Context) (OfferToken, error)
	ApplyAnswer(ctx context.Context, answer string) error
	AcceptOffer(ctx context.Context, offer string) (string, error)

	Acknowledge(ok bool)
	Confirm() error
	CancelVerification(ctx context.Context) error

	Send(ctx context.Context, text string) (Message, error)
	Exit(ctx context.Context) error

	Phase() Phase
	HandshakeState() HandshakeState
	Status() ConnectionStatus
	Offer() (OfferToken, bool)
	OfferRemaining() time.Duration
	Answer() string
	Verification() Verification
	CanConfirm() bool
	Units() []MessageUnit
	Notifications() <-chan Notification
}

// Session связывает компоненты и владеет единственной подпиской на события бэкенда
type Session struct {
	mu      sync.Mutex
	backend IBackend
	opts    SessionOptions
	clock   clock.Clock

	offers    *OfferManager
	handshake *Handshake
	gate      *FingerprintGate
	health    *HealthMachine
	channel   *MessageChannel

	phase       Phase
	// verifyLink - последнее событие деградации канала во время сверки
	verifyLink  EventType
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
	started     bool
	closed      bool

	notifyMu      sync.RWMutex
	notifyClosed  bool
	notifications chan Notification
}

// NewSession создает сессию поверх бэкенда
func NewSession(backend IBackend, opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics()
	}
	if opts.NotificationBuffer <= 0 {
		opts.NotificationBuffer = 64
	}
	if opts.DefaultOfferTTL == 0 {
		opts.DefaultOfferTTL = config.DefaultOfferTTL
	}

	s := &Session{
		backend:       backend,
		opts:          opts,
		clock:         opts.Clock,
		notifications: make(chan Notification, opts.NotificationBuffer),
	}

	s.offers = NewOfferManager(backend, opts.Clock, opts.Metrics)
	s.handshake = NewHandshake(backend, s.offers, opts.AnswerMode, opts.Metrics)
	s.gate = NewFingerprintGate(backend, opts.Clock, opts.Fingerprint)
	// health и channel ссылаются друг на друга через интерфейсы
	s.health = NewHealthMachine(opts.Clock, opts.Health, nil, opts.Metrics)
	s.channel = NewMessageChannel(backend, opts.Clock, s.health, s.gate, opts.Metrics)
	s.health.wiper = s.channel

	s.wire()
	return s
}

func (s *Session) wire() {
	// токен и колбэки ошибок offers уже заняты рукопожатием
	s.offers.SetTickCallback(func(left time.Duration) {
		s.notify(Notification{Kind: NotifyOfferTick, Remaining: left})
	})

	s.handshake.SetStateCallback(func(state HandshakeState) {
		n := Notification{Kind: NotifyHandshake, Handshake: state}
		if state == HandshakeOfferActive {
			if token, ok := s.offers.Current(); ok {
				n.Offer = &token
				n.Remaining = token.TTL
			}
		}
		s.notify(n)
	})
	s.handshake.SetErrorCallback(func(err error) {
		s.notify(Notification{Kind: NotifyError, Err: err})
	})
	s.handshake.SetEstablishedCallback(func(Role) {
		s.enterVerifying()
	})

	s.health.SetStatusCallback(func(status ConnectionStatus) {
		s.notify(Notification{Kind: NotifyStatus, Status: status})
	})
	s.health.SetWipeCallback(func() {
		s.notify(Notification{Kind: NotifyWipe, Status: StatusFailed})
	})
	s.channel.SetChangeCallback(func() {
		s.notify(Notification{Kind: NotifyMessages})
	})
}

// Start выполняет единственную подписку на события бэкенда
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.started {
		return ErrInvalidState
	}

	events, unsubscribe := s.backend.Subscribe()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.unsubscribe = unsubscribe
	s.started = true

	s.wg.Add(1)
	go s.dispatch(s.ctx, events)

	Info("🚀 Сессия запущена")
	return nil
}

// Close снимает подписку и останавливает все таймеры
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.wg.Wait()

	s.handshake.Reset()
	s.health.CancelTimer()

	s.notifyMu.Lock()
	s.notifyClosed = true
	close(s.notifications)
	s.notifyMu.Unlock()

	Info("Сессия закрыта")
}

func (s *Session) dispatch(ctx context.Context, events <-chan Event) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				Debug("Поток событий бэкенда закрыт")
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev Event) {
	phase := s.Phase()
	Debug("Событие %s в фазе %s", ev.Type, phase)

	switch ev.Type {
	case EventMessage:
		payload, ok := messagePayload(ev.Payload)
		if !ok {
			Warn("Событие message без текста проигнорировано")
			return
		}
		if phase == PhaseHandshake {
			Debug("Сообщение до установки соединения проигнорировано")
			return
		}
		s.channel.Receive(payload)

	case EventConnected:
		switch phase {
		case PhaseHandshake:
			s.handshake.HandleConnected()
		case PhaseVerifying:
			s.noteVerifyingLink(ev.Type)
		case PhaseChat:
			s.health.HandleEvent(ev.Type)
		}

	default:
		if !ev.Type.IsLink() {
			Debug("Неизвестное событие %s", ev.Type)
			return
		}
		switch phase {
		case PhaseVerifying:
			if ev.Type.IsTerminal() {
				Warn("⚠️ Соединение потеряно во время сверки отпечатка")
				s.returnToHandshake(ErrPeerLost)
				return
			}
			s.noteVerifyingLink(ev.Type)
		case PhaseChat:
			s.health.HandleEvent(ev.Type)
		}
	}
}

func messagePayload(v interface{}) (MessagePayload, bool) {
	switch p := v.(type) {
	case MessagePayload:
		return p, true
	case *MessagePayload:
		if p == nil {
			return MessagePayload{}, false
		}
		return *p, true
	case string:
		return MessagePayload{Text: p}, true
	default:
		return MessagePayload{}, false
	}
}

// noteVerifyingLink запоминает состояние канала во время сверки,
// чтобы после подтверждения машина здоровья начала с него
func (s *Session) noteVerifyingLink(ev EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseVerifying {
		return
	}
	switch ev {
	case EventConnected, EventConnectionRecovered:
		s.verifyLink = ""
	case EventConnectionProblem, EventConnectionRecovering:
		s.verifyLink = ev
	}
}

func (s *Session) enterVerifying() {
	s.mu.Lock()
	if s.phase != PhaseHandshake || s.closed {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseVerifying
	s.verifyLink = ""
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	s.notify(Notification{Kind: NotifyPhase, Phase: PhaseVerifying})

	go func() {
		defer s.wg.Done()
		code, err := s.gate.Fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.notify(Notification{Kind: NotifyError, Err: err})
			}
			return
		}
		s.notify(Notification{Kind: NotifyFingerprint, Fingerprint: code})
	}()
}

// StartOffer открывает экран приглашения; TTL читается из настроек один раз
func (s *Session) StartOffer(ctx context.Context) (OfferToken, error) {
	if s.Phase() != PhaseHandshake {
		return OfferToken{}, ErrInvalidState
	}
	return s.handshake.StartOffer(ctx, s.offerTTL(ctx))
}

func (s *Session) offerTTL(ctx context.Context) int {
	ttl := s.opts.DefaultOfferTTL
	if s.opts.Settings != nil {
		stored, err := s.opts.Settings.GetOfferTTL(ctx)
		switch {
		case err != nil:
			Warn("Не удалось прочитать TTL приглашения: %v", err)
		case stored > 0:
			ttl = stored
		}
	}
	return config.ClampOfferTTL(ttl)
}

// RegenerateOffer вручную создает новое приглашение
func (s *Session) RegenerateOffer(ctx context.Context) (OfferToken, error) {
	if s.Phase() != PhaseHandshake {
		return OfferToken{}, ErrInvalidState
	}
	return s.handshake.Regenerate(ctx)
}

// ApplyAnswer применяет ответ собеседника
func (s *Session) ApplyAnswer(ctx context.Context, answer string) error {
	if s.Phase() != PhaseHandshake {
		return ErrInvalidState
	}
	return s.handshake.ApplyAnswer(ctx, answer)
}

// AcceptOffer принимает приглашение собеседника и возвращает ответ
func (s *Session) AcceptOffer(ctx context.Context, offer string) (string, error) {
	if s.Phase() != PhaseHandshake {
		return "", ErrInvalidState
	}
	return s.handshake.AcceptOffer(ctx, offer)
}

// Acknowledge отмечает чекбокс сверки
func (s *Session) Acknowledge(ok bool) {
	s.gate.Acknowledge(ok)
	s.notify(Notification{Kind: NotifyFingerprint, Fingerprint: s.gate.Verification().LocalCode})
}

// Confirm подтверждает отпечаток и открывает чат
func (s *Session) Confirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseVerifying {
		return ErrInvalidState
	}
	if err := s.gate.Confirm(); err != nil {
		return err
	}

	s.health.Activate()
	if s.verifyLink != "" {
		Info("Канал деградировал во время сверки: %s", s.verifyLink)
		s.health.HandleEvent(s.verifyLink)
		s.verifyLink = ""
	}
	s.channel.FlushPending()
	s.phase = PhaseChat
	s.notify(Notification{Kind: NotifyPhase, Phase: PhaseChat})
	return nil
}

// CancelVerification разрывает соединение и возвращает на вход
func (s *Session) CancelVerification(ctx context.Context) error {
	if s.Phase() != PhaseVerifying {
		return ErrInvalidState
	}
	err := s.gate.Cancel(ctx)
	s.returnToHandshake(nil)
	return err
}

// Send отправляет сообщение собеседнику
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	if s.Phase() != PhaseChat {
		return Message{}, ErrNotVerified
	}
	msg, err := s.channel.Send(ctx, text)
	if err != nil {
		s.notify(Notification{Kind: NotifyError, Err: err})
	}
	return msg, err
}

// Exit завершает сессию чата: disconnect, очистка истории, возврат на вход
func (s *Session) Exit(ctx context.Context) error {
	err := s.backend.Disconnect(ctx)
	if err != nil {
		Warn("Ошибка отключения: %v", err)
		err = Wrap(CodeBackendFailure, "failed to disconnect", err)
	}
	s.returnToHandshake(nil)
	return err
}

func (s *Session) returnToHandshake(reason error) {
	s.mu.Lock()
	s.phase = PhaseHandshake
	s.verifyLink = ""
	s.handshake.Reset()
	s.gate.Reset()
	s.health.CancelTimer()
	s.channel.Clear()
	s.mu.Unlock()

	s.notify(Notification{Kind: NotifyPhase, Phase: PhaseHandshake})
	if reason != nil {
		s.notify(Notification{Kind: NotifyError, Err: reason})
	}
}

// Phase возвращает текущую фазу
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// HandshakeState возвращает состояние рукопожатия
func (s *Session) HandshakeState() HandshakeState {
	return s.handshake.State()
}

// Status возвращает статус соединения
func (s *Session) Status() ConnectionStatus {
	return s.health.Status()
}

// Offer возвращает действующее приглашение
func (s *Session) Offer() (OfferToken, bool) {
	return s.offers.Current()
}

// OfferRemaining возвращает оставшееся время приглашения
func (s *Session) OfferRemaining() time.Duration {
	return s.offers.Remaining()
}

// Answer возвращает созданный ответ на принятое приглашение
func (s *Session) Answer() string {
	return s.handshake.Answer()
}

// Verification возвращает состояние сверки отпечатка
func (s *Session) Verification() Verification {
	return s.gate.Verification()
}

// CanConfirm сообщает, доступна ли кнопка подтверждения
func (s *Session) CanConfirm() bool {
	return s.Phase() == PhaseVerifying && s.gate.CanConfirm()
}

// Units возвращает историю для отображения
func (s *Session) Units() []MessageUnit {
	return s.channel.Units()
}

// Notifications возвращает поток уведомлений; канал закрывается в Close
func (s *Session) Notifications() <-chan Notification {
	return s.notifications
}

// Health возвращает машину состояний соединения
func (s *Session) Health() *HealthMachine {
	return s.health
}

// Channel возвращает канал сообщений
func (s *Session) Channel() *MessageChannel {
	return s.channel
}

func (s *Session) notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = s.clock.Now()
	}

	s.notifyMu.RLock()
	defer s.notifyMu.RUnlock()
	if s.notifyClosed {
		return
	}
	select {
	case s.notifications <- n:
	default:
		Debug("Очередь уведомлений переполнена, %s пропущено", n.Kind)
	}
}
