package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"SecretChat/internal/core"
	"SecretChat/pkg/config"
)

const (
	// DataChannelLabel - метка единственного канала данных
	DataChannelLabel = "ssc"

	defaultEventBuffer = 64
)

var (
	errNotOffer  = errors.New("bundle is not an offer")
	errNotAnswer = errors.New("bundle is not an answer")
	errNoLocal   = errors.New("local description is not ready")

	// errSuperseded - пока соединение готовилось, начато более новое
	errSuperseded = errors.New("link superseded by a newer one")
)

// Options настройки WebRTC транспорта
type Options struct {
	ICEServers        []config.ICEServer
	GatherTimeout     time.Duration
	RecoveryWindow    time.Duration
	KeyExchangeWindow time.Duration
	MaxMessagePart    int
	EventBuffer       int

	// IncludeLoopback разрешает loopback кандидатов, нужен для соединения внутри одной машины
	IncludeLoopback bool

	Clock clock.Clock
}

// OptionsFromConfig собирает настройки транспорта; servers перекрывают список из конфигурации
func OptionsFromConfig(cfg *config.Config, servers []config.ICEServer) Options {
	if len(servers) == 0 {
		servers = cfg.Network.ICEServers
	}
	return Options{
		ICEServers:        servers,
		GatherTimeout:     cfg.Network.GatherTimeout,
		RecoveryWindow:    cfg.Network.RecoveryWindow,
		KeyExchangeWindow: cfg.Network.KeyExchangeWindow,
		MaxMessagePart:    cfg.Network.MaxMessagePart,
	}
}

// peerLink - состояние одного WebRTC соединения
type peerLink struct {
	mu         sync.Mutex
	id         string
	gen        uint64
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	keys       *keyPair
	crypto     *cryptoContext
	candidates []IceCandidate
	recovery   *clock.Timer
	keyTimer   *clock.Timer
	degraded   bool
	closed     bool
}

// WebRTCTransport реализует core.IBackend поверх pion/webrtc.
// Одновременно существует не больше одного соединения; события старых
// соединений отбрасываются.
type WebRTCTransport struct {
	api   *webrtc.API
	opts  Options
	clock clock.Clock

	mu     sync.Mutex
	gen    uint64
	link   *peerLink
	events *core.EventManager
}

var _ core.IBackend = (*WebRTCTransport)(nil)

// NewWebRTCTransport создает транспорт
func NewWebRTCTransport(opts Options) *WebRTCTransport {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = 10 * time.Second
	}
	if opts.RecoveryWindow <= 0 {
		opts.RecoveryWindow = 10 * time.Second
	}

	se := webrtc.SettingEngine{}
	if opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	return &WebRTCTransport{
		api:   webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		opts:  opts,
		clock: opts.Clock,
	}
}

// SetICEServers заменяет STUN/TURN серверы для следующих соединений
func (t *WebRTCTransport) SetICEServers(servers []config.ICEServer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.ICEServers = append([]config.ICEServer(nil), servers...)
}

// Subscribe регистрирует подписчика; предыдущая подписка закрывается
func (t *WebRTCTransport) Subscribe() (<-chan core.Event, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.events != nil {
		t.events.Stop()
	}
	em := core.NewEventManager(t.opts.EventBuffer)
	t.events = em

	return em.Events(), func() {
		t.mu.Lock()
		if t.events == em {
			t.events = nil
		}
		t.mu.Unlock()
		em.Stop()
	}
}

// GenerateOffer создает соединение инициатора и возвращает закодированное приглашение
func (t *WebRTCTransport) GenerateOffer(ctx context.Context) (string, error) {
	gen := t.reserve()
	link, err := t.newLink(true, uuid.NewString())
	if err != nil {
		return "", err
	}
	link.gen = gen
	if err := t.install(link); err != nil {
		return "", err
	}

	offer, err := link.pc.CreateOffer(nil)
	if err != nil {
		t.drop(link)
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := t.setLocal(ctx, link, offer); err != nil {
		t.drop(link)
		return "", err
	}

	encoded, err := t.encodeLocal(link)
	if err != nil {
		t.drop(link)
		return "", err
	}
	if t.current() != link {
		return "", errSuperseded
	}
	core.Info("📨 Приглашение готово (%d кандидатов)", link.candidateCount())
	return encoded, nil
}

// AcceptOfferAndCreateAnswer принимает приглашение и возвращает закодированный ответ
func (t *WebRTCTransport) AcceptOfferAndCreateAnswer(ctx context.Context, offer string) (string, error) {
	bundle, err := DecodeBundle(offer)
	if err != nil {
		return "", invalidBundle(err)
	}
	if bundle.SdpPayload.SDP.Type != webrtc.SDPTypeOffer {
		return "", invalidBundle(errNotOffer)
	}

	id := bundle.SdpPayload.ID
	if id == "" {
		id = uuid.NewString()
	}
	gen := t.reserve()
	link, err := t.newLink(false, id)
	if err != nil {
		return "", err
	}
	link.gen = gen
	if err := t.install(link); err != nil {
		return "", err
	}

	if err := link.pc.SetRemoteDescription(bundle.SdpPayload.SDP); err != nil {
		t.drop(link)
		return "", fmt.Errorf("failed to set remote offer: %w", err)
	}
	addCandidates(link, bundle.IceCandidates)

	answer, err := link.pc.CreateAnswer(nil)
	if err != nil {
		t.drop(link)
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := t.setLocal(ctx, link, answer); err != nil {
		t.drop(link)
		return "", err
	}

	encoded, err := t.encodeLocal(link)
	if err != nil {
		t.drop(link)
		return "", err
	}
	if t.current() != link {
		return "", errSuperseded
	}
	core.Info("📨 Ответ готов (%d кандидатов)", link.candidateCount())
	return encoded, nil
}

// SetAnswer применяет описание из ответа собеседника
func (t *WebRTCTransport) SetAnswer(ctx context.Context, answer string) (bool, error) {
	return t.applyAnswer(ctx, answer, false)
}

// AcceptAnswer применяет описание и переданные с ним ICE кандидаты
func (t *WebRTCTransport) AcceptAnswer(ctx context.Context, answer string) (bool, error) {
	return t.applyAnswer(ctx, answer, true)
}

func (t *WebRTCTransport) applyAnswer(ctx context.Context, answer string, withCandidates bool) (bool, error) {
	bundle, err := DecodeBundle(answer)
	if err != nil {
		return false, invalidBundle(err)
	}
	if bundle.SdpPayload.SDP.Type != webrtc.SDPTypeAnswer {
		return false, invalidBundle(errNotAnswer)
	}

	link := t.current()
	if link == nil {
		core.Warn("⚠️ Ответ получен без активного приглашения")
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := link.pc.SetRemoteDescription(bundle.SdpPayload.SDP); err != nil {
		return false, fmt.Errorf("failed to set remote answer: %w", err)
	}
	if withCandidates {
		addCandidates(link, bundle.IceCandidates)
	}
	core.Info("✅ Ответ собеседника применен")
	return true, nil
}

// IsConnected сообщает, готов ли криптографический контекст
func (t *WebRTCTransport) IsConnected(ctx context.Context) (bool, error) {
	link := t.current()
	if link == nil {
		return false, nil
	}
	return link.cryptoContext() != nil, nil
}

// GetFingerprint возвращает SAS, пустую строку пока ключи не согласованы
func (t *WebRTCTransport) GetFingerprint(ctx context.Context) (string, error) {
	link := t.current()
	if link == nil {
		return "", nil
	}
	cc := link.cryptoContext()
	if cc == nil {
		return "", nil
	}
	return cc.SAS(), nil
}

// SendText шифрует и отправляет текст, длинный текст делится на части
func (t *WebRTCTransport) SendText(ctx context.Context, msg string) (bool, error) {
	link := t.current()
	if link == nil {
		return false, nil
	}
	link.mu.Lock()
	dc, cc := link.dc, link.crypto
	link.mu.Unlock()
	if dc == nil || cc == nil {
		core.Warn("⚠️ Отправка невозможна: канал не готов")
		return false, nil
	}

	for _, f := range buildFrames(msg, t.opts.MaxMessagePart) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		plain, err := marshalFrame(f)
		if err != nil {
			return false, err
		}
		sealed, err := cc.seal(plain)
		if err != nil {
			return false, err
		}
		if err := dc.Send(sealed); err != nil {
			return false, fmt.Errorf("failed to send frame: %w", err)
		}
	}
	return true, nil
}

// Disconnect закрывает текущее соединение. Событие disconnected для
// локального разрыва не публикуется.
func (t *WebRTCTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	link := t.link
	t.link = nil
	t.mu.Unlock()

	if link == nil {
		return nil
	}
	core.Info("🔌 Закрываем соединение %s", link.id)
	return link.close()
}

// Close закрывает соединение и поток событий
func (t *WebRTCTransport) Close() error {
	err := t.Disconnect(context.Background())

	t.mu.Lock()
	em := t.events
	t.events = nil
	t.mu.Unlock()
	if em != nil {
		em.Stop()
	}
	return err
}

func (t *WebRTCTransport) rtcConfig() webrtc.Configuration {
	t.mu.Lock()
	servers := t.opts.ICEServers
	t.mu.Unlock()

	ice := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		if s.URL == "" {
			continue
		}
		ice = append(ice, webrtc.ICEServer{
			URLs:       []string{s.URLWithScheme()},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return webrtc.Configuration{
		ICEServers:    ice,
		BundlePolicy:  webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy: webrtc.RTCPMuxPolicyRequire,
	}
}

func (t *WebRTCTransport) newLink(initiator bool, id string) (*peerLink, error) {
	keys, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	pc, err := t.api.NewPeerConnection(t.rtcConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	link := &peerLink{id: id, pc: pc, keys: keys}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			core.Debug("Сбор ICE кандидатов завершен")
			return
		}
		link.mu.Lock()
		link.candidates = append(link.candidates, candidateFromInit(c.ToJSON(), link.id))
		link.mu.Unlock()
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.handleState(link, s)
	})

	if initiator {
		dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("failed to create data channel: %w", err)
		}
		t.attach(link, dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != DataChannelLabel {
				core.Warn("⚠️ Неожиданный канал данных %q", dc.Label())
				return
			}
			t.attach(link, dc)
		})
	}
	return link, nil
}

// setLocal устанавливает локальное описание и ждет сбора кандидатов
func (t *WebRTCTransport) setLocal(ctx context.Context, link *peerLink, desc webrtc.SessionDescription) error {
	gathered := webrtc.GatheringCompletePromise(link.pc)
	if err := link.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-t.clock.After(t.opts.GatherTimeout):
		core.Warn("⏱️ Сбор ICE кандидатов не завершился за %v, используем собранные", t.opts.GatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (t *WebRTCTransport) encodeLocal(link *peerLink) (string, error) {
	desc := link.pc.LocalDescription()
	if desc == nil {
		return "", errNoLocal
	}
	link.mu.Lock()
	candidates := append([]IceCandidate(nil), link.candidates...)
	link.mu.Unlock()

	return EncodeBundle(ConnectionBundle{
		SdpPayload: SdpPayload{
			SDP: *desc,
			ID:  link.id,
			TS:  t.clock.Now().Unix(),
		},
		IceCandidates: candidates,
	})
}

func addCandidates(link *peerLink, candidates []IceCandidate) {
	for _, c := range candidates {
		if err := link.pc.AddICECandidate(c.init()); err != nil {
			core.Warn("⚠️ Кандидат собеседника отклонен: %v", err)
		}
	}
}

// attach подключает обработчики канала данных: первым кадром уходит открытый ключ
func (t *WebRTCTransport) attach(link *peerLink, dc *webrtc.DataChannel) {
	link.mu.Lock()
	link.dc = dc
	link.mu.Unlock()

	dc.OnOpen(func() {
		core.Info("📡 Канал данных открыт, отправляем ключ")
		if err := dc.Send(link.keys.pub[:]); err != nil {
			core.Error("❌ Не удалось отправить ключ: %v", err)
			return
		}
		link.mu.Lock()
		if link.crypto == nil && t.opts.KeyExchangeWindow > 0 {
			link.keyTimer = t.clock.AfterFunc(t.opts.KeyExchangeWindow, func() {
				t.keyExchangeExpired(link)
			})
		}
		link.mu.Unlock()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.handleFrame(link, msg.Data)
	})
	dc.OnClose(func() {
		core.Info("📴 Канал данных закрыт")
		t.emitDisconnected(link)
	})
}

func (t *WebRTCTransport) handleFrame(link *peerLink, data []byte) {
	link.mu.Lock()
	cc := link.crypto
	if cc == nil {
		defer link.mu.Unlock()
		if len(data) != PublicKeySize {
			core.Warn("⚠️ Кадр до обмена ключами отброшен (%d байт)", len(data))
			return
		}
		built, err := newCryptoContext(link.keys, data)
		if err != nil {
			core.Error("❌ Ошибка согласования ключей: %v", err)
			return
		}
		link.crypto = built
		if link.keyTimer != nil {
			link.keyTimer.Stop()
			link.keyTimer = nil
		}
		core.Info("🔐 Криптографический контекст готов")
		t.emit(link, core.StateEvent(core.EventConnected))
		return
	}
	link.mu.Unlock()

	plain, err := cc.open(data)
	if err != nil {
		core.Warn("⚠️ Кадр отклонен: %v", err)
		return
	}
	payload, err := parseFrame(plain)
	if err != nil {
		core.Warn("⚠️ %v", err)
		return
	}
	t.emit(link, core.NewMessageEvent(payload))
}

func (t *WebRTCTransport) keyExchangeExpired(link *peerLink) {
	link.mu.Lock()
	link.keyTimer = nil
	ready := link.crypto != nil
	link.mu.Unlock()
	if ready {
		return
	}
	core.Error("❌ Ключ собеседника не получен за %v", t.opts.KeyExchangeWindow)
	t.emit(link, core.StateEvent(core.EventConnectionFailed))
}

// handleState переводит состояние pion в события связи.
// Disconnected/Failed открывают окно восстановления, повторные игнорируются.
func (t *WebRTCTransport) handleState(link *peerLink, s webrtc.PeerConnectionState) {
	core.Info("Состояние соединения %s: %s", link.id, s)

	switch s {
	case webrtc.PeerConnectionStateConnected:
		link.mu.Lock()
		if link.recovery != nil {
			link.recovery.Stop()
			link.recovery = nil
		}
		recovered := link.degraded && link.crypto != nil
		link.degraded = false
		link.mu.Unlock()

		if recovered {
			t.emit(link, core.StateEvent(core.EventConnectionRecovered))
		}

	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		link.mu.Lock()
		defer link.mu.Unlock()
		if link.recovery != nil || link.closed {
			return
		}
		link.degraded = true
		t.emit(link, core.StateEvent(core.EventConnectionProblem))
		t.emit(link, core.StateEvent(core.EventConnectionRecovering))
		link.recovery = t.clock.AfterFunc(t.opts.RecoveryWindow, func() {
			t.recoveryExpired(link)
		})

	case webrtc.PeerConnectionStateClosed:
		t.emitDisconnected(link)
	}
}

func (t *WebRTCTransport) recoveryExpired(link *peerLink) {
	link.mu.Lock()
	link.recovery = nil
	link.mu.Unlock()

	if link.pc.ConnectionState() == webrtc.PeerConnectionStateConnected {
		core.Info("✅ Соединение восстановилось в окне ожидания")
		return
	}
	core.Warn("💔 Соединение не восстановилось за %v", t.opts.RecoveryWindow)
	t.emit(link, core.StateEvent(core.EventConnectionFailed))
}

func (t *WebRTCTransport) emitDisconnected(link *peerLink) {
	link.mu.Lock()
	if link.closed {
		link.mu.Unlock()
		return
	}
	link.closed = true
	link.stopTimersLocked()
	link.mu.Unlock()

	t.emit(link, core.StateEvent(core.EventDisconnected))
}

// emit публикует событие только для текущего соединения
func (t *WebRTCTransport) emit(link *peerLink, ev core.Event) {
	t.mu.Lock()
	em := t.events
	current := t.link == link
	t.mu.Unlock()

	if !current || em == nil {
		return
	}
	if err := em.PushEvent(ev); err != nil {
		core.Warn("⚠️ Событие %s потеряно: %v", ev.Type, err)
	}
}

func (t *WebRTCTransport) current() *peerLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link
}

// install делает соединение текущим и закрывает предыдущее
// invalidBundle помечает ошибку разбора пакета как некорректный ввод пользователя
func invalidBundle(err error) error {
	return core.Wrap(core.CodeInvalidInput, "invalid connection bundle", err)
}

// reserve выдает номер поколения в порядке начала вызовов
func (t *WebRTCTransport) reserve() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	return t.gen
}

// install делает соединение текущим, если после него не начато более новое.
// Иначе соединение закрывается: старый вызов не вытесняет новый.
func (t *WebRTCTransport) install(link *peerLink) error {
	t.mu.Lock()
	if link.gen != t.gen {
		t.mu.Unlock()
		_ = link.close()
		core.Debug("Соединение %s устарело (поколение %d)", link.id, link.gen)
		return errSuperseded
	}
	old := t.link
	t.link = link
	t.mu.Unlock()

	if old != nil {
		if err := old.close(); err != nil {
			core.Warn("⚠️ Ошибка закрытия прошлого соединения: %v", err)
		}
	}
	return nil
}

func (t *WebRTCTransport) drop(link *peerLink) {
	t.mu.Lock()
	if t.link == link {
		t.link = nil
	}
	t.mu.Unlock()
	_ = link.close()
}

func (l *peerLink) cryptoContext() *cryptoContext {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.crypto
}

func (l *peerLink) candidateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.candidates)
}

func (l *peerLink) stopTimersLocked() {
	if l.recovery != nil {
		l.recovery.Stop()
		l.recovery = nil
	}
	if l.keyTimer != nil {
		l.keyTimer.Stop()
		l.keyTimer = nil
	}
}

func (l *peerLink) close() error {
	l.mu.Lock()
	l.stopTimersLocked()
	dc := l.dc
	l.crypto = nil
	l.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	if err := l.pc.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}
