package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"SecretChat/internal/core"
)

// Screen - экран приложения
type Screen int

const (
	ScreenWelcome Screen = iota
	ScreenOffer
	ScreenAccept
	ScreenVerify
	ScreenChat
)

// String возвращает строковое представление экрана
func (s Screen) String() string {
	switch s {
	case ScreenWelcome:
		return "Приветствие"
	case ScreenOffer:
		return "Приглашение"
	case ScreenAccept:
		return "Принятие приглашения"
	case ScreenVerify:
		return "Сверка отпечатка"
	case ScreenChat:
		return "Чат"
	default:
		return "Неизвестно"
	}
}

const maxOutputLines = 5

// TUIApp - bubbletea модель поверх сессии
type TUIApp struct {
	session core.ISessionController
	ctx     context.Context

	screen      Screen
	input       textinput.Model
	handshake   core.HandshakeState
	offer       string
	remaining   time.Duration
	answer      string
	fingerprint string
	ack         bool
	status      core.ConnectionStatus
	units       []core.MessageUnit
	outputLines []string
	errorMsg    string
	busy        bool
	width       int
	height      int
}

// NewTUIApp создает модель для уже запущенной сессии
func NewTUIApp(ctx context.Context, session core.ISessionController) *TUIApp {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 0

	return &TUIApp{
		session: session,
		ctx:     ctx,
		screen:  ScreenWelcome,
		input:   input,
		status:  session.Status(),
	}
}

// Сообщения для bubbletea
type notificationMsg struct {
	n core.Notification
}

type sessionClosedMsg struct{}

type offerMsg struct {
	token core.OfferToken
	err   error
}

type answerAppliedMsg struct {
	err error
}

type answerCreatedMsg struct {
	answer string
	err    error
}

type sendResultMsg struct {
	err error
}

type exitMsg struct {
	err error
}

type outputMsg struct {
	line string
}

type pasteMsg struct {
	text string
}

// Init подписывается на уведомления сессии
func (a *TUIApp) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.waitNotification())
}

func (a *TUIApp) waitNotification() tea.Cmd {
	ch := a.session.Notifications()
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return sessionClosedMsg{}
		}
		return notificationMsg{n: n}
	}
}

// Update обрабатывает сообщения
func (a *TUIApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.input.Width = max(msg.Width-4, 10)
		return a, nil
	case notificationMsg:
		a.applyNotification(msg.n)
		return a, a.waitNotification()
	case sessionClosedMsg:
		return a, tea.Quit
	case offerMsg:
		a.busy = false
		if msg.err != nil {
			a.setError(msg.err)
			return a, nil
		}
		a.offer = msg.token.Payload
		a.remaining = msg.token.TTL
		return a, nil
	case answerAppliedMsg:
		a.busy = false
		if msg.err != nil {
			a.setError(msg.err)
			a.screen = ScreenWelcome
			return a, nil
		}
		a.addOutput("⏳ Ответ применен, ждем соединения...")
		return a, nil
	case answerCreatedMsg:
		a.busy = false
		if msg.err != nil {
			a.setError(msg.err)
			return a, nil
		}
		a.answer = msg.answer
		a.addOutput("📨 Передайте ответ собеседнику и ждите соединения")
		return a, nil
	case sendResultMsg:
		if msg.err != nil {
			a.setError(msg.err)
		}
		a.units = a.session.Units()
		return a, nil
	case exitMsg:
		a.busy = false
		if msg.err != nil {
			a.setError(msg.err)
		}
		a.resetHandshakeView()
		a.screen = ScreenWelcome
		return a, nil
	case outputMsg:
		a.addOutput(msg.line)
		return a, nil
	case pasteMsg:
		a.input.SetValue(a.input.Value() + msg.text)
		a.input.CursorEnd()
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// handleKeyPress обрабатывает нажатия клавиш
func (a *TUIApp) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit
	case "ctrl+v":
		// Вставка из буфера обмена
		return a, pasteFromClipboard()
	}

	switch a.screen {
	case ScreenWelcome:
		return a.handleWelcome(msg)
	case ScreenOffer:
		return a.handleOffer(msg)
	case ScreenAccept:
		return a.handleAccept(msg)
	case ScreenVerify:
		return a.handleVerify(msg)
	case ScreenChat:
		return a.handleChat(msg)
	}
	return a, nil
}

func (a *TUIApp) handleWelcome(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "1", "o":
		a.clearError()
		a.screen = ScreenOffer
		a.busy = true
		a.focusInput("Вставьте ответ собеседника")
		return a, a.startOffer()
	case "2", "a":
		a.clearError()
		a.screen = ScreenAccept
		a.focusInput("Вставьте приглашение собеседника")
		return a, nil
	case "q":
		return a, tea.Quit
	}
	return a, nil
}

func (a *TUIApp) handleOffer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.busy = true
		return a, a.exit()
	case "ctrl+r":
		a.clearError()
		a.busy = true
		return a, a.regenerate()
	case "enter":
		answer := strings.TrimSpace(a.input.Value())
		if answer == "" || a.busy {
			return a, nil
		}
		a.clearError()
		a.busy = true
		a.input.Reset()
		return a, a.applyAnswer(answer)
	}
	return a.updateInput(msg)
}

func (a *TUIApp) handleAccept(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.busy = true
		return a, a.exit()
	case "enter":
		offer := strings.TrimSpace(a.input.Value())
		if offer == "" || a.busy || a.answer != "" {
			return a, nil
		}
		a.clearError()
		a.busy = true
		a.input.Reset()
		return a, a.acceptOffer(offer)
	}
	return a.updateInput(msg)
}

func (a *TUIApp) handleVerify(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case " ", "space":
		a.ack = !a.ack
		a.session.Acknowledge(a.ack)
		return a, nil
	case "enter":
		if err := a.session.Confirm(); err != nil {
			a.setError(err)
			return a, nil
		}
		a.clearError()
		a.screen = ScreenChat
		a.units = a.session.Units()
		a.focusInput("Сообщение")
		return a, nil
	case "esc":
		a.busy = true
		return a, a.cancelVerification()
	}
	return a, nil
}

func (a *TUIApp) handleChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+x":
		a.busy = true
		return a, a.exit()
	case "enter":
		text := a.input.Value()
		if strings.TrimSpace(text) == "" {
			return a, nil
		}
		a.input.Reset()
		return a, a.send(text)
	}
	return a.updateInput(msg)
}

func (a *TUIApp) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// applyNotification переносит уведомление сессии в модель
func (a *TUIApp) applyNotification(n core.Notification) {
	switch n.Kind {
	case core.NotifyPhase:
		a.applyPhase(n.Phase, n.Err)
	case core.NotifyHandshake:
		a.handshake = n.Handshake
		if n.Offer != nil {
			a.offer = n.Offer.Payload
			a.remaining = n.Remaining
		}
		if n.Handshake == core.HandshakeExpired {
			a.addOutput("⌛ Приглашение истекло, создаем новое...")
		}
	case core.NotifyOfferTick:
		a.remaining = n.Remaining
	case core.NotifyFingerprint:
		a.fingerprint = n.Fingerprint
		if n.Err != nil {
			a.setError(n.Err)
		}
	case core.NotifyStatus:
		a.status = n.Status
	case core.NotifyMessages:
		a.units = a.session.Units()
	case core.NotifyWipe:
		a.units = a.session.Units()
		a.addOutput("🧹 История переписки уничтожена")
	case core.NotifyError:
		if n.Err != nil {
			a.setError(n.Err)
		}
	}
}

func (a *TUIApp) applyPhase(phase core.Phase, reason error) {
	switch phase {
	case core.PhaseHandshake:
		if a.screen == ScreenVerify || a.screen == ScreenChat {
			a.resetHandshakeView()
			a.screen = ScreenWelcome
			a.input.Blur()
		}
		if reason != nil {
			a.setError(reason)
		}
	case core.PhaseVerifying:
		a.screen = ScreenVerify
		a.ack = false
		a.busy = false
		a.input.Blur()
		a.fingerprint = a.session.Verification().LocalCode
	case core.PhaseChat:
		a.screen = ScreenChat
		a.units = a.session.Units()
		a.focusInput("Сообщение")
	}
}

func (a *TUIApp) resetHandshakeView() {
	a.offer = ""
	a.answer = ""
	a.remaining = 0
	a.fingerprint = ""
	a.ack = false
	a.units = nil
	a.handshake = core.HandshakeIdle
	a.input.Reset()
}

func (a *TUIApp) focusInput(placeholder string) {
	a.input.Reset()
	a.input.Placeholder = placeholder
	a.input.Focus()
}

func (a *TUIApp) setError(err error) {
	a.errorMsg = describeError(err)
}

func (a *TUIApp) clearError() {
	a.errorMsg = ""
}

func (a *TUIApp) addOutput(line string) {
	a.outputLines = append(a.outputLines, line)
	// Ограничиваем количество строк вывода
	if len(a.outputLines) > maxOutputLines {
		a.outputLines = a.outputLines[len(a.outputLines)-maxOutputLines:]
	}
}

// describeError переводит ошибки сессии в текст для пользователя
func describeError(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyPayload):
		return "Пустой ответ"
	case errors.Is(err, core.ErrInvalidPayload):
		return "Ответ не подходит к приглашению, создайте новое"
	case errors.Is(err, core.ErrOfferExpired):
		return "Приглашение истекло"
	case errors.Is(err, core.ErrNotAcknowledged):
		return "Отметьте, что коды совпадают"
	case errors.Is(err, core.ErrFingerprintUnavailable):
		return "Отпечаток недоступен, отмените и повторите рукопожатие"
	case errors.Is(err, core.ErrPeerLost):
		return "Собеседник отключился во время сверки"
	case errors.Is(err, core.ErrNotVerified):
		return "Отпечаток не подтвержден"
	case core.CodeOf(err) == core.CodeNotConnected:
		return "Нет соединения, сообщение не отправлено"
	case core.CodeOf(err) == core.CodeBackendFailure:
		return "Ошибка бэкенда: " + err.Error()
	default:
		return err.Error()
	}
}

// Команды сессии выполняются вне цикла bubbletea

func (a *TUIApp) startOffer() tea.Cmd {
	return func() tea.Msg {
		token, err := a.session.StartOffer(a.ctx)
		return offerMsg{token: token, err: err}
	}
}

func (a *TUIApp) regenerate() tea.Cmd {
	return func() tea.Msg {
		token, err := a.session.RegenerateOffer(a.ctx)
		return offerMsg{token: token, err: err}
	}
}

func (a *TUIApp) applyAnswer(answer string) tea.Cmd {
	return func() tea.Msg {
		return answerAppliedMsg{err: a.session.ApplyAnswer(a.ctx, answer)}
	}
}

func (a *TUIApp) acceptOffer(offer string) tea.Cmd {
	return func() tea.Msg {
		answer, err := a.session.AcceptOffer(a.ctx, offer)
		return answerCreatedMsg{answer: answer, err: err}
	}
}

func (a *TUIApp) cancelVerification() tea.Cmd {
	return func() tea.Msg {
		return exitMsg{err: a.session.CancelVerification(a.ctx)}
	}
}

func (a *TUIApp) send(text string) tea.Cmd {
	return func() tea.Msg {
		_, err := a.session.Send(a.ctx, text)
		return sendResultMsg{err: err}
	}
}

func (a *TUIApp) exit() tea.Cmd {
	return func() tea.Msg {
		return exitMsg{err: a.session.Exit(a.ctx)}
	}
}
