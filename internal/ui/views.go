package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"SecretChat/internal/core"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	tokenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	codeStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 2).Border(lipgloss.RoundedBorder())
	ownStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	peerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)

	bannerOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")).Padding(0, 1)
	bannerWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1)
	bannerDanger = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")).Padding(0, 1)
)

const header = "🔒 SecretChat"

// View отображает интерфейс
func (a *TUIApp) View() string {
	var body string
	switch a.screen {
	case ScreenWelcome:
		body = a.renderWelcome()
	case ScreenOffer:
		body = a.renderOffer()
	case ScreenAccept:
		body = a.renderAccept()
	case ScreenVerify:
		body = a.renderVerify()
	case ScreenChat:
		body = a.renderChat()
	default:
		body = "Неизвестное состояние"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(header) + "\n\n")
	sb.WriteString(body)
	if len(a.outputLines) > 0 {
		sb.WriteString("\n")
		for _, line := range a.outputLines {
			sb.WriteString(helpStyle.Render(line) + "\n")
		}
	}
	if a.errorMsg != "" {
		sb.WriteString("\n" + errorStyle.Render("❌ "+a.errorMsg) + "\n")
	}
	return sb.String()
}

func (a *TUIApp) renderWelcome() string {
	return `Защищенный чат один на один без серверов.

  1 - Создать приглашение
  2 - Принять приглашение
  q - Выход
`
}

func (a *TUIApp) renderOffer() string {
	var sb strings.Builder
	sb.WriteString("Приглашение для собеседника:\n\n")
	if a.offer == "" {
		sb.WriteString(helpStyle.Render("Создаем приглашение...") + "\n")
	} else {
		sb.WriteString(tokenStyle.Render(wrapToken(a.offer, a.width)) + "\n\n")
		sb.WriteString(fmt.Sprintf("Действует еще: %s\n", formatRemaining(a.remaining)))
	}
	sb.WriteString("\nОтвет собеседника:\n")
	sb.WriteString(a.input.View() + "\n\n")
	sb.WriteString(helpStyle.Render("enter - применить ответ • ctrl+r - новое приглашение • ctrl+v - вставить • esc - назад"))
	return sb.String()
}

func (a *TUIApp) renderAccept() string {
	var sb strings.Builder
	if a.answer == "" {
		sb.WriteString("Приглашение собеседника:\n")
		sb.WriteString(a.input.View() + "\n\n")
		if a.busy {
			sb.WriteString(helpStyle.Render("Создаем ответ...") + "\n")
		}
		sb.WriteString(helpStyle.Render("enter - принять • ctrl+v - вставить • esc - назад"))
		return sb.String()
	}
	sb.WriteString("Ответ для собеседника:\n\n")
	sb.WriteString(tokenStyle.Render(wrapToken(a.answer, a.width)) + "\n\n")
	sb.WriteString(helpStyle.Render("Ждем соединения... • esc - отмена"))
	return sb.String()
}

func (a *TUIApp) renderVerify() string {
	var sb strings.Builder
	sb.WriteString("Сверьте код с собеседником по другому каналу связи:\n\n")
	if a.fingerprint == "" {
		sb.WriteString(helpStyle.Render("Получаем отпечаток...") + "\n\n")
	} else {
		sb.WriteString(codeStyle.Render(formatCode(a.fingerprint)) + "\n\n")
	}
	box := "[ ]"
	if a.ack {
		box = "[x]"
	}
	sb.WriteString(box + " Коды совпадают\n\n")
	sb.WriteString(helpStyle.Render("space - отметить • enter - подтвердить • esc - отменить"))
	return sb.String()
}

func (a *TUIApp) renderChat() string {
	var sb strings.Builder
	text, style := statusBanner(a.status)
	sb.WriteString(style.Render(text) + "\n\n")

	if len(a.units) == 0 {
		sb.WriteString(helpStyle.Render("Сообщений пока нет") + "\n")
	}
	for _, u := range a.units {
		sb.WriteString(renderUnit(u) + "\n")
	}
	sb.WriteString("\n" + a.input.View() + "\n")
	sb.WriteString(helpStyle.Render("enter - отправить • ctrl+x - выйти из чата"))
	return sb.String()
}

// statusBanner возвращает текст и стиль плашки статуса соединения
func statusBanner(status core.ConnectionStatus) (string, lipgloss.Style) {
	switch status {
	case core.StatusConnected:
		return "🟢 Соединение защищено", bannerOK
	case core.StatusProblem:
		return "🟡 Проблемы со связью", bannerWarn
	case core.StatusRecovering:
		return "🟡 Восстанавливаем соединение...", bannerWarn
	case core.StatusDisconnected:
		return "🔴 Собеседник отключился, история будет уничтожена", bannerDanger
	case core.StatusFailed:
		return "🔴 Соединение потеряно, история уничтожена", bannerDanger
	default:
		return status.String(), bannerWarn
	}
}

func renderUnit(u core.MessageUnit) string {
	ts := u.Timestamp.Format("15:04")
	who, style := "Вы", ownStyle
	if u.Direction == core.DirectionPeer {
		who, style = "Собеседник", peerStyle
	}
	line := fmt.Sprintf("%s %s: %s", ts, style.Render(who), u.Text)
	if u.TotalParts > 0 && !u.Complete {
		line += " " + partialStyle.Render("(получено "+u.Progress()+")")
	}
	return line
}

// formatRemaining выводит оставшееся время как MM:SS
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// formatCode группирует код по 4 символа
func formatCode(code string) string {
	var parts []string
	for len(code) > 4 {
		parts = append(parts, code[:4])
		code = code[4:]
	}
	parts = append(parts, code)
	return strings.ToUpper(strings.Join(parts, " "))
}

func wrapToken(token string, width int) string {
	if width <= 10 {
		width = 80
	}
	var sb strings.Builder
	for len(token) > width {
		sb.WriteString(token[:width] + "\n")
		token = token[width:]
	}
	sb.WriteString(token)
	return sb.String()
}
