package ui

import (
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// pasteFromClipboard вставляет текст из буфера обмена
func pasteFromClipboard() tea.Cmd {
	return func() tea.Msg {
		// В Linux используем xclip для получения содержимого буфера
		cmd := exec.Command("xclip", "-o", "-selection", "clipboard")
		output, err := cmd.Output()
		if err != nil {
			return outputMsg{line: "❌ Ошибка вставки из буфера: " + err.Error()}
		}

		// Приглашения и ответы не содержат пробелов
		text := strings.Join(strings.Fields(string(output)), "")
		if text != "" {
			return pasteMsg{text: text}
		}

		return outputMsg{line: "⚠️ Буфер обмена пуст"}
	}
}
