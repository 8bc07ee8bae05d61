package transport

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"SecretChat/internal/core"
)

// frame - открытый текст одного зашифрованного сообщения канала.
// Для длинного текста G/I/N описывают группу частей.
type frame struct {
	G string `json:"g,omitempty"`
	I int    `json:"i,omitempty"`
	N int    `json:"n,omitempty"`
	T string `json:"t"`
}

// splitText делит текст на части не длиннее limit байт, не разрывая руны
func splitText(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var parts []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			_, size := utf8.DecodeRuneInString(text)
			cut = size
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// buildFrames готовит кадры для отправки текста
func buildFrames(text string, limit int) []frame {
	parts := splitText(text, limit)
	if len(parts) == 1 {
		return []frame{{T: parts[0]}}
	}

	group := uuid.NewString()
	frames := make([]frame, len(parts))
	for i, p := range parts {
		frames[i] = frame{G: group, I: i, N: len(parts), T: p}
	}
	return frames
}

func marshalFrame(f frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return data, nil
}

// parseFrame разбирает открытый текст кадра в полезную нагрузку события
func parseFrame(data []byte) (core.MessagePayload, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return core.MessagePayload{}, fmt.Errorf("failed to parse frame: %w", err)
	}
	return core.MessagePayload{
		Text:       f.T,
		GroupID:    f.G,
		PartIndex:  f.I,
		TotalParts: f.N,
	}, nil
}
