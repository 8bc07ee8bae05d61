package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Direction - направление сообщения
type Direction string

const (
	DirectionOwn  Direction = "own"
	DirectionPeer Direction = "peer"
)

// Message - элемент истории чата
type Message struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Direction  Direction `json:"direction"`
	GroupID    string    `json:"groupId,omitempty"`
	PartIndex  int       `json:"partIndex,omitempty"`
	TotalParts int       `json:"totalParts,omitempty"`
}

// IsPart сообщает, является ли сообщение частью группы
func (m Message) IsPart() bool {
	return m.GroupID != ""
}

// MessageUnit - единица отображения: одиночное сообщение или собранная группа
type MessageUnit struct {
	ID        string
	Direction Direction
	Text      string
	Parts     []Message
	// Timestamp берется у последней полученной части
	Timestamp     time.Time
	Complete      bool
	TotalParts    int
	LastPartIndex int
}

// Progress возвращает прогресс частично полученной группы
func (u MessageUnit) Progress() string {
	if u.TotalParts == 0 || u.Complete {
		return ""
	}
	return fmt.Sprintf("%d of %d", u.LastPartIndex+1, u.TotalParts)
}

// MessageChannel - история сообщений с оптимистичной отправкой
type MessageChannel struct {
	mu           sync.Mutex
	backend      IBackend
	clock        clock.Clock
	status       StatusReader
	verification VerificationReader
	metrics      *Metrics

	messages []Message
	// pending хранит входящие, пришедшие до подтверждения отпечатка
	pending []Message
	// released выставляется в FlushPending: после него входящие сразу видимы
	released bool

	onChange func()
}

// NewMessageChannel создает канал сообщений
func NewMessageChannel(backend IBackend, clk clock.Clock, status StatusReader, verification VerificationReader, metrics *Metrics) *MessageChannel {
	if clk == nil {
		clk = clock.New()
	}
	if metrics == nil {
		metrics = nopMetrics()
	}
	return &MessageChannel{
		backend:      backend,
		clock:        clk,
		status:       status,
		verification: verification,
		metrics:      metrics,
	}
}

// SetChangeCallback вызывается после любого изменения истории
func (c *MessageChannel) SetChangeCallback(cb func()) {
	c.mu.Lock()
	c.onChange = cb
	c.mu.Unlock()
}

// Send добавляет локальное эхо и отправляет текст бэкенду.
// При отказе удаляется ровно это эхо.
func (c *MessageChannel) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if c.verification != nil && !c.verification.Confirmed() {
		return Message{}, ErrNotVerified
	}
	if status := c.status.Status(); !status.CanSend() {
		return Message{}, Wrap(CodeNotConnected, ErrNotConnected.Message, fmt.Errorf("status %s", status))
	}

	msg := Message{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: c.clock.Now(),
		Direction: DirectionOwn,
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	onChange := c.onChange
	c.mu.Unlock()
	if onChange != nil {
		onChange()
	}

	ok, err := c.backend.SendText(ctx, text)
	if err != nil || !ok {
		c.remove(msg.ID)
		c.metrics.SendFailures.Inc()
		if err != nil {
			Error("❌ Ошибка отправки сообщения: %v", err)
			return Message{}, Wrap(CodeBackendFailure, "failed to send message", err)
		}
		Warn("Бэкенд отклонил сообщение %s", msg.ID)
		return Message{}, ErrSendRejected
	}

	c.metrics.MessagesSent.Inc()
	Debug("📤 Сообщение %s отправлено", msg.ID)
	return msg, nil
}

func (c *MessageChannel) remove(id string) {
	c.mu.Lock()
	removed := false
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			removed = true
			break
		}
	}
	onChange := c.onChange
	c.mu.Unlock()

	if removed && onChange != nil {
		onChange()
	}
}

// Receive добавляет входящее сообщение в порядке поступления.
// До подтверждения отпечатка сообщение удерживается и не показывается.
func (c *MessageChannel) Receive(p MessagePayload) (Message, bool) {
	msg := Message{
		ID:        uuid.NewString(),
		Text:      p.Text,
		Timestamp: c.clock.Now(),
		Direction: DirectionPeer,
	}
	if p.GroupID != "" && p.TotalParts > 0 && p.PartIndex >= 0 && p.PartIndex < p.TotalParts {
		msg.GroupID = p.GroupID
		msg.PartIndex = p.PartIndex
		msg.TotalParts = p.TotalParts
	} else if p.GroupID != "" {
		Warn("Некорректные метаданные части %q (%d/%d), сообщение показано целиком", p.GroupID, p.PartIndex, p.TotalParts)
	}

	held := c.verification != nil && !c.verification.Confirmed()

	c.mu.Lock()
	// подтверждение могло пройти между чтением флага и захватом блокировки
	held = held && !c.released
	if msg.IsPart() {
		if total, ok := groupTotal(c.messages, c.pending, msg.GroupID); ok && total != msg.TotalParts {
			c.mu.Unlock()
			Warn("Часть %d группы %s отброшена: частей %d, ранее %d", msg.PartIndex, msg.GroupID, msg.TotalParts, total)
			return Message{}, false
		}
		if hasPart(c.messages, msg) || hasPart(c.pending, msg) {
			c.mu.Unlock()
			Debug("Повторная часть %d группы %s проигнорирована", msg.PartIndex, msg.GroupID)
			return Message{}, false
		}
	}
	if held {
		c.pending = append(c.pending, msg)
		c.mu.Unlock()
		Debug("Входящее сообщение удержано до подтверждения отпечатка")
		return msg, true
	}
	c.messages = append(c.messages, msg)
	onChange := c.onChange
	c.mu.Unlock()

	c.metrics.MessagesReceived.Inc()
	if onChange != nil {
		onChange()
	}
	return msg, true
}

// groupTotal возвращает число частей, объявленное ранее полученными частями группы
func groupTotal(messages, pending []Message, groupID string) (int, bool) {
	for _, list := range [][]Message{messages, pending} {
		for _, m := range list {
			if m.GroupID == groupID {
				return m.TotalParts, true
			}
		}
	}
	return 0, false
}

func hasPart(list []Message, part Message) bool {
	for _, m := range list {
		if m.GroupID == part.GroupID && m.PartIndex == part.PartIndex {
			return true
		}
	}
	return false
}

// FlushPending переносит удержанные сообщения в историю
func (c *MessageChannel) FlushPending() int {
	c.mu.Lock()
	n := len(c.pending)
	c.messages = append(c.messages, c.pending...)
	c.pending = nil
	c.released = true
	onChange := c.onChange
	c.mu.Unlock()

	if n > 0 {
		c.metrics.MessagesReceived.Add(float64(n))
		if onChange != nil {
			onChange()
		}
	}
	return n
}

// DropPending уничтожает удержанные сообщения; следующие входящие снова удерживаются
func (c *MessageChannel) DropPending() {
	c.mu.Lock()
	c.pending = nil
	c.released = false
	c.mu.Unlock()
}

// Clear уничтожает всю историю. Вызывается под блокировкой HealthMachine.
func (c *MessageChannel) Clear() {
	c.mu.Lock()
	c.messages = nil
	c.pending = nil
	c.released = false
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

// Messages возвращает копию истории
func (c *MessageChannel) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len возвращает число сообщений в истории
func (c *MessageChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Units группирует историю в единицы отображения.
// Группа занимает позицию своей первой полученной части.
func (c *MessageChannel) Units() []MessageUnit {
	messages := c.Messages()

	units := make([]MessageUnit, 0, len(messages))
	groups := make(map[string]int)

	for _, m := range messages {
		if !m.IsPart() {
			units = append(units, MessageUnit{
				ID:        m.ID,
				Direction: m.Direction,
				Text:      m.Text,
				Parts:     []Message{m},
				Timestamp: m.Timestamp,
				Complete:  true,
			})
			continue
		}

		idx, ok := groups[m.GroupID]
		if !ok {
			idx = len(units)
			groups[m.GroupID] = idx
			units = append(units, MessageUnit{
				ID:         m.GroupID,
				Direction:  m.Direction,
				TotalParts: m.TotalParts,
			})
		}
		u := &units[idx]
		u.Parts = append(u.Parts, m)
		u.Timestamp = m.Timestamp
		u.LastPartIndex = m.PartIndex
	}

	for i := range units {
		u := &units[i]
		if u.TotalParts == 0 {
			continue
		}
		sort.SliceStable(u.Parts, func(a, b int) bool {
			return u.Parts[a].PartIndex < u.Parts[b].PartIndex
		})
		var sb strings.Builder
		for _, p := range u.Parts {
			sb.WriteString(p.Text)
		}
		u.Text = sb.String()
		u.Complete = allPartsPresent(u.Parts, u.TotalParts)
	}

	return units
}

// allPartsPresent проверяет, что получены все индексы 0..total-1
func allPartsPresent(parts []Message, total int) bool {
	seen := make([]bool, total)
	n := 0
	for _, p := range parts {
		if p.PartIndex < 0 || p.PartIndex >= total || p.TotalParts != total || seen[p.PartIndex] {
			continue
		}
		seen[p.PartIndex] = true
		n++
	}
	return n == total
}
