package core

import "context"

//go:generate mockgen -source=backend.go -destination=mock_backend_test.go -package=core

// IBackend - контракт нативного бэкенда: команды запрос/ответ и поток событий.
// Все методы неблокирующие с точки зрения оркестратора: они вызываются
// без удержания внутренних блокировок.
type IBackend interface {
	// GenerateOffer создает новое приглашение
	GenerateOffer(ctx context.Context) (string, error)

	// AcceptOfferAndCreateAnswer принимает чужое приглашение и возвращает ответ
	AcceptOfferAndCreateAnswer(ctx context.Context, offer string) (string, error)

	// SetAnswer применяет ответ собеседника
	SetAnswer(ctx context.Context, answer string) (bool, error)

	// AcceptAnswer применяет ответ вместе с ICE кандидатами
	AcceptAnswer(ctx context.Context, answer string) (bool, error)

	// IsConnected сообщает, готов ли криптографический контекст
	IsConnected(ctx context.Context) (bool, error)

	// GetFingerprint возвращает короткий код для сверки
	GetFingerprint(ctx context.Context) (string, error)

	// SendText отправляет сообщение собеседнику
	SendText(ctx context.Context, msg string) (bool, error)

	// Disconnect разрывает соединение
	Disconnect(ctx context.Context) error

	// Subscribe регистрирует единственного подписчика на события.
	// Возвращаемая функция снимает подписку.
	Subscribe() (<-chan Event, func())
}

// SettingsProvider отдает сохраненный TTL приглашения в секундах
type SettingsProvider interface {
	GetOfferTTL(ctx context.Context) (int, error)
}

// StatusReader - единственный авторитетный источник статуса соединения
type StatusReader interface {
	Status() ConnectionStatus
}

// VerificationReader сообщает, подтвержден ли отпечаток
type VerificationReader interface {
	Confirmed() bool
}
