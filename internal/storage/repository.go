package storage

import (
	"context"
	"time"

	"SecretChat/pkg/config"
)

// ISettingsRepository определяет интерфейс хранилища локальных настроек
type ISettingsRepository interface {
	// GetOfferTTL возвращает сохраненный TTL приглашения в секундах, 0 если не задан
	GetOfferTTL(ctx context.Context) (int, error)

	// SetOfferTTL сохраняет TTL приглашения в секундах
	SetOfferTTL(ctx context.Context, seconds int) error

	// GetICEServers возвращает список STUN/TURN серверов в порядке приоритета
	GetICEServers(ctx context.Context) ([]config.ICEServer, error)

	// SaveICEServers заменяет список STUN/TURN серверов
	SaveICEServers(ctx context.Context, servers []config.ICEServer) error

	// Close закрывает соединение с базой данных
	Close() error
}

// Setting представляет собой запись таблицы настроек
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ICEServersOrDefault возвращает сохраненные серверы или значения из конфигурации
func ICEServersOrDefault(ctx context.Context, repo ISettingsRepository, fallback []config.ICEServer) []config.ICEServer {
	servers, err := repo.GetICEServers(ctx)
	if err != nil || len(servers) == 0 {
		return fallback
	}
	return servers
}
