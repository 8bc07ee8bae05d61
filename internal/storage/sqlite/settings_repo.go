package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"SecretChat/internal/storage"
	"SecretChat/pkg/config"
)

const keyOfferTTL = "offer_ttl"

// SettingsRepository реализует ISettingsRepository для SQLite
type SettingsRepository struct {
	db *sql.DB
}

var _ storage.ISettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository создает новый репозиторий настроек
func NewSettingsRepository(dbPath string) (*SettingsRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &SettingsRepository{db: db}

	// Создаем таблицы если не существуют
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

// createTables создает таблицы настроек и ICE серверов
func (r *SettingsRepository) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ice_servers (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		url TEXT NOT NULL,
		username TEXT,
		credential TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ice_servers_position ON ice_servers(position);
	`

	_, err := r.db.Exec(query)
	return err
}

// GetOfferTTL возвращает сохраненный TTL приглашения в секундах
func (r *SettingsRepository) GetOfferTTL(ctx context.Context) (int, error) {
	setting, err := r.getSetting(ctx, keyOfferTTL)
	if err != nil {
		return 0, err
	}
	if setting == nil {
		return 0, nil
	}

	ttl, err := strconv.Atoi(setting.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid stored offer ttl %q: %w", setting.Value, err)
	}
	return ttl, nil
}

// SetOfferTTL сохраняет TTL приглашения в секундах
func (r *SettingsRepository) SetOfferTTL(ctx context.Context, seconds int) error {
	if seconds < config.MinOfferTTL || seconds > config.MaxOfferTTL {
		return fmt.Errorf("offer ttl must be within [%d, %d] seconds, got %d", config.MinOfferTTL, config.MaxOfferTTL, seconds)
	}
	return r.setSetting(ctx, keyOfferTTL, strconv.Itoa(seconds))
}

func (r *SettingsRepository) getSetting(ctx context.Context, key string) (*storage.Setting, error) {
	query := `SELECT key, value, updated_at FROM settings WHERE key = ?`

	var s storage.Setting
	err := r.db.QueryRowContext(ctx, query, key).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return &s, nil
}

func (r *SettingsRepository) setSetting(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO settings (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, key, value, time.Now()); err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// GetICEServers возвращает список STUN/TURN серверов
func (r *SettingsRepository) GetICEServers(ctx context.Context) ([]config.ICEServer, error) {
	query := `
	SELECT id, type, url, username, credential
	FROM ice_servers
	ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get ice servers: %w", err)
	}
	defer rows.Close()

	var servers []config.ICEServer
	for rows.Next() {
		var s config.ICEServer
		var username, credential sql.NullString

		if err := rows.Scan(&s.ID, &s.Type, &s.URL, &username, &credential); err != nil {
			return nil, fmt.Errorf("failed to scan ice server: %w", err)
		}
		s.Username = username.String
		s.Credential = credential.String
		servers = append(servers, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ice servers: %w", err)
	}

	return servers, nil
}

// SaveICEServers заменяет список STUN/TURN серверов одной транзакцией
func (r *SettingsRepository) SaveICEServers(ctx context.Context, servers []config.ICEServer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ice_servers`); err != nil {
		return fmt.Errorf("failed to clear ice servers: %w", err)
	}

	query := `
	INSERT INTO ice_servers (id, position, type, url, username, credential)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	for i, s := range servers {
		if s.URL == "" {
			return fmt.Errorf("ice server %d has empty url", i)
		}
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.Type != "turn" {
			s.Type = "stun"
		}
		if _, err := tx.ExecContext(ctx, query, s.ID, i, s.Type, s.URL, nullable(s.Username), nullable(s.Credential)); err != nil {
			return fmt.Errorf("failed to save ice server %s: %w", s.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ice servers: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close закрывает соединение с базой данных
func (r *SettingsRepository) Close() error {
	return r.db.Close()
}
