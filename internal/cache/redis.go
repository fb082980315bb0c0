// Package cache реализует кэш активных сессий поверх Redis.
//
// Кэш избавляет проверку токена от похода в хранилище на каждый запрос.
// Снимки версионированы: запись с версией не новее сохранённой отбрасывается.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/glassworks-auth/internal/config"
	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

// Cache — обёртка над клиентом Redis с сериализацией в JSON.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// Get читает значение по ключу в result. Возвращает false, если ключа нет.
func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal(val, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Set сохраняет значение с временем жизни expiration.
func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	const op = "cache.Set"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Db.Set(ctx, key, jsonData, expiration).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Invalidate удаляет ключ.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	const op = "cache.Invalidate"
	if err := c.Db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (c *Cache) Close() error {
	return c.Db.Close()
}

// SessionCache хранит снимок сессии учётной записи.
type SessionCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewSessionCache создаёт кэш сессий с временем жизни записи ttl.
func NewSessionCache(c *Cache, ttl time.Duration) *SessionCache {
	return &SessionCache{cache: c, ttl: ttl}
}

// SessionSnapshot — то, что нужно для проверки токена без похода в хранилище.
// ActiveSession равен nil, если у учётной записи нет сессии. Version совпадает с версией записи.
type SessionSnapshot struct {
	Version       int64                 `json:"version"`
	Role          string                `json:"role"`
	ActiveSession *models.ActiveSession `json:"active_session,omitempty"`
}

// setIfNewer записывает KEYS[1], только если в нём нет снимка с версией >= ARGV[2].
var setIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local ok, decoded = pcall(cjson.decode, current)
	if ok and type(decoded) == 'table' then
		local version = tonumber(decoded['version'])
		if version and version >= tonumber(ARGV[2]) then
			return 0
		end
	end
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

func sessionKey(accountID string) string {
	return "session:" + accountID
}

// GetSession возвращает снимок сессии, если он есть в кэше.
func (s *SessionCache) GetSession(ctx context.Context, accountID string) (*SessionSnapshot, bool, error) {
	var snap SessionSnapshot
	found, err := s.cache.Get(ctx, sessionKey(accountID), &snap)
	if err != nil || !found {
		return nil, false, err
	}
	return &snap, true, nil
}

// SetSession кэширует снимок сессии, если в кэше нет снимка той же или более новой версии.
// Возвращает false, если запись отброшена.
func (s *SessionCache) SetSession(ctx context.Context, accountID string, snap *SessionSnapshot) (bool, error) {
	const op = "cache.SetSession"
	data, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	stored, err := setIfNewer.Run(ctx, s.cache.Db, []string{sessionKey(accountID)},
		data, snap.Version, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return stored == 1, nil
}

// InvalidateSession удаляет снимок сессии.
func (s *SessionCache) InvalidateSession(ctx context.Context, accountID string) error {
	return s.cache.Invalidate(ctx, sessionKey(accountID))
}
