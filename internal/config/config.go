// Package config предоставляет структуры и функции для загрузки конфигурации сервиса
// из YAML‑файла с переопределением через переменные окружения.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Окружения запуска.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Драйверы хранилища учётных записей.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageDriver           string `yaml:"storage_driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	GRPCHealthAddress       string `yaml:"grpc_health_address" env:"GRPC_HEALTH_ADDRESS" env-default:":50051"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	SessionPolicy           `yaml:"session_policy"`
	GoogleOAuth             `yaml:"google_oauth"`
	RateLimit               `yaml:"rate_limit"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis. Пустой адрес отключает кэш.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"2s"`
	SessionTTL   time.Duration `yaml:"session_ttl" env-default:"5m"`
}

// RabbitMQ структура для настройки брокера событий сессий. Пустой URL отключает публикацию.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
	Exchange   string        `yaml:"exchange" env-default:"sessions"`
}

// JWTToken структура для работы с jwt‑токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// SessionPolicy задаёт эвристики допуска входа.
//
// Флаг подтверждения почты инвертирован: cleanenv подставляет env-default вместо
// нулевого значения, и явный false из файла был бы потерян.
type SessionPolicy struct {
	StaleAfter                time.Duration `yaml:"stale_after" env-default:"24h"`
	DisableEmailVerifyOnLogin bool          `yaml:"disable_email_verify_on_login"`
	TrialPeriod               time.Duration `yaml:"trial_period" env-default:"720h"`
}

// VerifyEmailOnLogin сообщает, помечать ли почту подтверждённой после успешного входа.
func (p SessionPolicy) VerifyEmailOnLogin() bool {
	return !p.DisableEmailVerifyOnLogin
}

// GoogleOAuth структура для проверки Google ID‑токенов. Timeout ограничивает загрузку сертификатов.
type GoogleOAuth struct {
	ClientID string        `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	Timeout  time.Duration `yaml:"timeout" env-default:"5s"`
}

// RateLimit задаёт лимит запросов к открытым эндпоинтам входа на один IP.
//
// TrustedProxies перечисляет сети (CIDR) обратных прокси, которым разрешено
// передавать адрес клиента в X-Forwarded-For и X-Real-IP.
type RateLimit struct {
	RPS            float64  `yaml:"rps" env-default:"1"`
	Burst          int      `yaml:"burst" env-default:"5"`
	TrustedProxies []string `yaml:"trusted_proxies" env:"RATE_LIMIT_TRUSTED_PROXIES" env-separator:","`
}

// TrustedProxyPrefixes разбирает TrustedProxies.
func (r RateLimit) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(r.TrustedProxies))
	for _, raw := range r.TrustedProxies {
		p, err := netip.ParsePrefix(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("rate_limit.trusted_proxies: %w", err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, nil
}

// Load читает конфиг из файла path и проверяет обязательные поля.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: cannot read config: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.StorageConnectionString == "" {
			errs = append(errs, errors.New("storage_connection_string is required for postgres driver"))
		}
	case StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage_driver %q", c.StorageDriver))
	}
	if c.JWTSecretKey == "" {
		errs = append(errs, errors.New("jwttoken.jwt_secret_key is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("jwttoken.token_ttl must be positive"))
	}
	if _, err := c.RateLimit.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.StaleAfter <= 0 {
		errs = append(errs, errors.New("session_policy.stale_after must be positive"))
	}
	return errors.Join(errs...)
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// String возвращает конфиг для логирования; секреты скрыты.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageDriver: %s\n"+
			"StorageConnectionString: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"  DB: %d\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"  Exchange: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  JWTSecretKey: %s\n"+
			"  TokenTTL: %s\n"+
			"SessionPolicy:\n"+
			"  StaleAfter: %s\n"+
			"  VerifyEmailOnLogin: %t\n"+
			"  TrialPeriod: %s\n",
		c.Env,
		c.StorageDriver,
		mask(c.StorageConnectionString),
		c.AddressRedis,
		mask(c.RedisConnection.Password),
		c.DB,
		mask(c.RabbitMQ.URL),
		c.Exchange,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		mask(c.JWTSecretKey),
		c.TokenTTL,
		c.StaleAfter,
		c.VerifyEmailOnLogin(),
		c.TrialPeriod,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
