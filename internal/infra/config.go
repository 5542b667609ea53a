package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — конфигурация обоих бинарей (verifier и console).
// Каждый читает только свои секции, формат общий.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig — HTTP-сервер и отдельный порт метрик.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig — пул подключений к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub между инстансами).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig — RSA ключи и параметры выдачи JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// EngineConfig содержит специфичные настройки движка верификации.
type EngineConfig struct {
	// Контракт детектора: ответ в пределах таймаута или деградация (confidence 0)
	DetectorTimeout time.Duration `mapstructure:"detector_timeout"`
	// DetectorURL — адрес внешнего скорера. Пустая строка = встроенная эвристика.
	DetectorURL       string  `mapstructure:"detector_url"`
	DetectorRateLimit float64 `mapstructure:"detector_rate_limit"` // Запросов в секунду
	DetectorBurst     int     `mapstructure:"detector_burst"`

	// Дефолтный порог блокировки по риску детектора (перекрывается на уровне организации)
	BlockThreshold float64 `mapstructure:"block_threshold"`
	// Приоритет типа нарушения, когда на одной severity сработали правила разных категорий
	ViolationPrecedence []string `mapstructure:"violation_precedence"`

	// Настройки Circuit Breaker для внешнего детектора
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`

	// Fan-out: размеры буферов очереди организации и подписчика
	FanoutOrgBuffer int `mapstructure:"fanout_org_buffer"`
	FanoutSubBuffer int `mapstructure:"fanout_sub_buffer"`

	// Audit trail (пакетная запись событий пайплайна)
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig собирает конфигурацию: дефолты < yaml файл < ENV.
// ENV перекрывает файл: SERVER_PORT=9000 заменит server.port.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Отсутствие файла не ошибка: ENV + дефолты достаточны в контейнере
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// PEM-материал: либо сам ключ в ENV (Docker/K8s secret), либо файл по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("engine.detector_timeout", 5*time.Second)
	v.SetDefault("engine.detector_rate_limit", 100)
	v.SetDefault("engine.detector_burst", 20)
	v.SetDefault("engine.block_threshold", 0.6)
	// compliance строже policy: регуляторная категория побеждает при равной severity
	v.SetDefault("engine.violation_precedence", []string{"compliance", "policy", "hallucination"})
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.fanout_org_buffer", 1024)
	v.SetDefault("engine.fanout_sub_buffer", 64)
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
}

func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
	}
	// Пустой результат увидит ParseRSA* и вернет понятную ошибку
	return nil
}
