package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации клиента.
// Значения фиксируются при старте сессии.
type Config struct {
	Network       NetworkConfig       `yaml:"network"`
	World         WorldConfig         `yaml:"world"`
	Interpolation InterpolationConfig `yaml:"interpolation"`
	Prediction    PredictionConfig    `yaml:"prediction"`
	Diagnostics   DiagnosticsConfig   `yaml:"diagnostics"`
	Replay        ReplayConfig        `yaml:"replay"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type NetworkConfig struct {
	ServerURL           string  `yaml:"server_url"`
	ConnectTimeoutMs    int     `yaml:"connect_timeout_ms"`
	SendIntervalMs      float64 `yaml:"send_interval_ms"`
	BatchMaxSize        int     `yaml:"batch_max_size"`
	HeartbeatIntervalMs int     `yaml:"heartbeat_interval_ms"`
	SendBuffer          int     `yaml:"send_buffer"`
	InboundBuffer       int     `yaml:"inbound_buffer"`
	Compression         string  `yaml:"compression"` // none | zstd (только kcp)
}

type WorldConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type InterpolationConfig struct {
	BufferCapacity int `yaml:"buffer_capacity"`
	DelayMs        int `yaml:"delay_ms"`
}

type PredictionConfig struct {
	Acceleration         float64 `yaml:"acceleration"`
	MaxSpeed             float64 `yaml:"max_speed"`
	Drag                 float64 `yaml:"drag"`
	RotationEpsilon      float64 `yaml:"rotation_epsilon"`
	ReconciliationFactor float64 `yaml:"reconciliation_factor"`
}

type DiagnosticsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type ReplayConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			ServerURL:           "ws://localhost:3001",
			ConnectTimeoutMs:    10000,
			SendIntervalMs:      1000.0 / 60.0,
			BatchMaxSize:        50,
			HeartbeatIntervalMs: 5000,
			SendBuffer:          256,
			InboundBuffer:       1024,
			Compression:         "none",
		},
		World: WorldConfig{Width: 2000, Height: 2000},
		Interpolation: InterpolationConfig{
			BufferCapacity: 2,
			DelayMs:        33,
		},
		Prediction: PredictionConfig{
			Acceleration:         300,
			MaxSpeed:             250,
			Drag:                 0.08,
			RotationEpsilon:      0.1,
			ReconciliationFactor: 0.1,
		},
		Logging: LoggingConfig{Level: "info", Dir: "logs"},
	}
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV ESSENCE_CONFIG,
// а при его отсутствии возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ESSENCE_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
		}
	}

	cfg.Network.ServerURL = getStringWithEnvFallback(cfg.Network.ServerURL, "ESSENCE_SERVER_URL")
	cfg.Diagnostics.ListenAddr = getStringWithEnvFallback(cfg.Diagnostics.ListenAddr, "ESSENCE_DIAG_ADDR")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getStringWithEnvFallback возвращает значение с приоритетом: env -> config
func getStringWithEnvFallback(configVal, envVar string) string {
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return configVal
}

// Validate проверяет значения, без которых сессия не может работать
func (c *Config) Validate() error {
	switch {
	case c.Network.ServerURL == "":
		return fmt.Errorf("network.server_url не задан")
	case c.Network.SendIntervalMs <= 0:
		return fmt.Errorf("network.send_interval_ms должен быть > 0, получено %v", c.Network.SendIntervalMs)
	case c.Network.BatchMaxSize <= 0:
		return fmt.Errorf("network.batch_max_size должен быть > 0, получено %d", c.Network.BatchMaxSize)
	case c.Network.HeartbeatIntervalMs <= 0:
		return fmt.Errorf("network.heartbeat_interval_ms должен быть > 0, получено %d", c.Network.HeartbeatIntervalMs)
	case c.Interpolation.BufferCapacity < 1:
		return fmt.Errorf("interpolation.buffer_capacity должен быть >= 1, получено %d", c.Interpolation.BufferCapacity)
	case c.World.Width <= 0 || c.World.Height <= 0:
		return fmt.Errorf("world: размеры должны быть положительными (%vx%v)", c.World.Width, c.World.Height)
	case c.Prediction.ReconciliationFactor <= 0 || c.Prediction.ReconciliationFactor > 1:
		return fmt.Errorf("prediction.reconciliation_factor должен быть в (0, 1], получено %v", c.Prediction.ReconciliationFactor)
	}
	if c.Network.Compression != "" && c.Network.Compression != "none" && c.Network.Compression != "zstd" {
		return fmt.Errorf("network.compression: неизвестный тип %q", c.Network.Compression)
	}
	return nil
}

// InterpolationActive сообщает, хватает ли емкости буфера для интерполяции.
// При емкости 1 удаленные игроки показываются по последнему снапшоту.
func (c *Config) InterpolationActive() bool {
	return c.Interpolation.BufferCapacity >= 2
}

// SendInterval интервал отправки пакетов обычного приоритета
func (n *NetworkConfig) SendInterval() time.Duration {
	return time.Duration(n.SendIntervalMs * float64(time.Millisecond))
}

// HeartbeatInterval интервал ping сообщений
func (n *NetworkConfig) HeartbeatInterval() time.Duration {
	return time.Duration(n.HeartbeatIntervalMs) * time.Millisecond
}

// ConnectTimeout таймаут установки соединения
func (n *NetworkConfig) ConnectTimeout() time.Duration {
	if n.ConnectTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.ConnectTimeoutMs) * time.Millisecond
}

// Delay задержка рендера удаленных сущностей относительно текущего времени
func (i *InterpolationConfig) Delay() time.Duration {
	return time.Duration(i.DelayMs) * time.Millisecond
}
