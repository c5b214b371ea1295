package network

import (
	"fmt"
	"net/url"

	"github.com/FlowrPro/Essence.io-frontend/internal/config"
	"github.com/FlowrPro/Essence.io-frontend/internal/logging"
)

// ChannelFactory создаёт каналы разных типов
type ChannelFactory interface {
	CreateChannel(config *ChannelConfig) (NetChannel, error)
	SupportedTypes() []ChannelType
}

// StandardChannelFactory реализует ChannelFactory для WebSocket и KCP
type StandardChannelFactory struct {
	logger *logging.Logger
}

// NewStandardChannelFactory создаёт новую фабрику каналов
func NewStandardChannelFactory(logger *logging.Logger) *StandardChannelFactory {
	return &StandardChannelFactory{
		logger: logger,
	}
}

// CreateChannel создаёт канал указанного типа с заданной конфигурацией
func (f *StandardChannelFactory) CreateChannel(config *ChannelConfig) (NetChannel, error) {
	switch config.Type {
	case ChannelKCP:
		return NewKCPChannel(config, f.logger)
	case ChannelWebSocket:
		return NewWebSocketChannel(config, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported channel type: %v", config.Type)
	}
}

// SupportedTypes возвращает список поддерживаемых типов каналов
func (f *StandardChannelFactory) SupportedTypes() []ChannelType {
	return []ChannelType{
		ChannelWebSocket,
		ChannelKCP,
	}
}

// ParseServerURL определяет тип канала по схеме URL и возвращает адрес для Connect.
// ws:// и wss:// используют WebSocket, kcp:// использует KCP (адрес host:port).
func ParseServerURL(raw string) (ChannelType, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, "", fmt.Errorf("invalid server url %q: %w", raw, err)
	}
	if u.Host == "" {
		return 0, "", fmt.Errorf("invalid server url %q: missing host", raw)
	}

	switch u.Scheme {
	case "ws", "wss":
		return ChannelWebSocket, raw, nil
	case "kcp":
		return ChannelKCP, u.Host, nil
	default:
		return 0, "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

// ChannelConfigFromSettings собирает конфигурацию канала из настроек сети
func ChannelConfigFromSettings(settings *config.NetworkConfig) (*ChannelConfig, string, error) {
	channelType, addr, err := ParseServerURL(settings.ServerURL)
	if err != nil {
		return nil, "", err
	}

	cfg := DefaultChannelConfig(channelType)
	if settings.SendBuffer > 0 {
		cfg.BufferSize = settings.SendBuffer
	}
	cfg.Timeout = settings.ConnectTimeout()
	if settings.Compression != "" {
		cfg.Compression = settings.Compression
	}
	return cfg, addr, nil
}
