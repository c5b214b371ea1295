// Package network предоставляет транспорт, исходящий диспетчер и соединение игровой сессии
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FlowrPro/Essence.io-frontend/internal/protocol"
)

// ChannelType определяет тип канала связи
type ChannelType int

const (
	ChannelWebSocket ChannelType = iota
	ChannelKCP
)

// String возвращает имя типа канала
func (t ChannelType) String() string {
	switch t {
	case ChannelWebSocket:
		return "websocket"
	case ChannelKCP:
		return "kcp"
	default:
		return "unknown"
	}
}

// ChannelState состояние канала: connecting → open → closed.
// Закрытое состояние терминально, переподключения нет.
type ChannelState int32

const (
	StateConnecting ChannelState = iota
	StateOpen
	StateClosed
)

// String возвращает строковое представление состояния
func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotOpen отправка в канал, который еще не открыт или уже закрыт
	ErrNotOpen = errors.New("channel is not open")
	// ErrSendBufferFull буфер отправки переполнен
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrAlreadyConnected повторный вызов Connect
	ErrAlreadyConnected = errors.New("already connected")
)

// ConnectError ошибка установки соединения. Терминальна для сессии.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{protocol.ErrConnection, e.Err}
}

// ConnectionStats содержит статистику соединения
type ConnectionStats struct {
	FramesSent     uint64    // Отправлено кадров
	FramesReceived uint64    // Получено кадров
	BytesSent      uint64    // Отправлено байт
	BytesReceived  uint64    // Получено байт
	LastActivity   time.Time // Последняя активность
	State          ChannelState
	RemoteAddr     string // Адрес удалённого узла
}

// NetChannel представляет двунаправленный канал кадров поверх конкретного транспорта.
// Один кадр соответствует одному JSON сообщению.
type NetChannel interface {
	// Connect блокируется до завершения рукопожатия или ошибки (*ConnectError)
	Connect(ctx context.Context, addr string) error
	// Send ставит кадр в очередь записи
	Send(frame []byte) error
	Close() error

	State() ChannelState
	RemoteAddr() string
	Stats() ConnectionStats

	// События. Для каждого события хранится один обработчик, последняя регистрация побеждает.
	OnMessage(handler func([]byte))
	OnConnect(handler func())
	OnDisconnect(handler func(error))
	OnError(handler func(error))
}

// ChannelConfig содержит конфигурацию канала
type ChannelConfig struct {
	Type        ChannelType
	BufferSize  int
	Timeout     time.Duration // таймаут рукопожатия
	Compression string        // none | zstd (только KCP)
	MaxFrame    int           // максимальный размер входящего кадра
}

// DefaultChannelConfig возвращает конфигурацию канала по умолчанию
func DefaultChannelConfig(channelType ChannelType) *ChannelConfig {
	return &ChannelConfig{
		Type:        channelType,
		BufferSize:  256,
		Timeout:     10 * time.Second,
		Compression: "none",
		MaxFrame:    1 << 20,
	}
}

// channelEvents хранит обработчики событий канала
type channelEvents struct {
	mu           sync.RWMutex
	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)
	onError      func(error)
}

func (e *channelEvents) setMessage(h func([]byte)) {
	e.mu.Lock()
	e.onMessage = h
	e.mu.Unlock()
}

func (e *channelEvents) setConnect(h func()) {
	e.mu.Lock()
	e.onConnect = h
	e.mu.Unlock()
}

func (e *channelEvents) setDisconnect(h func(error)) {
	e.mu.Lock()
	e.onDisconnect = h
	e.mu.Unlock()
}

func (e *channelEvents) setError(h func(error)) {
	e.mu.Lock()
	e.onError = h
	e.mu.Unlock()
}

func (e *channelEvents) message(frame []byte) {
	e.mu.RLock()
	h := e.onMessage
	e.mu.RUnlock()
	if h != nil {
		h(frame)
	}
}

func (e *channelEvents) connect() {
	e.mu.RLock()
	h := e.onConnect
	e.mu.RUnlock()
	if h != nil {
		h()
	}
}

func (e *channelEvents) disconnect(err error) {
	e.mu.RLock()
	h := e.onDisconnect
	e.mu.RUnlock()
	if h != nil {
		h(err)
	}
}

func (e *channelEvents) fail(err error) {
	e.mu.RLock()
	h := e.onError
	e.mu.RUnlock()
	if h != nil {
		h(err)
	}
}

// channelCounters атомарные счетчики статистики канала
type channelCounters struct {
	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64
	lastActivity   atomic.Int64 // unix nano
}

func (c *channelCounters) sent(n int) {
	c.framesSent.Add(1)
	c.bytesSent.Add(uint64(n))
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *channelCounters) received(n int) {
	c.framesReceived.Add(1)
	c.bytesReceived.Add(uint64(n))
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *channelCounters) snapshot(state ChannelState, remote string) ConnectionStats {
	stats := ConnectionStats{
		FramesSent:     c.framesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
		BytesSent:      c.bytesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
		State:          state,
		RemoteAddr:     remote,
	}
	if ts := c.lastActivity.Load(); ts > 0 {
		stats.LastActivity = time.Unix(0, ts)
	}
	return stats
}
