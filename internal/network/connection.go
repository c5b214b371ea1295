package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/FlowrPro/Essence.io-frontend/internal/config"
	"github.com/FlowrPro/Essence.io-frontend/internal/logging"
	"github.com/FlowrPro/Essence.io-frontend/internal/protocol"
)

// Handler обрабатывает входящее событие. Возвращаемая ошибка логируется
// по категории (protocol.ErrProtocol, protocol.ErrState) и не прерывает кадр.
type Handler func(ev protocol.Event) error

// Connection владеет каналом, диспетчером и реестром обработчиков одной игровой сессии.
// Входящие кадры копятся в очереди и разбираются только в Poll, поэтому
// обработчики выполняются в горутине симуляции.
type Connection struct {
	id         string
	channel    NetChannel
	dispatcher *Dispatcher
	logger     *logging.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	recorder FrameRecorder

	inbound chan []byte
	polling bool

	runCancel context.CancelFunc
	done      chan struct{}
	doneOnce  sync.Once
	closeErr  atomic.Value // error
}

// ConnectionSnapshot срез состояния соединения для диагностики
type ConnectionSnapshot struct {
	SessionID     string          `json:"session_id"`
	State         string          `json:"state"`
	RemoteAddr    string          `json:"remote_addr"`
	Latency       time.Duration   `json:"latency_ns"`
	QueueCritical int             `json:"queue_critical"`
	QueueNormal   int             `json:"queue_normal"`
	InboundQueued int             `json:"inbound_queued"`
	Stats         ConnectionStats `json:"stats"`
}

// NewConnection связывает канал с диспетчером и регистрирует обработчики heartbeat
func NewConnection(channel NetChannel, settings *config.NetworkConfig, logger *logging.Logger) *Connection {
	inboundSize := settings.InboundBuffer
	if inboundSize <= 0 {
		inboundSize = 1024
	}

	c := &Connection{
		id:      uuid.NewString(),
		channel: channel,
		logger:  logger,
		dispatcher: NewDispatcher(channel, DispatcherConfig{
			SendInterval:      settings.SendInterval(),
			HeartbeatInterval: settings.HeartbeatInterval(),
			BatchMaxSize:      settings.BatchMaxSize,
		}, logger),
		handlers: make(map[string]Handler),
		inbound:  make(chan []byte, inboundSize),
		done:     make(chan struct{}),
	}

	channel.OnMessage(c.enqueue)
	channel.OnConnect(c.handleOpen)
	channel.OnDisconnect(c.handleClose)
	channel.OnError(func(err error) {
		c.logger.Warn("Session %s transport error: %v", c.id, err)
	})

	c.On(protocol.EventPing, c.handlePing)
	c.On(protocol.EventPong, c.handlePong)
	return c
}

// DialOption настраивает соединение до рукопожатия
type DialOption func(*Connection)

// WithRecorder подключает журнал кадров до открытия канала,
// чтобы в него попали ping при открытии и первые входящие события
func WithRecorder(r FrameRecorder) DialOption {
	return func(c *Connection) {
		c.SetRecorder(r)
	}
}

// Dial создаёт канал по URL из настроек и открывает соединение.
// Ошибка рукопожатия возвращается как *ConnectError.
func Dial(ctx context.Context, settings *config.NetworkConfig, logger *logging.Logger, opts ...DialOption) (*Connection, error) {
	channelCfg, addr, err := ChannelConfigFromSettings(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrConnection, err)
	}

	channel, err := NewStandardChannelFactory(logger).CreateChannel(channelCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrConnection, err)
	}

	conn := NewConnection(channel, settings, logger)
	for _, opt := range opts {
		opt(conn)
	}
	if err := conn.Open(ctx, addr); err != nil {
		return nil, err
	}
	return conn, nil
}

// Open выполняет рукопожатие и запускает таймеры диспетчера
func (c *Connection) Open(ctx context.Context, addr string) error {
	c.logger.Info("Session %s connecting to %s", c.id, addr)

	// Контекст таймеров создаётся до Connect: закрытие во время рукопожатия отменит его
	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.runCancel = cancel
	c.mu.Unlock()

	if err := c.channel.Connect(ctx, addr); err != nil {
		cancel()
		c.finish(err)
		c.logger.Error("Session %s failed to connect: %v", c.id, err)
		return err
	}

	go c.dispatcher.Run(runCtx)
	return nil
}

// ID возвращает идентификатор сессии (используется в логах и диагностике)
func (c *Connection) ID() string {
	return c.id
}

// State возвращает состояние канала
func (c *Connection) State() ChannelState {
	return c.channel.State()
}

// Latency возвращает последнюю оценку RTT
func (c *Connection) Latency() time.Duration {
	return c.dispatcher.Latency()
}

// Dispatcher возвращает исходящий диспетчер соединения
func (c *Connection) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Done закрывается при переходе канала в closed
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err возвращает причину закрытия (nil при штатном закрытии)
func (c *Connection) Err() error {
	if err, ok := c.closeErr.Load().(error); ok {
		return err
	}
	return nil
}

// SetRecorder подключает журнал кадров в обоих направлениях
func (c *Connection) SetRecorder(r FrameRecorder) {
	c.mu.Lock()
	c.recorder = r
	c.mu.Unlock()
	c.dispatcher.SetRecorder(r)
}

// On регистрирует обработчик для типа события. Повторная регистрация заменяет предыдущую.
func (c *Connection) On(eventType string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = handler
}

// Send отправляет команду серверу через диспетчер
func (c *Connection) Send(msgType string, payload interface{}, priority protocol.Priority) {
	c.dispatcher.Send(msgType, payload, priority)
}

// Poll разбирает накопленные входящие кадры и вызывает обработчики в порядке прихода.
// Возвращает число обработанных кадров. Вызов изнутри обработчика ничего не делает.
func (c *Connection) Poll() int {
	if c.polling {
		return 0
	}
	c.polling = true
	defer func() { c.polling = false }()

	pending := len(c.inbound)
	processed := 0
	for i := 0; i < pending; i++ {
		select {
		case frame := <-c.inbound:
			c.dispatchFrame(frame)
			processed++
		default:
			return processed
		}
	}
	return processed
}

// Close закрывает канал и останавливает таймеры
func (c *Connection) Close() error {
	err := c.channel.Close()
	c.finish(nil)
	return err
}

// Snapshot возвращает срез состояния соединения
func (c *Connection) Snapshot() ConnectionSnapshot {
	critical, normal := c.dispatcher.QueueDepths()
	return ConnectionSnapshot{
		SessionID:     c.id,
		State:         c.channel.State().String(),
		RemoteAddr:    c.channel.RemoteAddr(),
		Latency:       c.dispatcher.Latency(),
		QueueCritical: critical,
		QueueNormal:   normal,
		InboundQueued: len(c.inbound),
		Stats:         c.channel.Stats(),
	}
}

func (c *Connection) dispatchFrame(frame []byte) {
	events, err := protocol.DecodeFrame(frame)
	if err != nil {
		eventErrors.WithLabelValues("protocol").Inc()
		logging.LogProtocolError(c.logger, c.id, err, frame)
	}

	for _, ev := range events {
		c.mu.RLock()
		handler := c.handlers[ev.Type]
		c.mu.RUnlock()

		if handler == nil {
			eventErrors.WithLabelValues("protocol").Inc()
			c.logger.Warn("Session %s: %v: unknown event type %q", c.id, protocol.ErrProtocol, ev.Type)
			continue
		}

		if err := handler(ev); err != nil {
			c.reportEventError(ev.Type, err)
		}
	}
}

func (c *Connection) reportEventError(eventType string, err error) {
	switch {
	case errors.Is(err, protocol.ErrState):
		eventErrors.WithLabelValues("state").Inc()
		c.logger.Debug("Session %s: %s ignored: %v", c.id, eventType, err)
	case errors.Is(err, protocol.ErrProtocol):
		eventErrors.WithLabelValues("protocol").Inc()
		c.logger.Warn("Session %s: %s dropped: %v", c.id, eventType, err)
	default:
		eventErrors.WithLabelValues("handler").Inc()
		c.logger.Error("Session %s: %s handler failed: %v", c.id, eventType, err)
	}
}

// enqueue вызывается из горутины чтения канала
func (c *Connection) enqueue(frame []byte) {
	framesReceived.Inc()

	c.mu.RLock()
	recorder := c.recorder
	c.mu.RUnlock()
	if recorder != nil {
		if err := recorder.Record(DirectionInbound, frame); err != nil {
			c.logger.Warn("Failed to record inbound frame: %v", err)
		}
	}

	select {
	case c.inbound <- frame:
	default:
		inboundDropped.Inc()
		c.logger.Warn("Session %s inbound queue full, dropping frame (%d bytes)", c.id, len(frame))
	}
}

func (c *Connection) handleOpen() {
	c.logger.Info("Session %s open", c.id)
	c.dispatcher.OnOpen()
}

func (c *Connection) handleClose(err error) {
	if err != nil {
		c.logger.Warn("Session %s closed: %v", c.id, err)
	} else {
		c.logger.Info("Session %s closed", c.id)
	}
	c.finish(err)
}

func (c *Connection) finish(err error) {
	c.doneOnce.Do(func() {
		if err != nil {
			c.closeErr.Store(err)
		}
		c.mu.RLock()
		cancel := c.runCancel
		c.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
		close(c.done)
	})
}

func (c *Connection) handlePing(protocol.Event) error {
	c.Send(protocol.CommandPong, protocol.PongData{
		ServerTime: time.Now().UnixMilli(),
	}, protocol.PriorityCritical)
	return nil
}

func (c *Connection) handlePong(ev protocol.Event) error {
	pong, err := protocol.DecodePayload[protocol.PongData](ev)
	if err != nil {
		return err
	}
	c.dispatcher.HandlePong(pong.ServerTime)
	return nil
}
