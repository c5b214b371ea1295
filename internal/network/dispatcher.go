package network

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FlowrPro/Essence.io-frontend/internal/logging"
	"github.com/FlowrPro/Essence.io-frontend/internal/protocol"
)

// Направления кадров для FrameRecorder
const (
	DirectionInbound  = "in"
	DirectionOutbound = "out"
)

// FrameRecorder получает копию каждого отправленного и принятого кадра
type FrameRecorder interface {
	Record(direction string, frame []byte) error
}

// Transmitter минимальная часть канала, нужная диспетчеру
type Transmitter interface {
	Send(frame []byte) error
	State() ChannelState
}

// DispatcherConfig параметры исходящего диспетчера
type DispatcherConfig struct {
	SendInterval      time.Duration
	HeartbeatInterval time.Duration
	BatchMaxSize      int
}

// DefaultDispatcherConfig возвращает параметры по умолчанию (60 Гц, 50 сообщений, ping раз в 5 с)
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		SendInterval:      time.Second / 60,
		HeartbeatInterval: 5 * time.Second,
		BatchMaxSize:      50,
	}
}

// Dispatcher направляет исходящие пакеты по двум полосам.
// Критичные пакеты отправляются сразу (или при открытии канала),
// обычные накапливаются и уходят batch конвертами по таймеру.
type Dispatcher struct {
	mu       sync.Mutex
	channel  Transmitter
	cfg      DispatcherConfig
	critical [][]byte
	normal   []json.RawMessage

	now      func() time.Time
	recorder FrameRecorder
	logger   *logging.Logger

	latency atomic.Int64 // time.Duration
}

// NewDispatcher создаёт диспетчер для канала
func NewDispatcher(channel Transmitter, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if cfg.BatchMaxSize <= 0 {
		cfg.BatchMaxSize = defaults.BatchMaxSize
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = defaults.SendInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	return &Dispatcher{
		channel: channel,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

// SetClock подменяет источник времени
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// SetRecorder подключает журнал исходящих кадров
func (d *Dispatcher) SetRecorder(r FrameRecorder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recorder = r
}

// Send ставит пакет в полосу по приоритету. В закрытом канале пакет отбрасывается.
func (d *Dispatcher) Send(msgType string, payload interface{}, priority protocol.Priority) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := d.channel.State()
	if state == StateClosed {
		d.logger.Debug("Dropping %s: channel closed", msgType)
		packetsDropped.WithLabelValues("closed").Inc()
		return
	}

	frame, err := protocol.EncodePacket(protocol.Packet{
		Type:      msgType,
		Payload:   payload,
		Timestamp: d.now().UnixMilli(),
		Priority:  priority,
	})
	if err != nil {
		d.logger.Error("Dropping %s: %v", msgType, err)
		packetsDropped.WithLabelValues("encode").Inc()
		return
	}

	if priority == protocol.PriorityCritical {
		d.critical = append(d.critical, frame)
	} else {
		d.normal = append(d.normal, frame)
	}

	if state == StateOpen {
		d.flushCriticalLocked()
	}
	d.updateQueueGauges()
}

// Tick сбрасывает отложенные критичные пакеты и отправляет не более
// BatchMaxSize обычных пакетов одним конвертом. Остаток ждёт следующего тика.
func (d *Dispatcher) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.updateQueueGauges()

	if d.channel.State() != StateOpen {
		return
	}

	if !d.flushCriticalLocked() || len(d.normal) == 0 {
		return
	}

	n := len(d.normal)
	if n > d.cfg.BatchMaxSize {
		n = d.cfg.BatchMaxSize
	}

	frame, err := protocol.EncodeBatch(d.normal[:n], d.now().UnixMilli())
	if err != nil {
		// Пакеты уже сериализованы, ошибка здесь означает повреждение очереди
		d.logger.Error("Failed to encode batch of %d: %v", n, err)
		return
	}

	if err := d.channel.Send(frame); err != nil {
		d.logger.Debug("Batch of %d requeued: %v", n, err)
		return
	}

	d.record(frame)
	d.normal = append(d.normal[:0], d.normal[n:]...)
	packetsSent.WithLabelValues("normal").Add(float64(n))
	batchSize.Observe(float64(n))
}

// flushCriticalLocked отправляет очередь критичных пакетов по порядку.
// Возвращает false, если часть пакетов осталась в очереди.
func (d *Dispatcher) flushCriticalLocked() bool {
	for len(d.critical) > 0 {
		if err := d.channel.Send(d.critical[0]); err != nil {
			d.logger.Debug("Critical packet deferred: %v", err)
			return false
		}
		d.record(d.critical[0])
		d.critical = d.critical[1:]
		packetsSent.WithLabelValues("critical").Inc()
	}
	d.critical = nil
	return true
}

func (d *Dispatcher) record(frame []byte) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(DirectionOutbound, frame); err != nil {
		d.logger.Warn("Failed to record outbound frame: %v", err)
	}
}

func (d *Dispatcher) updateQueueGauges() {
	queueDepth.WithLabelValues("critical").Set(float64(len(d.critical)))
	queueDepth.WithLabelValues("normal").Set(float64(len(d.normal)))
}

// OnOpen вызывается при открытии канала: сбрасывает отложенные критичные
// пакеты и отправляет первый ping
func (d *Dispatcher) OnOpen() {
	d.mu.Lock()
	d.flushCriticalLocked()
	d.mu.Unlock()
	d.Ping()
}

// Ping отправляет критичный heartbeat с текущей отметкой времени
func (d *Dispatcher) Ping() {
	d.Send(protocol.CommandPing, nil, protocol.PriorityCritical)
}

// HandlePong обновляет оценку RTT по эхо отметке времени
func (d *Dispatcher) HandlePong(serverTime int64) {
	d.mu.Lock()
	nowMs := d.now().UnixMilli()
	d.mu.Unlock()

	rtt := nowMs - serverTime
	if rtt < 0 {
		d.logger.Debug("Ignoring pong from the future: serverTime=%d now=%d", serverTime, nowMs)
		return
	}

	d.latency.Store(int64(time.Duration(rtt) * time.Millisecond))
	latencyMs.Set(float64(rtt))
}

// Latency возвращает последнюю оценку RTT
func (d *Dispatcher) Latency() time.Duration {
	return time.Duration(d.latency.Load())
}

// QueueDepths возвращает длину критичной и обычной очередей
func (d *Dispatcher) QueueDepths() (critical, normal int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.critical), len(d.normal)
}

// Run запускает таймеры отправки и heartbeat до отмены контекста
func (d *Dispatcher) Run(ctx context.Context) {
	sendTicker := time.NewTicker(d.cfg.SendInterval)
	defer sendTicker.Stop()

	pingTicker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-sendTicker.C:
			d.Tick()
		case <-pingTicker.C:
			d.Ping()
		case <-ctx.Done():
			return
		}
	}
}
