package network

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/xtaci/kcp-go/v5"

	"github.com/FlowrPro/Essence.io-frontend/internal/logging"
)

const frameHeaderSize = 4

// Распакованный кадр может быть больше сжатого не более чем во столько раз
const maxDecompressionRatio = 8

// Лимит распаковки, если MaxFrame не задан
const defaultDecodedLimit = 64 << 20

// KCPChannel реализует NetChannel для KCP (надёжный UDP).
// Кадры передаются в потоковом режиме с 4-байтовым заголовком длины.
type KCPChannel struct {
	mu         sync.Mutex // conn и переход в open/closed
	conn       *kcp.UDPSession
	config     *ChannelConfig
	logger     *logging.Logger
	remoteAddr string

	state  atomic.Int32
	dialed atomic.Bool

	events   channelEvents
	counters channelCounters

	// Сжатие
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder

	sendBuffer chan []byte

	// Контроль выполнения
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewKCPChannel создаёт новый KCP канал
func NewKCPChannel(config *ChannelConfig, logger *logging.Logger) (*KCPChannel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	channel := &KCPChannel{
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		sendBuffer: make(chan []byte, config.BufferSize),
	}

	// Инициализируем сжатие если требуется
	if config.Compression == "zstd" {
		var err error
		channel.compressor, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create compressor: %w", err)
		}

		channel.decompressor, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(decodedLimit(config.MaxFrame)))
		if err != nil {
			channel.compressor.Close()
			cancel()
			return nil, fmt.Errorf("failed to create decompressor: %w", err)
		}
	}

	return channel, nil
}

// decodedLimit верхняя граница размера распакованного кадра
func decodedLimit(maxFrame int) uint64 {
	if maxFrame <= 0 {
		return defaultDecodedLimit
	}
	return uint64(maxFrame) * maxDecompressionRatio
}

// Connect устанавливает соединение с сервером. Закрытый канал не переоткрывается.
func (kc *KCPChannel) Connect(ctx context.Context, addr string) error {
	if kc.State() == StateClosed || kc.ctx.Err() != nil {
		return &ConnectError{Addr: addr, Err: ErrNotOpen}
	}
	if !kc.dialed.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}

	if err := ctx.Err(); err != nil {
		kc.failDial()
		return &ConnectError{Addr: addr, Err: err}
	}

	conn, err := kcp.DialWithOptions(addr, nil, 10, 3)
	if err != nil {
		kc.failDial()
		return &ConnectError{Addr: addr, Err: err}
	}

	// Настраиваем KCP параметры для игрового трафика
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
	conn.SetWindowSize(512, 512)
	conn.SetMtu(1400)

	kc.mu.Lock()
	if kc.ctx.Err() != nil {
		kc.mu.Unlock()
		_ = conn.Close()
		return &ConnectError{Addr: addr, Err: ErrNotOpen}
	}
	kc.conn = conn
	kc.remoteAddr = addr
	kc.state.Store(int32(StateOpen))

	kc.wg.Add(2)
	go kc.sendLoop()
	go kc.receiveLoop()
	kc.mu.Unlock()

	kc.logger.Info("KCP channel connected: addr=%s compression=%s", addr, kc.config.Compression)
	kc.events.connect()
	return nil
}

// failDial закрывает канал после неудачного рукопожатия
func (kc *KCPChannel) failDial() {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.state.Store(int32(StateClosed))
	kc.cancel()
}

// Send ставит кадр в очередь записи
func (kc *KCPChannel) Send(frame []byte) error {
	if kc.State() != StateOpen {
		return ErrNotOpen
	}

	select {
	case kc.sendBuffer <- frame:
		return nil
	case <-kc.ctx.Done():
		return ErrNotOpen
	default:
		return ErrSendBufferFull
	}
}

// Close закрывает канал и освобождает кодеки
func (kc *KCPChannel) Close() error {
	kc.shutdown(nil)
	kc.wg.Wait()
	if kc.compressor != nil {
		_ = kc.compressor.Close()
	}
	if kc.decompressor != nil {
		kc.decompressor.Close()
	}
	return nil
}

func (kc *KCPChannel) shutdown(cause error) {
	kc.closeOnce.Do(func() {
		kc.mu.Lock()
		kc.state.Store(int32(StateClosed))
		kc.cancel()
		conn := kc.conn
		kc.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		kc.logger.Info("KCP channel closed: addr=%s cause=%v", kc.remoteAddr, cause)
		kc.events.disconnect(cause)
	})
}

// State возвращает текущее состояние канала
func (kc *KCPChannel) State() ChannelState {
	return ChannelState(kc.state.Load())
}

// RemoteAddr возвращает адрес удалённого узла
func (kc *KCPChannel) RemoteAddr() string {
	return kc.remoteAddr
}

// Stats возвращает статистику соединения
func (kc *KCPChannel) Stats() ConnectionStats {
	return kc.counters.snapshot(kc.State(), kc.remoteAddr)
}

// OnMessage устанавливает обработчик входящих кадров
func (kc *KCPChannel) OnMessage(handler func([]byte)) { kc.events.setMessage(handler) }

// OnConnect устанавливает обработчик подключения
func (kc *KCPChannel) OnConnect(handler func()) { kc.events.setConnect(handler) }

// OnDisconnect устанавливает обработчик отключения
func (kc *KCPChannel) OnDisconnect(handler func(error)) { kc.events.setDisconnect(handler) }

// OnError устанавливает обработчик ошибок
func (kc *KCPChannel) OnError(handler func(error)) { kc.events.setError(handler) }

// sendLoop обрабатывает отправку кадров
func (kc *KCPChannel) sendLoop() {
	defer kc.wg.Done()

	for {
		select {
		case frame := <-kc.sendBuffer:
			data := kc.encodeFrame(frame)
			if _, err := kc.conn.Write(data); err != nil {
				kc.logger.Error("Failed to write frame: %v", err)
				kc.events.fail(err)
				kc.shutdown(err)
				return
			}
			kc.counters.sent(len(data))
		case <-kc.ctx.Done():
			return
		}
	}
}

// receiveLoop читает кадры из потока до закрытия соединения
func (kc *KCPChannel) receiveLoop() {
	defer kc.wg.Done()

	reader := bufio.NewReader(kc.conn)
	for {
		payload, err := readFrame(reader, kc.config.MaxFrame)
		if err != nil {
			if kc.ctx.Err() == nil {
				kc.logger.Warn("KCP read failed: %v", err)
				kc.events.fail(err)
			}
			kc.shutdown(err)
			return
		}

		kc.counters.received(len(payload) + frameHeaderSize)

		frame, err := kc.decodeFrame(payload)
		if err != nil {
			kc.logger.Warn("Dropping undecodable frame: %v", err)
			kc.events.fail(err)
			continue
		}
		kc.events.message(frame)
	}
}

// encodeFrame применяет сжатие и добавляет заголовок с длиной
func (kc *KCPChannel) encodeFrame(frame []byte) []byte {
	payload := frame
	if kc.compressor != nil {
		payload = kc.compressor.EncodeAll(frame, nil)
	}
	return appendFrame(make([]byte, 0, len(payload)+frameHeaderSize), payload)
}

// decodeFrame снимает сжатие с полезной нагрузки
func (kc *KCPChannel) decodeFrame(payload []byte) ([]byte, error) {
	if kc.decompressor == nil {
		return payload, nil
	}
	decompressed, err := kc.decompressor.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return decompressed, nil
}

// appendFrame дописывает кадр с 4-байтовым little-endian заголовком длины
func appendFrame(dst, payload []byte) []byte {
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

// readFrame читает один кадр из потока
func readFrame(r io.Reader, maxFrame int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[:])
	if maxFrame > 0 && length > uint32(maxFrame) {
		return nil, fmt.Errorf("frame too large: %d > %d", length, maxFrame)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("message too short: %w", err)
	}
	return payload, nil
}
