package network

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FlowrPro/Essence.io-frontend/internal/logging"
)

const wsWriteTimeout = 5 * time.Second

// WebSocketChannel реализует NetChannel поверх WebSocket (текстовые кадры)
type WebSocketChannel struct {
	config *ChannelConfig
	logger *logging.Logger
	dialer *websocket.Dialer

	mu         sync.Mutex // conn и переход в open/closed
	conn       *websocket.Conn
	remoteAddr string
	state      atomic.Int32
	dialed     atomic.Bool

	events   channelEvents
	counters channelCounters

	sendBuffer chan []byte

	// Контроль выполнения
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWebSocketChannel создаёт новый WebSocket канал
func NewWebSocketChannel(config *ChannelConfig, logger *logging.Logger) *WebSocketChannel {
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketChannel{
		config: config,
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.Timeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		ctx:        ctx,
		cancel:     cancel,
		sendBuffer: make(chan []byte, config.BufferSize),
	}
}

// Connect устанавливает соединение с сервером. Закрытый канал не переоткрывается:
// Close до или во время рукопожатия даёт *ConnectError с ErrNotOpen.
func (wc *WebSocketChannel) Connect(ctx context.Context, addr string) error {
	if wc.State() == StateClosed || wc.ctx.Err() != nil {
		return &ConnectError{Addr: addr, Err: ErrNotOpen}
	}
	if !wc.dialed.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}

	if wc.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wc.config.Timeout)
		defer cancel()
	}
	// Close во время рукопожатия прерывает dial
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(wc.ctx, cancel)
	defer stop()

	conn, _, err := wc.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		if wc.ctx.Err() != nil {
			return &ConnectError{Addr: addr, Err: ErrNotOpen}
		}
		wc.mu.Lock()
		wc.state.Store(int32(StateClosed))
		wc.cancel()
		wc.mu.Unlock()
		return &ConnectError{Addr: addr, Err: err}
	}

	if wc.config.MaxFrame > 0 {
		conn.SetReadLimit(int64(wc.config.MaxFrame))
	}

	wc.mu.Lock()
	if wc.ctx.Err() != nil {
		wc.mu.Unlock()
		_ = conn.Close()
		return &ConnectError{Addr: addr, Err: ErrNotOpen}
	}
	wc.conn = conn
	wc.remoteAddr = addr
	wc.state.Store(int32(StateOpen))

	wc.wg.Add(2)
	go wc.writeLoop()
	go wc.readLoop()
	wc.mu.Unlock()

	wc.logger.Info("WebSocket channel connected: addr=%s", addr)
	wc.events.connect()
	return nil
}

// Send ставит кадр в очередь записи
func (wc *WebSocketChannel) Send(frame []byte) error {
	if wc.State() != StateOpen {
		return ErrNotOpen
	}

	select {
	case wc.sendBuffer <- frame:
		return nil
	case <-wc.ctx.Done():
		return ErrNotOpen
	default:
		return ErrSendBufferFull
	}
}

// Close закрывает канал и ждёт завершения горутин
func (wc *WebSocketChannel) Close() error {
	wc.mu.Lock()
	conn := wc.conn
	wc.mu.Unlock()

	if conn != nil && wc.State() == StateOpen {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	wc.shutdown(nil)
	wc.wg.Wait()
	return nil
}

// shutdown переводит канал в closed ровно один раз
func (wc *WebSocketChannel) shutdown(cause error) {
	wc.closeOnce.Do(func() {
		wc.mu.Lock()
		wc.state.Store(int32(StateClosed))
		wc.cancel()
		conn := wc.conn
		wc.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		wc.logger.Info("WebSocket channel closed: addr=%s cause=%v", wc.remoteAddr, cause)
		wc.events.disconnect(cause)
	})
}

// State возвращает текущее состояние канала
func (wc *WebSocketChannel) State() ChannelState {
	return ChannelState(wc.state.Load())
}

// RemoteAddr возвращает адрес удалённого узла
func (wc *WebSocketChannel) RemoteAddr() string {
	return wc.remoteAddr
}

// Stats возвращает статистику соединения
func (wc *WebSocketChannel) Stats() ConnectionStats {
	return wc.counters.snapshot(wc.State(), wc.remoteAddr)
}

// OnMessage устанавливает обработчик входящих кадров
func (wc *WebSocketChannel) OnMessage(handler func([]byte)) { wc.events.setMessage(handler) }

// OnConnect устанавливает обработчик подключения
func (wc *WebSocketChannel) OnConnect(handler func()) { wc.events.setConnect(handler) }

// OnDisconnect устанавливает обработчик отключения
func (wc *WebSocketChannel) OnDisconnect(handler func(error)) { wc.events.setDisconnect(handler) }

// OnError устанавливает обработчик ошибок
func (wc *WebSocketChannel) OnError(handler func(error)) { wc.events.setError(handler) }

// writeLoop обрабатывает отправку кадров в порядке постановки в очередь
func (wc *WebSocketChannel) writeLoop() {
	defer wc.wg.Done()

	for {
		select {
		case frame := <-wc.sendBuffer:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := wc.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				wc.logger.Error("Failed to write frame: %v", err)
				wc.events.fail(err)
				wc.shutdown(err)
				return
			}
			wc.counters.sent(len(frame))
		case <-wc.ctx.Done():
			return
		}
	}
}

// readLoop читает входящие кадры до закрытия соединения
func (wc *WebSocketChannel) readLoop() {
	defer wc.wg.Done()

	for {
		msgType, data, err := wc.conn.ReadMessage()
		if err != nil {
			if wc.ctx.Err() == nil && !isNormalClose(err) {
				wc.logger.Warn("WebSocket read failed: %v", err)
				wc.events.fail(err)
			}
			wc.shutdown(err)
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		wc.counters.received(len(data))
		wc.events.message(data)
	}
}

func isNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}
