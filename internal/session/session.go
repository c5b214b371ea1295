// Package session связывает соединение, контроллер мира и ввод в кадровый цикл клиента
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FlowrPro/Essence.io-frontend/internal/input"
	"github.com/FlowrPro/Essence.io-frontend/internal/logging"
	"github.com/FlowrPro/Essence.io-frontend/internal/network"
	"github.com/FlowrPro/Essence.io-frontend/internal/protocol"
	"github.com/FlowrPro/Essence.io-frontend/internal/world"
)

// MaxFrameDelta верхняя граница шага симуляции после зависания
const MaxFrameDelta = 250 * time.Millisecond

// DefaultFPS частота кадров по умолчанию
const DefaultFPS = 60

// Transport часть соединения, нужная кадровому циклу
type Transport interface {
	world.Registrar
	Send(msgType string, payload interface{}, priority protocol.Priority)
	Poll() int
	Done() <-chan struct{}
	Err() error
	Snapshot() network.ConnectionSnapshot
}

// Report срез состояния сессии для диагностики
type Report struct {
	Connection network.ConnectionSnapshot `json:"connection"`
	World      world.Stats                `json:"world"`
	Frames     uint64                     `json:"frames"`
}

// Session кадровый цикл одного подключения
type Session struct {
	conn   Transport
	world  *world.Controller
	source input.Source
	logger *logging.Logger

	lastFrame time.Time
	lastKeys  []string
	sentInput bool

	frames    atomic.Uint64
	statsMu   sync.RWMutex
	lastStats world.Stats
}

// New создаёт сессию и регистрирует обработчики контроллера в соединении
func New(conn Transport, ctrl *world.Controller, source input.Source, logger *logging.Logger) *Session {
	if source == nil {
		source = input.Static{}
	}
	ctrl.Bind(conn)

	return &Session{
		conn:      conn,
		world:     ctrl,
		source:    source,
		logger:    logger,
		lastStats: ctrl.Stats(),
	}
}

// Join отправляет запрос на вход в игру
func (s *Session) Join(playerName string) {
	s.logger.Info("Joining as %q", playerName)
	s.conn.Send(protocol.CommandJoin, protocol.JoinPayload{PlayerName: playerName}, protocol.PriorityCritical)
}

// Frame выполняет один кадр: разбор входящих событий, ввод,
// отправка изменившихся клавиш и шаг симуляции
func (s *Session) Frame(now time.Time) {
	dt := s.frameDelta(now)

	s.conn.Poll()

	state := s.source.Poll()
	s.world.SetIntent(state.Direction())
	s.sendInput(state, now)

	s.world.Update(dt.Seconds())

	s.frames.Add(1)
	s.statsMu.Lock()
	s.lastStats = s.world.Stats()
	s.statsMu.Unlock()
}

func (s *Session) frameDelta(now time.Time) time.Duration {
	if s.lastFrame.IsZero() {
		s.lastFrame = now
		return 0
	}
	dt := now.Sub(s.lastFrame)
	s.lastFrame = now

	if dt < 0 {
		return 0
	}
	if dt > MaxFrameDelta {
		s.logger.Debug("Frame delta %v capped to %v", dt, MaxFrameDelta)
		return MaxFrameDelta
	}
	return dt
}

// sendInput отправляет набор клавиш только при его изменении
func (s *Session) sendInput(state input.State, now time.Time) {
	if s.world.Phase() != world.PhaseLive {
		return
	}
	keys := state.Keys()
	if s.sentInput && slices.Equal(keys, s.lastKeys) {
		return
	}
	s.lastKeys = keys
	s.sentInput = true
	s.conn.Send(protocol.CommandInput, protocol.InputPayload{
		Keys:      keys,
		Timestamp: now.UnixMilli(),
	}, protocol.PriorityNormal)
}

// Run крутит кадры с частотой fps до отмены контекста или закрытия соединения.
// Закрытие соединения с ошибкой возвращается вызывающему.
func (s *Session) Run(ctx context.Context, fps int) error {
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	defer s.world.Reset()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.conn.Done():
			// Последние кадры, пришедшие до закрытия, ещё нужно разобрать
			s.conn.Poll()
			err := s.conn.Err()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case now := <-ticker.C:
			s.Frame(now)
		}
	}
}

// Report возвращает срез состояния. Безопасен для вызова из других горутин.
func (s *Session) Report() Report {
	s.statsMu.RLock()
	stats := s.lastStats
	s.statsMu.RUnlock()

	return Report{
		Connection: s.conn.Snapshot(),
		World:      stats,
		Frames:     s.frames.Load(),
	}
}

// Frames возвращает число выполненных кадров
func (s *Session) Frames() uint64 {
	return s.frames.Load()
}
