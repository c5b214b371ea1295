package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlowrPro/Essence.io-frontend/internal/config"
	"github.com/FlowrPro/Essence.io-frontend/internal/input"
	"github.com/FlowrPro/Essence.io-frontend/internal/network"
	"github.com/FlowrPro/Essence.io-frontend/internal/protocol"
	"github.com/FlowrPro/Essence.io-frontend/internal/world"
)

type sentPacket struct {
	msgType  string
	payload  interface{}
	priority protocol.Priority
}

// fakeTransport доставляет события обработчикам только в Poll, как настоящее соединение
type fakeTransport struct {
	handlers map[string]network.Handler
	pending  []protocol.Event
	sent     []sentPacket
	polls    int
	done     chan struct{}
	err      error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]network.Handler),
		done:     make(chan struct{}),
	}
}

func (f *fakeTransport) On(eventType string, handler network.Handler) {
	f.handlers[eventType] = handler
}

func (f *fakeTransport) Send(msgType string, payload interface{}, priority protocol.Priority) {
	f.sent = append(f.sent, sentPacket{msgType: msgType, payload: payload, priority: priority})
}

func (f *fakeTransport) Poll() int {
	f.polls++
	events := f.pending
	f.pending = nil
	for _, ev := range events {
		if h := f.handlers[ev.Type]; h != nil {
			_ = h(ev)
		}
	}
	return len(events)
}

func (f *fakeTransport) Done() <-chan struct{} { return f.done }
func (f *fakeTransport) Err() error            { return f.err }

func (f *fakeTransport) Snapshot() network.ConnectionSnapshot {
	return network.ConnectionSnapshot{SessionID: "test", State: "open"}
}

func (f *fakeTransport) push(t *testing.T, eventType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	f.pending = append(f.pending, protocol.Event{Type: eventType, Data: raw})
}

func (f *fakeTransport) sentOfType(msgType string) []sentPacket {
	var out []sentPacket
	for _, p := range f.sent {
		if p.msgType == msgType {
			out = append(out, p)
		}
	}
	return out
}

// switchable источник ввода, который тест переключает между кадрами
type switchable struct{ state input.State }

func (s *switchable) Poll() input.State { return s.state }

func newTestSession(t *testing.T, src input.Source) (*Session, *fakeTransport, *world.Controller) {
	t.Helper()
	tr := newFakeTransport()
	ctrl := world.NewController(world.SettingsFromConfig(config.Default()), nil)
	return New(tr, ctrl, src, nil), tr, ctrl
}

func pushSnapshot(t *testing.T, tr *fakeTransport) {
	tr.push(t, protocol.EventWorldSnapshot, map[string]any{
		"clientId": "p1",
		"players": []map[string]any{
			{"id": "p1", "position": map[string]float64{"x": 1000, "y": 1000}},
		},
	})
}

// TestJoinIsCritical проверяет отправку join по критической полосе
func TestJoinIsCritical(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	s.Join("hero")

	require.Len(t, tr.sent, 1)
	assert.Equal(t, protocol.CommandJoin, tr.sent[0].msgType)
	assert.Equal(t, protocol.PriorityCritical, tr.sent[0].priority)
	assert.Equal(t, protocol.JoinPayload{PlayerName: "hero"}, tr.sent[0].payload)
}

// TestFrameAppliesEventsThenPredicts проверяет порядок кадра: события, ввод, симуляция
func TestFrameAppliesEventsThenPredicts(t *testing.T) {
	src := &switchable{state: input.State{Right: true}}
	s, tr, ctrl := newTestSession(t, src)

	start := time.Unix(1700000000, 0)
	pushSnapshot(t, tr)
	s.Frame(start)
	require.Equal(t, world.PhaseLive, ctrl.Phase())
	assert.Equal(t, 1000.0, ctrl.LocalPlayer().Position.X, "первый кадр имеет нулевой шаг")

	s.Frame(start.Add(100 * time.Millisecond))
	assert.Greater(t, ctrl.LocalPlayer().Position.X, 1000.0)
	assert.Equal(t, uint64(2), s.Frames())
}

// TestInputSentOnlyOnChange проверяет отправку input только при смене клавиш
func TestInputSentOnlyOnChange(t *testing.T) {
	src := &switchable{}
	s, tr, _ := newTestSession(t, src)

	now := time.Unix(1700000000, 0)
	s.Frame(now)
	assert.Empty(t, tr.sentOfType(protocol.CommandInput), "до снимка мира ввод не отправляется")

	pushSnapshot(t, tr)
	for i := 0; i < 3; i++ {
		now = now.Add(16 * time.Millisecond)
		s.Frame(now)
	}
	inputs := tr.sentOfType(protocol.CommandInput)
	require.Len(t, inputs, 1)
	assert.Equal(t, protocol.PriorityNormal, inputs[0].priority)
	assert.Empty(t, inputs[0].payload.(protocol.InputPayload).Keys)

	src.state = input.State{Up: true, Left: true}
	now = now.Add(16 * time.Millisecond)
	s.Frame(now)
	now = now.Add(16 * time.Millisecond)
	s.Frame(now)

	inputs = tr.sentOfType(protocol.CommandInput)
	require.Len(t, inputs, 2)
	payload := inputs[1].payload.(protocol.InputPayload)
	assert.Equal(t, []string{"a", "w"}, payload.Keys)
	assert.Equal(t, now.Add(-16*time.Millisecond).UnixMilli(), payload.Timestamp)
}

// TestFrameDeltaCapped проверяет ограничение шага после зависания
func TestFrameDeltaCapped(t *testing.T) {
	s, _, _ := newTestSession(t, nil)

	start := time.Unix(1700000000, 0)
	assert.Equal(t, time.Duration(0), s.frameDelta(start))
	assert.Equal(t, MaxFrameDelta, s.frameDelta(start.Add(5*time.Second)))
	assert.Equal(t, 16*time.Millisecond, s.frameDelta(start.Add(5*time.Second+16*time.Millisecond)))
	assert.Equal(t, time.Duration(0), s.frameDelta(start), "шаг назад во времени даёт ноль")
}

// TestRunStopsOnContext проверяет остановку цикла по отмене контекста
func TestRunStopsOnContext(t *testing.T) {
	s, tr, ctrl := newTestSession(t, nil)
	pushSnapshot(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx, 200))
	assert.Greater(t, s.Frames(), uint64(0))
	assert.Equal(t, world.PhaseAwaitingSnapshot, ctrl.Phase(), "конец сессии сбрасывает мир")
}

// TestRunReturnsConnectionError проверяет возврат ошибки закрытого соединения
func TestRunReturnsConnectionError(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	tr.err = errors.New("reset by peer")
	close(tr.done)

	err := s.Run(context.Background(), 60)
	assert.EqualError(t, err, "reset by peer")
}

// TestRunCleanClose проверяет нормальное закрытие соединения
func TestRunCleanClose(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	close(tr.done)

	assert.NoError(t, s.Run(context.Background(), 60))
}

// TestReport проверяет срез состояния для диагностики
func TestReport(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	pushSnapshot(t, tr)
	s.Frame(time.Unix(1700000000, 0))

	report := s.Report()
	assert.Equal(t, "test", report.Connection.SessionID)
	assert.Equal(t, "live", report.World.Phase)
	assert.True(t, report.World.HasLocal)
	assert.Equal(t, uint64(1), report.Frames)
}
