package network

import (
	"context"
	"sync"
)

// fakeChannel канал в памяти для тестов диспетчера и соединения
type fakeChannel struct {
	mu      sync.Mutex
	state   ChannelState
	frames  [][]byte
	sendErr error
	events  channelEvents
}

func newFakeChannel(state ChannelState) *fakeChannel {
	return &fakeChannel{state: state}
}

func (f *fakeChannel) Connect(ctx context.Context, addr string) error {
	f.setState(StateOpen)
	f.events.connect()
	return nil
}

func (f *fakeChannel) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateOpen {
		return ErrNotOpen
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeChannel) Close() error {
	f.setState(StateClosed)
	f.events.disconnect(nil)
	return nil
}

func (f *fakeChannel) State() ChannelState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) setState(s ChannelState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeChannel) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeChannel) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeChannel) RemoteAddr() string     { return "fake" }
func (f *fakeChannel) Stats() ConnectionStats { return ConnectionStats{State: f.State()} }

func (f *fakeChannel) OnMessage(h func([]byte))   { f.events.setMessage(h) }
func (f *fakeChannel) OnConnect(h func())         { f.events.setConnect(h) }
func (f *fakeChannel) OnDisconnect(h func(error)) { f.events.setDisconnect(h) }
func (f *fakeChannel) OnError(h func(error))      { f.events.setError(h) }
func (f *fakeChannel) deliver(frame string)       { f.events.message([]byte(frame)) }
