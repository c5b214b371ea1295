package network

import (
	"bytes"
	"context"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameCodec проверяет заголовок длины и чтение нескольких кадров из потока
func TestFrameCodec(t *testing.T) {
	var stream []byte
	stream = appendFrame(stream, []byte(`{"type":"ping"}`))
	stream = appendFrame(stream, []byte(`{"type":"pong","serverTime":1}`))

	r := bytes.NewReader(stream)
	first, err := readFrame(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, string(first))

	second, err := readFrame(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"pong","serverTime":1}`, string(second))

	_, err = readFrame(r, 1024)
	assert.Error(t, err, "поток исчерпан")
}

// TestFrameCodecLimits проверяет отказ для слишком больших и обрезанных кадров
func TestFrameCodecLimits(t *testing.T) {
	big := appendFrame(nil, bytes.Repeat([]byte("x"), 100))
	_, err := readFrame(bytes.NewReader(big), 10)
	assert.Error(t, err)

	truncated := appendFrame(nil, []byte("hello"))[:6]
	_, err = readFrame(bytes.NewReader(truncated), 0)
	assert.Error(t, err)
}

// TestKCPCompression проверяет сжатие кадров zstd в обе стороны
func TestKCPCompression(t *testing.T) {
	cfg := DefaultChannelConfig(ChannelKCP)
	cfg.Compression = "zstd"

	ch, err := NewKCPChannel(cfg, nil)
	require.NoError(t, err)
	defer ch.Close()

	payload := bytes.Repeat([]byte(`{"type":"input","keys":["w","a"]}`), 20)
	encoded := ch.encodeFrame(payload)
	assert.Less(t, len(encoded), len(payload), "повторяющиеся данные должны сжиматься")

	raw, err := readFrame(bytes.NewReader(encoded), 0)
	require.NoError(t, err)

	decoded, err := ch.decodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	assert.ErrorIs(t, ch.Send(payload), ErrNotOpen)
}

// TestKCPDecompressionLimit проверяет отказ распаковывать кадр сверх лимита
func TestKCPDecompressionLimit(t *testing.T) {
	cfg := DefaultChannelConfig(ChannelKCP)
	cfg.Compression = "zstd"
	cfg.MaxFrame = 1024

	ch, err := NewKCPChannel(cfg, nil)
	require.NoError(t, err)
	defer ch.Close()

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	bomb := enc.EncodeAll(make([]byte, 1<<20), nil)
	require.NoError(t, enc.Close())
	require.Less(t, len(bomb), cfg.MaxFrame, "сжатый кадр проходит ограничение длины")

	_, err = ch.decodeFrame(bomb)
	assert.Error(t, err)

	small := ch.encodeFrame(bytes.Repeat([]byte("a"), 4096))
	raw, err := readFrame(bytes.NewReader(small), cfg.MaxFrame)
	require.NoError(t, err)
	decoded, err := ch.decodeFrame(raw)
	require.NoError(t, err)
	assert.Len(t, decoded, 4096)
}

// TestKCPChannelClosedIsTerminal проверяет, что закрытый KCP канал не переоткрывается
func TestKCPChannelClosedIsTerminal(t *testing.T) {
	ch, err := NewKCPChannel(DefaultChannelConfig(ChannelKCP), nil)
	require.NoError(t, err)
	require.NoError(t, ch.Close())

	err = ch.Connect(context.Background(), "127.0.0.1:7777")
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.Equal(t, StateClosed, ch.State())
}
