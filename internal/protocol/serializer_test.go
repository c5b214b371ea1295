package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPacketFlattening проверяет разворачивание нагрузки на верхний уровень
func TestPacketFlattening(t *testing.T) {
	data, err := EncodePacket(Packet{
		Type:      CommandJoin,
		Payload:   JoinPayload{PlayerName: "Alice"},
		Timestamp: 1000,
		Priority:  PriorityCritical,
	})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "join", got["type"])
	assert.Equal(t, "Alice", got["playerName"])
	assert.Equal(t, float64(1000), got["timestamp"])
	assert.Equal(t, "critical", got["priority"])
}

// TestPacketOverridesPayloadFields проверяет приоритет полей пакета над нагрузкой
func TestPacketOverridesPayloadFields(t *testing.T) {
	data, err := EncodePacket(Packet{
		Type:      CommandInput,
		Payload:   InputPayload{Keys: []string{"w"}, Timestamp: 1},
		Timestamp: 2,
	})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, float64(2), got["timestamp"])
	assert.Equal(t, "normal", got["priority"])
	assert.Equal(t, []interface{}{"w"}, got["keys"])
}

// TestPacketRejectsNonObjectPayload проверяет отказ для нагрузки не-объекта
func TestPacketRejectsNonObjectPayload(t *testing.T) {
	_, err := EncodePacket(Packet{Type: "input", Payload: []int{1, 2}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocol))
}

// TestEncodeBatchOrder проверяет сохранение порядка сообщений в пакете
func TestEncodeBatchOrder(t *testing.T) {
	var messages []json.RawMessage
	for i, name := range []string{"A", "B", "C"} {
		raw, err := EncodePacket(Packet{Type: name, Timestamp: int64(i + 1)})
		require.NoError(t, err)
		messages = append(messages, raw)
	}
	data, err := EncodeBatch(messages, 10)
	require.NoError(t, err)

	var got struct {
		Type     string `json:"type"`
		Messages []struct {
			Type string `json:"type"`
		} `json:"messages"`
		Timestamp int64 `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "batch", got.Type)
	assert.Equal(t, int64(10), got.Timestamp)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "A", got.Messages[0].Type)
	assert.Equal(t, "B", got.Messages[1].Type)
	assert.Equal(t, "C", got.Messages[2].Type)
}

// TestDecodeFrame проверяет разбор одиночных сообщений и batch конвертов
func TestDecodeFrame(t *testing.T) {
	t.Run("Data field", func(t *testing.T) {
		events, err := DecodeFrame([]byte(`{"type":"init","data":{"clientId":"p1"}}`))
		require.NoError(t, err)
		require.Len(t, events, 1)

		init, err := DecodePayload[InitData](events[0])
		require.NoError(t, err)
		assert.Equal(t, "p1", init.ClientID)
	})

	t.Run("Whole message as payload", func(t *testing.T) {
		events, err := DecodeFrame([]byte(`{"type":"pong","serverTime":1234}`))
		require.NoError(t, err)
		require.Len(t, events, 1)

		pong, err := DecodePayload[PongData](events[0])
		require.NoError(t, err)
		assert.Equal(t, int64(1234), pong.ServerTime)
	})

	t.Run("Batch keeps order", func(t *testing.T) {
		frame := `{"type":"batch","messages":[
			{"type":"playerJoined","data":{"playerId":"p2"}},
			{"type":"playerLeft","data":{"playerId":"p2"}},
			{"type":"ping"}
		]}`
		events, err := DecodeFrame([]byte(frame))
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, EventPlayerJoined, events[0].Type)
		assert.Equal(t, EventPlayerLeft, events[1].Type)
		assert.Equal(t, EventPing, events[2].Type)
	})

	t.Run("Bad batch entries are skipped", func(t *testing.T) {
		frame := `{"type":"batch","messages":[{"data":{}},{"type":"ping"},42]}`
		events, err := DecodeFrame([]byte(frame))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrProtocol))
		require.Len(t, events, 1)
		assert.Equal(t, EventPing, events[0].Type)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		events, err := DecodeFrame([]byte(`{"type":`))
		assert.Empty(t, events)
		assert.True(t, errors.Is(err, ErrProtocol))
	})
}

// TestDecodeWorldSnapshot проверяет различие между пустым и отсутствующим списком игроков
func TestDecodeWorldSnapshot(t *testing.T) {
	withEmpty, err := DecodePayload[WorldSnapshotData](Event{Data: []byte(`{"clientId":"p1","players":[]}`)})
	require.NoError(t, err)
	assert.NotNil(t, withEmpty.Players)

	missing, err := DecodePayload[WorldSnapshotData](Event{Data: []byte(`{"clientId":"p1"}`)})
	require.NoError(t, err)
	assert.Nil(t, missing.Players)
}

// TestDecodeStateUpdate проверяет разбор инкрементальных обновлений
func TestDecodeStateUpdate(t *testing.T) {
	data := `{"updates":[
		{"type":"entityMoved","entity":{"id":"p2","position":{"x":10,"y":20},"velocity":{"x":1,"y":0},"rotation":0.5}},
		{"type":"essenceCollected","essenceId":"e1","playerId":"p2","essenceCount":5}
	]}`
	update, err := DecodePayload[StateUpdateData](Event{Type: EventStateUpdate, Data: []byte(data)})
	require.NoError(t, err)
	require.Len(t, update.Updates, 2)

	moved := update.Updates[0]
	require.NotNil(t, moved.Entity)
	assert.Equal(t, 10.0, moved.Entity.Position.X)
	assert.Nil(t, moved.Entity.EssenceCount)

	collected := update.Updates[1]
	require.NotNil(t, collected.EssenceCount)
	assert.Equal(t, 5, *collected.EssenceCount)
	assert.Equal(t, "e1", collected.EssenceID)
}
