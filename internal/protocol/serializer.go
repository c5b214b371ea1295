package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Priority приоритет исходящего пакета
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityCritical
)

// String возвращает значение поля priority на проводе
func (p Priority) String() string {
	if p == PriorityCritical {
		return "critical"
	}
	return "normal"
}

// Packet исходящее сообщение. На проводе поля Payload разворачиваются
// на верхний уровень рядом с type, timestamp и priority.
type Packet struct {
	Type      string
	Payload   interface{}
	Timestamp int64
	Priority  Priority
}

// MarshalJSON сериализует пакет в плоский JSON объект.
// Поля пакета перекрывают одноименные поля нагрузки.
func (p Packet) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage)

	if p.Payload != nil {
		raw, err := json.Marshal(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: ошибка сериализации нагрузки %s: %v", ErrProtocol, p.Type, err)
		}
		if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, fmt.Errorf("%w: нагрузка %s не является объектом", ErrProtocol, p.Type)
			}
		}
	}

	var err error
	if fields["type"], err = json.Marshal(p.Type); err != nil {
		return nil, err
	}
	if fields["timestamp"], err = json.Marshal(p.Timestamp); err != nil {
		return nil, err
	}
	if fields["priority"], err = json.Marshal(p.Priority.String()); err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}

// Batch конверт пакетов обычного приоритета. Messages содержит уже
// сериализованные пакеты в порядке постановки в очередь.
type Batch struct {
	Type      string            `json:"type"`
	Messages  []json.RawMessage `json:"messages"`
	Timestamp int64             `json:"timestamp"`
}

// EncodePacket сериализует одиночный пакет в кадр
func EncodePacket(p Packet) ([]byte, error) {
	return json.Marshal(p)
}

// EncodeBatch упаковывает сериализованные пакеты в batch конверт, сохраняя порядок
func EncodeBatch(messages []json.RawMessage, timestamp int64) ([]byte, error) {
	return json.Marshal(Batch{
		Type:      EventBatch,
		Messages:  messages,
		Timestamp: timestamp,
	})
}

// Event входящее событие. Data содержит поле data кадра,
// а при его отсутствии весь объект сообщения.
type Event struct {
	Type string
	Data json.RawMessage
}

type envelope struct {
	Type     string            `json:"type"`
	Data     json.RawMessage   `json:"data"`
	Messages []json.RawMessage `json:"messages"`
}

// DecodeFrame разбирает входящий кадр в список событий в порядке следования.
// Batch конверт разворачивается. Некорректные элементы пакета пропускаются,
// а ошибка (оборачивающая ErrProtocol) описывает их; корректные события
// возвращаются в любом случае.
func DecodeFrame(frame []byte) ([]Event, error) {
	events := make([]Event, 0, 1)
	var errs []error
	decodeMessage(frame, &events, &errs)
	return events, errors.Join(errs...)
}

func decodeMessage(raw []byte, events *[]Event, errs *[]error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		*errs = append(*errs, fmt.Errorf("%w: некорректный JSON: %v", ErrProtocol, err))
		return
	}
	if env.Type == "" {
		*errs = append(*errs, fmt.Errorf("%w: сообщение без поля type", ErrProtocol))
		return
	}

	if env.Type == EventBatch {
		for _, msg := range env.Messages {
			decodeMessage(msg, events, errs)
		}
		return
	}

	data := json.RawMessage(raw)
	if len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		data = env.Data
	}
	*events = append(*events, Event{Type: env.Type, Data: data})
}

// DecodePayload разбирает нагрузку события в типизированную структуру
func DecodePayload[T any](ev Event) (T, error) {
	var payload T
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return payload, fmt.Errorf("%w: нагрузка %s: %v", ErrProtocol, ev.Type, err)
	}
	return payload, nil
}
