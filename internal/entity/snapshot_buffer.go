package entity

import (
	"github.com/FlowrPro/Essence.io-frontend/internal/vec"
)

// DefaultBufferCapacity емкость буфера снапшотов по умолчанию
const DefaultBufferCapacity = 2

// Snapshot состояние удалённой сущности на момент приёма (мс монотонных часов клиента)
type Snapshot struct {
	Position  vec.Vec2
	Velocity  vec.Vec2
	Rotation  float64
	Timestamp int64
}

// SnapshotBuffer FIFO буфер снапшотов фиксированной емкости,
// упорядоченный по неубывающему времени
type SnapshotBuffer struct {
	capacity  int
	snapshots []Snapshot
}

// NewSnapshotBuffer создаёт буфер. Емкость меньше 1 заменяется значением по умолчанию.
func NewSnapshotBuffer(capacity int) *SnapshotBuffer {
	if capacity < 1 {
		capacity = DefaultBufferCapacity
	}
	return &SnapshotBuffer{
		capacity:  capacity,
		snapshots: make([]Snapshot, 0, capacity),
	}
}

// Push добавляет снапшот, вытесняя самый старый при переполнении.
// Снапшот старше последнего отбрасывается (возвращается false),
// снапшот с тем же временем заменяет последний.
func (b *SnapshotBuffer) Push(s Snapshot) bool {
	if n := len(b.snapshots); n > 0 {
		newest := b.snapshots[n-1]
		if s.Timestamp < newest.Timestamp {
			return false
		}
		if s.Timestamp == newest.Timestamp {
			b.snapshots[n-1] = s
			return true
		}
	}

	if len(b.snapshots) == b.capacity {
		copy(b.snapshots, b.snapshots[1:])
		b.snapshots = b.snapshots[:b.capacity-1]
	}
	b.snapshots = append(b.snapshots, s)
	return true
}

// SampleAt возвращает интерполированное состояние на момент target.
// Используются два последних снапшота; коэффициент ограничен [0, 1],
// скорость берётся из более нового снапшота.
func (b *SnapshotBuffer) SampleAt(target int64) (Snapshot, bool) {
	switch len(b.snapshots) {
	case 0:
		return Snapshot{}, false
	case 1:
		return b.snapshots[0], true
	}

	older := b.snapshots[len(b.snapshots)-2]
	newer := b.snapshots[len(b.snapshots)-1]

	span := newer.Timestamp - older.Timestamp
	if span <= 0 {
		return newer, true
	}

	alpha := float64(target-older.Timestamp) / float64(span)
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}

	return Snapshot{
		Position:  older.Position.Lerp(newer.Position, alpha),
		Velocity:  newer.Velocity,
		Rotation:  older.Rotation + (newer.Rotation-older.Rotation)*alpha,
		Timestamp: target,
	}, true
}

// Len возвращает число снапшотов в буфере
func (b *SnapshotBuffer) Len() int {
	return len(b.snapshots)
}

// Capacity возвращает емкость буфера
func (b *SnapshotBuffer) Capacity() int {
	return b.capacity
}

// Latest возвращает последний снапшот
func (b *SnapshotBuffer) Latest() (Snapshot, bool) {
	if len(b.snapshots) == 0 {
		return Snapshot{}, false
	}
	return b.snapshots[len(b.snapshots)-1], true
}

// Clear очищает буфер
func (b *SnapshotBuffer) Clear() {
	b.snapshots = b.snapshots[:0]
}
