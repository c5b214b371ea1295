// Package entity содержит клиентские представления игровых сущностей
package entity

import (
	"github.com/FlowrPro/Essence.io-frontend/internal/vec"
)

// Kind вид сущности
type Kind int

const (
	KindLocalPlayer Kind = iota
	KindRemotePlayer
	KindEssence
	KindNPC
)

// String возвращает имя вида сущности
func (k Kind) String() string {
	switch k {
	case KindLocalPlayer:
		return "local_player"
	case KindRemotePlayer:
		return "remote_player"
	case KindEssence:
		return "essence"
	case KindNPC:
		return "npc"
	default:
		return "unknown"
	}
}

// Pose положение сущности, которое читает рендер каждый кадр
type Pose struct {
	Position vec.Vec2
	Velocity vec.Vec2
	Rotation float64
	Radius   float64
}

// Entity общий интерфейс сущностей клиента. Набор реализаций закрыт:
// LocalPlayer, RemotePlayer, Essence и NPC.
type Entity interface {
	ID() string
	Kind() Kind
	Pose() Pose
	sealed()
}
