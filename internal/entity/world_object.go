package entity

import (
	"math/rand"

	"github.com/FlowrPro/Essence.io-frontend/internal/protocol"
	"github.com/FlowrPro/Essence.io-frontend/internal/vec"
)

const (
	objectDamping = 0.98
	npcRadius     = 6.0
	npcHealth     = 10.0
)

var rarityRadii = map[string]float64{
	"common":    3,
	"uncommon":  4,
	"rare":      5,
	"epic":      6,
	"legendary": 8,
}

// RadiusForRarity возвращает радиус эссенции по редкости (неизвестная редкость = common)
func RadiusForRarity(rarity string) float64 {
	if r, ok := rarityRadii[rarity]; ok {
		return r
	}
	return rarityRadii["common"]
}

// Essence собираемая эссенция. Обновления сервера применяются напрямую, без интерполяции.
type Essence struct {
	id       string
	Position vec.Vec2
	Velocity vec.Vec2
	Rotation float64
	Element  string
	Rarity   string
	Level    int
	Radius   float64

	BobOffset float64
	bobSpeed  float64
}

// NewEssence создаёт эссенцию из снапшота мира
func NewEssence(s protocol.EssenceState) *Essence {
	return &Essence{
		id:       s.ID,
		Position: s.Position,
		Velocity: s.Velocity,
		Rotation: s.Rotation,
		Element:  s.Type,
		Rarity:   s.Rarity,
		Level:    s.Level,
		Radius:   RadiusForRarity(s.Rarity),
		bobSpeed: 2 + rand.Float64()*2,
	}
}

func (e *Essence) ID() string { return e.id }
func (e *Essence) Kind() Kind { return KindEssence }
func (e *Essence) sealed()    {}

// Pose возвращает позу эссенции
func (e *Essence) Pose() Pose {
	return Pose{Position: e.Position, Velocity: e.Velocity, Rotation: e.Rotation, Radius: e.Radius}
}

// Apply применяет авторитетное перемещение
func (e *Essence) Apply(s protocol.EntityState) {
	e.Position = s.Position
	e.Velocity = s.Velocity
	e.Rotation = s.Rotation
}

// Update затухание скорости и покачивание
func (e *Essence) Update(dt float64) {
	e.BobOffset += e.bobSpeed * dt
	e.Velocity = e.Velocity.Mul(objectDamping)
}

// NPC неигровой персонаж. Обновления сервера применяются напрямую.
type NPC struct {
	id        string
	Position  vec.Vec2
	Velocity  vec.Vec2
	Rotation  float64
	Type      string
	Health    float64
	MaxHealth float64
	Radius    float64
}

// NewNPC создаёт NPC из снапшота мира
func NewNPC(s protocol.NPCState) *NPC {
	n := &NPC{
		id:        s.ID,
		Position:  s.Position,
		Velocity:  s.Velocity,
		Rotation:  s.Rotation,
		Type:      s.Type,
		Health:    npcHealth,
		MaxHealth: npcHealth,
		Radius:    npcRadius,
	}
	if n.Type == "" {
		n.Type = "npc"
	}
	if s.Health != nil {
		n.Health = *s.Health
	}
	if s.MaxHealth != nil {
		n.MaxHealth = *s.MaxHealth
	}
	return n
}

func (n *NPC) ID() string { return n.id }
func (n *NPC) Kind() Kind { return KindNPC }
func (n *NPC) sealed()    {}

// Pose возвращает позу NPC
func (n *NPC) Pose() Pose {
	return Pose{Position: n.Position, Velocity: n.Velocity, Rotation: n.Rotation, Radius: n.Radius}
}

// Apply применяет авторитетное перемещение
func (n *NPC) Apply(s protocol.EntityState) {
	n.Position = s.Position
	n.Velocity = s.Velocity
	n.Rotation = s.Rotation
	if s.Health != nil {
		n.Health = *s.Health
	}
	if s.MaxHealth != nil {
		n.MaxHealth = *s.MaxHealth
	}
}

// Update затухание скорости
func (n *NPC) Update(dt float64) {
	n.Velocity = n.Velocity.Mul(objectDamping)
}
