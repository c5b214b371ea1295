package entity

import (
	"github.com/FlowrPro/Essence.io-frontend/internal/physics"
	"github.com/FlowrPro/Essence.io-frontend/internal/protocol"
	"github.com/FlowrPro/Essence.io-frontend/internal/vec"
)

const (
	defaultHealth = 100.0
	defaultMana   = 100.0
	glowEasing    = 0.1
)

// PlayerState атрибуты игрока. Radius всегда выводится из EssenceCount.
type PlayerState struct {
	Name          string
	Position      vec.Vec2
	Velocity      vec.Vec2
	Rotation      float64
	EssenceCount  int
	Radius        float64
	Health        float64
	MaxHealth     float64
	Mana          float64
	MaxMana       float64
	GlowIntensity float64
}

func newPlayerState(s protocol.EntityState) PlayerState {
	p := PlayerState{
		Name:      s.Name,
		Position:  s.Position,
		Velocity:  s.Velocity,
		Rotation:  s.Rotation,
		Health:    defaultHealth,
		MaxHealth: defaultHealth,
		Mana:      defaultMana,
		MaxMana:   defaultMana,
	}
	p.applyAttributes(s)
	p.Radius = physics.RadiusFor(p.EssenceCount)
	return p
}

// SetEssenceCount задаёт число эссенций и пересчитывает радиус
func (p *PlayerState) SetEssenceCount(count int) {
	p.EssenceCount = count
	p.Radius = physics.RadiusFor(count)
}

// applyAttributes заменяет непредсказываемые поля, если сервер их передал
func (p *PlayerState) applyAttributes(s protocol.EntityState) {
	if s.EssenceCount != nil {
		p.SetEssenceCount(*s.EssenceCount)
	}
	if s.Health != nil {
		p.Health = *s.Health
	}
	if s.MaxHealth != nil {
		p.MaxHealth = *s.MaxHealth
	}
	if s.Mana != nil {
		p.Mana = *s.Mana
	}
	if s.MaxMana != nil {
		p.MaxMana = *s.MaxMana
	}
	if s.Name != "" {
		p.Name = s.Name
	}
}

// updateGlow плавно приближает свечение к 0.3 + count/200
func (p *PlayerState) updateGlow() {
	target := 0.3 + float64(p.EssenceCount)/200
	p.GlowIntensity += (target - p.GlowIntensity) * glowEasing
}

func (p *PlayerState) pose() Pose {
	return Pose{
		Position: p.Position,
		Velocity: p.Velocity,
		Rotation: p.Rotation,
		Radius:   p.Radius,
	}
}

// LocalPlayer игрок этого клиента: движение предсказывается локально
// и мягко подтягивается к авторитетному состоянию сервера
type LocalPlayer struct {
	PlayerState

	id     string
	intent vec.Vec2
	params physics.MovementParams
	factor float64

	LastServerPosition vec.Vec2
	LastServerVelocity vec.Vec2
}

// NewLocalPlayer создаёт локального игрока из снапшота сервера
func NewLocalPlayer(s protocol.EntityState, params physics.MovementParams, reconciliationFactor float64) *LocalPlayer {
	return &LocalPlayer{
		PlayerState:        newPlayerState(s),
		id:                 s.ID,
		params:             params,
		factor:             reconciliationFactor,
		LastServerPosition: s.Position,
		LastServerVelocity: s.Velocity,
	}
}

func (p *LocalPlayer) ID() string { return p.id }
func (p *LocalPlayer) Kind() Kind { return KindLocalPlayer }
func (p *LocalPlayer) Pose() Pose { return p.pose() }
func (p *LocalPlayer) sealed()    {}

// SetIntent задаёт направление движения на следующий шаг.
// Ненулевой вектор нормализуется.
func (p *LocalPlayer) SetIntent(direction vec.Vec2) {
	p.intent = direction.Normalized()
}

// Intent возвращает текущее направление движения
func (p *LocalPlayer) Intent() vec.Vec2 {
	return p.intent
}

// Update выполняет шаг предсказания длительностью dt секунд
func (p *LocalPlayer) Update(dt float64) {
	body := physics.Step(physics.Body{
		Position: p.Position,
		Velocity: p.Velocity,
		Rotation: p.Rotation,
		Radius:   p.Radius,
	}, p.intent, p.EssenceCount, dt, p.params)

	p.Position = body.Position
	p.Velocity = body.Velocity
	p.Rotation = body.Rotation
	p.Radius = body.Radius
	p.updateGlow()
}

// Reconcile смещает предсказанную позицию к авторитетной на долю factor.
// Непредсказываемые поля заменяются сразу.
func (p *LocalPlayer) Reconcile(s protocol.EntityState) {
	p.LastServerPosition = s.Position
	p.LastServerVelocity = s.Velocity
	p.Position = p.Position.Lerp(s.Position, p.factor)
	p.applyAttributes(s)
}

// RemotePlayer игрок другого клиента, отображаемый по интерполяции снапшотов
type RemotePlayer struct {
	PlayerState

	id     string
	buffer *SnapshotBuffer
}

// NewRemotePlayer создаёт удалённого игрока; первое состояние сразу попадает в буфер
func NewRemotePlayer(s protocol.EntityState, capacity int, receivedAt int64) *RemotePlayer {
	p := &RemotePlayer{
		PlayerState: newPlayerState(s),
		id:          s.ID,
		buffer:      NewSnapshotBuffer(capacity),
	}
	p.buffer.Push(snapshotOf(s, receivedAt))
	return p
}

func (p *RemotePlayer) ID() string { return p.id }
func (p *RemotePlayer) Kind() Kind { return KindRemotePlayer }
func (p *RemotePlayer) Pose() Pose { return p.pose() }
func (p *RemotePlayer) sealed()    {}

// AddSample добавляет авторитетное состояние в буфер интерполяции.
// Возвращает false, если снапшот устарел и отброшен.
func (p *RemotePlayer) AddSample(s protocol.EntityState, receivedAt int64) bool {
	p.applyAttributes(s)
	return p.buffer.Push(snapshotOf(s, receivedAt))
}

// Update выставляет позу по времени рендера
func (p *RemotePlayer) Update(renderTime int64) {
	if sample, ok := p.buffer.SampleAt(renderTime); ok {
		p.Position = sample.Position
		p.Velocity = sample.Velocity
		p.Rotation = sample.Rotation
	}
	p.updateGlow()
}

// Buffer возвращает буфер снапшотов игрока
func (p *RemotePlayer) Buffer() *SnapshotBuffer {
	return p.buffer
}

func snapshotOf(s protocol.EntityState, receivedAt int64) Snapshot {
	return Snapshot{
		Position:  s.Position,
		Velocity:  s.Velocity,
		Rotation:  s.Rotation,
		Timestamp: receivedAt,
	}
}
