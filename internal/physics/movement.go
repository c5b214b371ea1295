// Package physics содержит правила движения игрока, общие для предсказания на клиенте
package physics

import (
	"math"

	"github.com/FlowrPro/Essence.io-frontend/internal/vec"
)

const (
	// BaseRadius радиус игрока без эссенций
	BaseRadius = 8.0
	// RadiusPerEssence прирост радиуса за одну эссенцию
	RadiusPerEssence = 0.3
)

// MovementParams параметры интегрирования движения
type MovementParams struct {
	Acceleration    float64
	MaxSpeed        float64
	Drag            float64
	RotationEpsilon float64
	World           Bounds
}

// DefaultMovementParams возвращает параметры движения по умолчанию
func DefaultMovementParams() MovementParams {
	return MovementParams{
		Acceleration:    300,
		MaxSpeed:        250,
		Drag:            0.08,
		RotationEpsilon: 0.1,
		World:           NewBounds(2000, 2000),
	}
}

// Body кинематическое состояние предсказываемого тела
type Body struct {
	Position vec.Vec2
	Velocity vec.Vec2
	Rotation float64
	Radius   float64
}

// RadiusFor возвращает радиус игрока для числа эссенций
func RadiusFor(essenceCount int) float64 {
	return BaseRadius + float64(essenceCount)*RadiusPerEssence
}

// SpeedCap возвращает предельную скорость: maxSpeed * (1 - 0.5*(count/100)^0.3).
// Не возрастает с ростом count и не опускается ниже нуля.
func SpeedCap(maxSpeed float64, essenceCount int) float64 {
	if essenceCount <= 0 {
		return maxSpeed
	}
	factor := 1 - 0.5*math.Pow(float64(essenceCount)/100, 0.3)
	if factor < 0 {
		return 0
	}
	return maxSpeed * factor
}

// Step выполняет один шаг предсказания длительностью dt секунд.
// intent должен быть единичным или нулевым вектором.
func Step(b Body, intent vec.Vec2, essenceCount int, dt float64, p MovementParams) Body {
	velocity := b.Velocity.Add(intent.Mul(p.Acceleration * dt))

	drag := 1 - p.Drag*dt
	if drag < 0 {
		drag = 0
	}
	velocity = velocity.Mul(drag)

	limit := SpeedCap(p.MaxSpeed, essenceCount)
	speed := velocity.Length()
	if speed > limit {
		velocity = velocity.Normalized().Mul(limit)
		speed = limit
	}

	next := Body{
		Position: b.Position.Add(velocity.Mul(dt)),
		Velocity: velocity,
		Rotation: b.Rotation,
		Radius:   RadiusFor(essenceCount),
	}

	if speed > p.RotationEpsilon {
		next.Rotation = velocity.Angle()
	}

	if p.World.Width > 0 && p.World.Height > 0 {
		next.Position = p.World.ClampCircle(next.Position, next.Radius)
	}
	return next
}
