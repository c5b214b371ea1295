package physics

import (
	"github.com/FlowrPro/Essence.io-frontend/internal/vec"
)

// Bounds прямоугольные границы мира с началом в (0, 0)
type Bounds struct {
	Width  float64
	Height float64
}

// NewBounds создаёт границы мира указанного размера
func NewBounds(width, height float64) Bounds {
	return Bounds{Width: width, Height: height}
}

// ContainsCircle проверяет, что круг целиком находится внутри границ
func (b Bounds) ContainsCircle(center vec.Vec2, radius float64) bool {
	return center.X >= radius &&
		center.X <= b.Width-radius &&
		center.Y >= radius &&
		center.Y <= b.Height-radius
}

// ClampCircle возвращает ближайшую к center позицию, при которой круг
// радиуса radius не выходит за границы. Если круг шире мира по оси,
// центр ставится посередине этой оси.
func (b Bounds) ClampCircle(center vec.Vec2, radius float64) vec.Vec2 {
	return vec.Vec2{
		X: clampAxis(center.X, radius, b.Width),
		Y: clampAxis(center.Y, radius, b.Height),
	}
}

func clampAxis(v, radius, size float64) float64 {
	if 2*radius >= size {
		return size / 2
	}
	if v < radius {
		return radius
	}
	if v > size-radius {
		return size - radius
	}
	return v
}
