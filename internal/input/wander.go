package input

import (
	"math/rand"
)

// Wander источник ввода для бота: держит случайное направление
// и с заданной вероятностью меняет его на каждом опросе
type Wander struct {
	rng        *rand.Rand
	changeProb float64
	current    State
}

var wanderStates = []State{
	{},
	{Up: true},
	{Down: true},
	{Left: true},
	{Right: true},
	{Up: true, Left: true},
	{Up: true, Right: true},
	{Down: true, Left: true},
	{Down: true, Right: true},
}

// NewWander создаёт бота. changeProb вероятность смены направления за опрос.
func NewWander(seed int64, changeProb float64) *Wander {
	return &Wander{
		rng:        rand.New(rand.NewSource(seed)),
		changeProb: changeProb,
	}
}

// Poll возвращает текущее направление, иногда выбирая новое
func (w *Wander) Poll() State {
	if w.rng.Float64() < w.changeProb {
		w.current = wanderStates[w.rng.Intn(len(wanderStates))]
	}
	return w.current
}

// Static источник с постоянным состоянием
type Static State

// Poll возвращает зафиксированное состояние
func (s Static) Poll() State {
	return State(s)
}
