// Package input преобразует нажатые клавиши в направление движения
package input

import (
	"sort"

	"github.com/FlowrPro/Essence.io-frontend/internal/vec"
)

// State набор активных направлений
type State struct {
	Up    bool
	Down  bool
	Left  bool
	Right bool
}

// Source внешний источник ввода, опрашиваемый раз в кадр
type Source interface {
	Poll() State
}

var keyBindings = map[string]func(*State){
	"w":          func(s *State) { s.Up = true },
	"W":          func(s *State) { s.Up = true },
	"ArrowUp":    func(s *State) { s.Up = true },
	"s":          func(s *State) { s.Down = true },
	"S":          func(s *State) { s.Down = true },
	"ArrowDown":  func(s *State) { s.Down = true },
	"a":          func(s *State) { s.Left = true },
	"A":          func(s *State) { s.Left = true },
	"ArrowLeft":  func(s *State) { s.Left = true },
	"d":          func(s *State) { s.Right = true },
	"D":          func(s *State) { s.Right = true },
	"ArrowRight": func(s *State) { s.Right = true },
}

// FromKeys строит состояние из имён клавиш. Неизвестные клавиши игнорируются.
func FromKeys(keys []string) State {
	var s State
	for _, key := range keys {
		if bind, ok := keyBindings[key]; ok {
			bind(&s)
		}
	}
	return s
}

// Keys возвращает каноническое представление состояния для команды input
func (s State) Keys() []string {
	keys := make([]string, 0, 4)
	if s.Up {
		keys = append(keys, "w")
	}
	if s.Left {
		keys = append(keys, "a")
	}
	if s.Down {
		keys = append(keys, "s")
	}
	if s.Right {
		keys = append(keys, "d")
	}
	sort.Strings(keys)
	return keys
}

// Direction возвращает единичный вектор направления или нулевой вектор.
// Противоположные направления взаимно гасятся. Ось Y направлена вниз.
func (s State) Direction() vec.Vec2 {
	var dir vec.Vec2
	if s.Up {
		dir.Y--
	}
	if s.Down {
		dir.Y++
	}
	if s.Left {
		dir.X--
	}
	if s.Right {
		dir.X++
	}
	return dir.Normalized()
}

// Idle сообщает, что ни одно направление не активно
func (s State) Idle() bool {
	return s == State{}
}
