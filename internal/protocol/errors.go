package protocol

import "errors"

// Категории ошибок синхронизации. Конкретные ошибки оборачивают их через %w
// и проверяются вызывающей стороной через errors.Is.
var (
	// ErrConnection соединение не установлено или потеряно. Терминальная ошибка сессии.
	ErrConnection = errors.New("connection error")
	// ErrProtocol некорректный кадр, неизвестный тип события или нечитаемая нагрузка.
	// Событие отбрасывается, сессия продолжается.
	ErrProtocol = errors.New("protocol error")
	// ErrState событие ссылается на отсутствующую сущность или приходит в неверной фазе.
	ErrState = errors.New("state error")
)
