package protocol

import "github.com/FlowrPro/Essence.io-frontend/internal/vec"

// Типы входящих событий
const (
	EventInit          = "init"
	EventWorldSnapshot = "worldSnapshot"
	EventStateUpdate   = "stateUpdate"
	EventPlayerJoined  = "playerJoined"
	EventPlayerLeft    = "playerLeft"
	EventPing          = "ping"
	EventPong          = "pong"
	EventBatch         = "batch"
)

// Типы исходящих команд
const (
	CommandJoin  = "join"
	CommandInput = "input"
	CommandPing  = "ping"
	CommandPong  = "pong"
)

// Подтипы записей stateUpdate
const (
	UpdateEntityMoved      = "entityMoved"
	UpdateEssenceCollected = "essenceCollected"
)

// InitData первое сообщение сервера с идентификатором клиента
type InitData struct {
	ClientID string `json:"clientId"`
}

// EntityState состояние игрока или перемещенной сущности.
// Необязательные числовые поля заданы указателями: nil означает «не передано».
type EntityState struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Position     vec.Vec2 `json:"position"`
	Velocity     vec.Vec2 `json:"velocity"`
	Rotation     float64  `json:"rotation"`
	EssenceCount *int     `json:"essenceCount,omitempty"`
	Health       *float64 `json:"health,omitempty"`
	MaxHealth    *float64 `json:"maxHealth,omitempty"`
	Mana         *float64 `json:"mana,omitempty"`
	MaxMana      *float64 `json:"maxMana,omitempty"`
}

// EssenceState состояние сущности-эссенции
type EssenceState struct {
	ID       string   `json:"id"`
	Position vec.Vec2 `json:"position"`
	Velocity vec.Vec2 `json:"velocity"`
	Rotation float64  `json:"rotation"`
	Type     string   `json:"type,omitempty"`
	Rarity   string   `json:"rarity,omitempty"`
	Level    int      `json:"level,omitempty"`
}

// NPCState состояние NPC
type NPCState struct {
	ID        string   `json:"id"`
	Position  vec.Vec2 `json:"position"`
	Velocity  vec.Vec2 `json:"velocity"`
	Rotation  float64  `json:"rotation"`
	Type      string   `json:"type,omitempty"`
	Health    *float64 `json:"health,omitempty"`
	MaxHealth *float64 `json:"maxHealth,omitempty"`
}

// WorldSnapshotData полный снимок мира. Players == nil означает, что список
// игроков отсутствует в кадре (пустой список допустим).
type WorldSnapshotData struct {
	ClientID string         `json:"clientId"`
	Players  []EntityState  `json:"players"`
	Essences []EssenceState `json:"essences"`
	NPCs     []NPCState     `json:"npcs"`
}

// StateUpdate одна запись инкрементального обновления
type StateUpdate struct {
	Type         string       `json:"type"`
	Entity       *EntityState `json:"entity,omitempty"`
	EssenceID    string       `json:"essenceId,omitempty"`
	PlayerID     string       `json:"playerId,omitempty"`
	EssenceCount *int         `json:"essenceCount,omitempty"`
}

// StateUpdateData пакет инкрементальных обновлений
type StateUpdateData struct {
	Updates []StateUpdate `json:"updates"`
}

// PlayerJoinedData новый игрок в сессии
type PlayerJoinedData struct {
	PlayerID   string      `json:"playerId"`
	PlayerData EntityState `json:"playerData"`
}

// PlayerLeftData игрок покинул сессию
type PlayerLeftData struct {
	PlayerID string `json:"playerId"`
}

// PingData heartbeat запрос
type PingData struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

// PongData ответ на ping. ServerTime содержит эхо отметки времени ping.
type PongData struct {
	ServerTime int64 `json:"serverTime"`
}

// JoinPayload команда входа в игру
type JoinPayload struct {
	PlayerName string `json:"playerName"`
}

// InputPayload текущий набор нажатых клавиш
type InputPayload struct {
	Keys      []string `json:"keys"`
	Timestamp int64    `json:"timestamp"`
}
