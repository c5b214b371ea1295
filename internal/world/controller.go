// Package world синхронизирует клиентскую популяцию сущностей с событиями сервера
package world

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/FlowrPro/Essence.io-frontend/internal/config"
	"github.com/FlowrPro/Essence.io-frontend/internal/entity"
	"github.com/FlowrPro/Essence.io-frontend/internal/logging"
	"github.com/FlowrPro/Essence.io-frontend/internal/network"
	"github.com/FlowrPro/Essence.io-frontend/internal/physics"
	"github.com/FlowrPro/Essence.io-frontend/internal/protocol"
	"github.com/FlowrPro/Essence.io-frontend/internal/vec"
)

// Phase фаза синхронизации
type Phase int

const (
	PhaseAwaitingSnapshot Phase = iota
	PhaseLive
)

// String возвращает имя фазы
func (p Phase) String() string {
	if p == PhaseLive {
		return "live"
	}
	return "awaiting_snapshot"
}

// Settings параметры контроллера, фиксированные на время сессии
type Settings struct {
	Movement             physics.MovementParams
	ReconciliationFactor float64
	BufferCapacity       int
	InterpolationDelay   time.Duration
}

// SettingsFromConfig собирает параметры контроллера из конфигурации
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Movement: physics.MovementParams{
			Acceleration:    cfg.Prediction.Acceleration,
			MaxSpeed:        cfg.Prediction.MaxSpeed,
			Drag:            cfg.Prediction.Drag,
			RotationEpsilon: cfg.Prediction.RotationEpsilon,
			World:           physics.NewBounds(cfg.World.Width, cfg.World.Height),
		},
		ReconciliationFactor: cfg.Prediction.ReconciliationFactor,
		BufferCapacity:       cfg.Interpolation.BufferCapacity,
		InterpolationDelay:   cfg.Interpolation.Delay(),
	}
}

// Registrar регистрирует обработчики событий (реализуется network.Connection)
type Registrar interface {
	On(eventType string, handler network.Handler)
}

// Stats счётчики популяции для диагностики
type Stats struct {
	Phase         string `json:"phase"`
	ClientID      string `json:"client_id"`
	HasLocal      bool   `json:"has_local"`
	RemotePlayers int    `json:"remote_players"`
	Essences      int    `json:"essences"`
	NPCs          int    `json:"npcs"`
}

// Controller владеет всеми сущностями клиента. Методы вызываются
// только из горутины симуляции (обработчики событий выполняются в Connection.Poll).
type Controller struct {
	settings Settings
	logger   *logging.Logger

	phase    Phase
	clientID string

	local    *entity.LocalPlayer
	remotes  map[string]*entity.RemotePlayer
	essences map[string]*entity.Essence
	npcs     map[string]*entity.NPC

	epoch time.Time
	now   func() time.Time
}

// NewController создаёт контроллер в фазе ожидания снапшота
func NewController(settings Settings, logger *logging.Logger) *Controller {
	c := &Controller{
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
	c.epoch = c.now()
	c.resetPopulation()
	return c
}

// SetClock подменяет источник времени (тесты). Отсчёт монотонного времени начинается заново.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
	c.epoch = now()
}

// Bind регистрирует обработчики событий синхронизации в соединении
func (c *Controller) Bind(r Registrar) {
	r.On(protocol.EventInit, c.HandleInit)
	r.On(protocol.EventWorldSnapshot, c.HandleWorldSnapshot)
	r.On(protocol.EventStateUpdate, c.HandleStateUpdate)
	r.On(protocol.EventPlayerJoined, c.HandlePlayerJoined)
	r.On(protocol.EventPlayerLeft, c.HandlePlayerLeft)
}

// clockMs монотонное время клиента в миллисекундах
func (c *Controller) clockMs() int64 {
	return c.now().Sub(c.epoch).Milliseconds()
}

func (c *Controller) resetPopulation() {
	c.local = nil
	c.remotes = make(map[string]*entity.RemotePlayer)
	c.essences = make(map[string]*entity.Essence)
	c.npcs = make(map[string]*entity.NPC)
}

// Reset завершает сессию: удаляет все сущности и возвращает контроллер в ожидание снапшота
func (c *Controller) Reset() {
	c.resetPopulation()
	c.phase = PhaseAwaitingSnapshot
	c.clientID = ""
}

// HandleInit запоминает идентификатор клиента
func (c *Controller) HandleInit(ev protocol.Event) error {
	data, err := protocol.DecodePayload[protocol.InitData](ev)
	if err != nil {
		return err
	}
	c.clientID = data.ClientID
	c.logger.Info("Client id assigned: %s", data.ClientID)
	return nil
}

// HandleWorldSnapshot разбирает и применяет полный снимок мира
func (c *Controller) HandleWorldSnapshot(ev protocol.Event) error {
	data, err := protocol.DecodePayload[protocol.WorldSnapshotData](ev)
	if err != nil {
		return err
	}
	return c.ApplySnapshot(data)
}

// ApplySnapshot строит популяцию из снимка мира и переводит контроллер в live.
// Снимок без списка игроков отклоняется, фаза не меняется.
func (c *Controller) ApplySnapshot(data protocol.WorldSnapshotData) error {
	if data.Players == nil {
		c.logger.Error("World snapshot rejected: players list missing")
		return fmt.Errorf("%w: world snapshot without players", protocol.ErrState)
	}

	if data.ClientID != "" {
		c.clientID = data.ClientID
	}
	if c.clientID == "" {
		c.logger.Warn("World snapshot before client id: all players treated as remote")
	}

	if c.phase == PhaseLive {
		c.logger.Info("World snapshot while live: rebuilding population")
	}
	c.resetPopulation()

	receivedAt := c.clockMs()
	for _, p := range data.Players {
		if p.ID == c.clientID && c.clientID != "" {
			c.local = entity.NewLocalPlayer(p, c.settings.Movement, c.settings.ReconciliationFactor)
			continue
		}
		c.remotes[p.ID] = entity.NewRemotePlayer(p, c.settings.BufferCapacity, receivedAt)
	}
	for _, e := range data.Essences {
		c.essences[e.ID] = entity.NewEssence(e)
	}
	for _, n := range data.NPCs {
		c.npcs[n.ID] = entity.NewNPC(n)
	}

	if c.local == nil && c.clientID != "" {
		c.logger.Warn("World snapshot does not contain local player %s", c.clientID)
	}

	c.phase = PhaseLive
	c.logger.Info("World snapshot applied: players=%d essences=%d npcs=%d",
		len(data.Players), len(c.essences), len(c.npcs))
	return nil
}

func (c *Controller) requireLive(eventType string) error {
	if c.phase != PhaseLive {
		return fmt.Errorf("%w: %s before world snapshot", protocol.ErrState, eventType)
	}
	return nil
}

// HandleStateUpdate применяет инкрементальные обновления по порядку.
// Ошибка одной записи не мешает применению остальных.
func (c *Controller) HandleStateUpdate(ev protocol.Event) error {
	if err := c.requireLive(ev.Type); err != nil {
		return err
	}
	data, err := protocol.DecodePayload[protocol.StateUpdateData](ev)
	if err != nil {
		return err
	}

	var errs []error
	for _, update := range data.Updates {
		switch update.Type {
		case protocol.UpdateEntityMoved:
			if update.Entity == nil {
				errs = append(errs, fmt.Errorf("%w: entityMoved without entity", protocol.ErrProtocol))
				continue
			}
			errs = append(errs, c.applyMove(*update.Entity))
		case protocol.UpdateEssenceCollected:
			errs = append(errs, c.applyCollected(update))
		default:
			errs = append(errs, fmt.Errorf("%w: unknown update type %q", protocol.ErrProtocol, update.Type))
		}
	}
	return errors.Join(errs...)
}

// applyMove направляет перемещение по виду сущности: локальный игрок
// согласуется, удалённый интерполируется, объекты мира применяются напрямую
func (c *Controller) applyMove(s protocol.EntityState) error {
	if c.local != nil && s.ID == c.local.ID() {
		c.local.Reconcile(s)
		return nil
	}
	if remote, ok := c.remotes[s.ID]; ok {
		if !remote.AddSample(s, c.clockMs()) {
			c.logger.Trace("Stale sample for %s dropped", s.ID)
		}
		return nil
	}
	if essence, ok := c.essences[s.ID]; ok {
		essence.Apply(s)
		return nil
	}
	if npc, ok := c.npcs[s.ID]; ok {
		npc.Apply(s)
		return nil
	}
	return fmt.Errorf("%w: entityMoved for unknown entity %s", protocol.ErrState, s.ID)
}

// applyCollected удаляет эссенцию и обновляет счётчик собравшего игрока
func (c *Controller) applyCollected(update protocol.StateUpdate) error {
	var errs []error

	if _, ok := c.essences[update.EssenceID]; ok {
		delete(c.essences, update.EssenceID)
	} else {
		errs = append(errs, fmt.Errorf("%w: essence %s not found", protocol.ErrState, update.EssenceID))
	}

	if update.EssenceCount == nil {
		return errors.Join(errs...)
	}

	if player := c.player(update.PlayerID); player != nil {
		player.SetEssenceCount(*update.EssenceCount)
	} else {
		errs = append(errs, fmt.Errorf("%w: player %s not found", protocol.ErrState, update.PlayerID))
	}
	return errors.Join(errs...)
}

// player ищет состояние игрока среди удалённых и локального
func (c *Controller) player(id string) *entity.PlayerState {
	if remote, ok := c.remotes[id]; ok {
		return &remote.PlayerState
	}
	if c.local != nil && c.local.ID() == id {
		return &c.local.PlayerState
	}
	return nil
}

// HandlePlayerJoined создаёт удалённого игрока. Уже известный игрок
// получает новый снапшот, собственный id игнорируется.
func (c *Controller) HandlePlayerJoined(ev protocol.Event) error {
	if err := c.requireLive(ev.Type); err != nil {
		return err
	}
	data, err := protocol.DecodePayload[protocol.PlayerJoinedData](ev)
	if err != nil {
		return err
	}

	state := data.PlayerData
	if state.ID == "" {
		state.ID = data.PlayerID
	}
	if state.ID == "" {
		return fmt.Errorf("%w: playerJoined without id", protocol.ErrProtocol)
	}

	if state.ID == c.clientID {
		return nil
	}
	if remote, ok := c.remotes[state.ID]; ok {
		remote.AddSample(state, c.clockMs())
		return nil
	}

	c.remotes[state.ID] = entity.NewRemotePlayer(state, c.settings.BufferCapacity, c.clockMs())
	c.logger.Info("Player joined: %s (%s)", state.ID, state.Name)
	return nil
}

// HandlePlayerLeft удаляет удалённого игрока
func (c *Controller) HandlePlayerLeft(ev protocol.Event) error {
	if err := c.requireLive(ev.Type); err != nil {
		return err
	}
	data, err := protocol.DecodePayload[protocol.PlayerLeftData](ev)
	if err != nil {
		return err
	}

	if _, ok := c.remotes[data.PlayerID]; !ok {
		return fmt.Errorf("%w: player %s not found", protocol.ErrState, data.PlayerID)
	}
	delete(c.remotes, data.PlayerID)
	c.logger.Info("Player left: %s", data.PlayerID)
	return nil
}

// SetIntent передаёт направление ввода локальному игроку
func (c *Controller) SetIntent(direction vec.Vec2) {
	if c.local != nil {
		c.local.SetIntent(direction)
	}
}

// Update продвигает кадр: предсказание локального игрока, интерполяция
// удалённых на момент now - delay, затухание объектов мира
func (c *Controller) Update(dt float64) {
	if c.phase != PhaseLive {
		return
	}

	if c.local != nil {
		c.local.Update(dt)
	}

	renderTime := c.clockMs() - c.settings.InterpolationDelay.Milliseconds()
	for _, remote := range c.remotes {
		remote.Update(renderTime)
	}
	for _, essence := range c.essences {
		essence.Update(dt)
	}
	for _, npc := range c.npcs {
		npc.Update(dt)
	}
}

// Phase возвращает текущую фазу
func (c *Controller) Phase() Phase {
	return c.phase
}

// ClientID возвращает идентификатор клиента
func (c *Controller) ClientID() string {
	return c.clientID
}

// LocalPlayer возвращает локального игрока (nil до снапшота)
func (c *Controller) LocalPlayer() *entity.LocalPlayer {
	return c.local
}

// RemotePlayer возвращает удалённого игрока по id
func (c *Controller) RemotePlayer(id string) (*entity.RemotePlayer, bool) {
	p, ok := c.remotes[id]
	return p, ok
}

// Essence возвращает эссенцию по id
func (c *Controller) Essence(id string) (*entity.Essence, bool) {
	e, ok := c.essences[id]
	return e, ok
}

// NPC возвращает NPC по id
func (c *Controller) NPC(id string) (*entity.NPC, bool) {
	n, ok := c.npcs[id]
	return n, ok
}

// Entities возвращает все сущности для рендера, упорядоченные по виду и id
func (c *Controller) Entities() []entity.Entity {
	out := make([]entity.Entity, 0, len(c.remotes)+len(c.essences)+len(c.npcs)+1)
	if c.local != nil {
		out = append(out, c.local)
	}
	for _, p := range c.remotes {
		out = append(out, p)
	}
	for _, e := range c.essences {
		out = append(out, e)
	}
	for _, n := range c.npcs {
		out = append(out, n)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind() != out[j].Kind() {
			return out[i].Kind() < out[j].Kind()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Stats возвращает счётчики популяции
func (c *Controller) Stats() Stats {
	return Stats{
		Phase:         c.phase.String(),
		ClientID:      c.clientID,
		HasLocal:      c.local != nil,
		RemotePlayers: len(c.remotes),
		Essences:      len(c.essences),
		NPCs:          len(c.npcs),
	}
}
