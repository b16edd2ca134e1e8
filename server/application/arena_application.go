package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"arena/server/domain"
	"arena/server/telemetry"
	"arena/server/weapon"
)

var ErrUnknownWeapon = errors.New("application: unknown weapon")

// Settings はアリーナの構成です。
type Settings struct {
	HalfExtent      float64
	ActorRadius     float64
	MaxHP           float64
	RespawnDelay    time.Duration
	DefaultWeapon   string
	Catalog         weapon.Catalog
	CooldownSlack   time.Duration
	OriginTolerance float64
	AimTolerance    float64
	SpreadTolerance float64
	MaxSpeed        float64
	PoseSlack       float64
	Bots            int
	BotSpeed        float64
}

// DefaultSettings は既定の構成を返します。
func DefaultSettings() Settings {
	return Settings{
		HalfExtent:      5000,
		ActorRadius:     40,
		MaxHP:           100,
		RespawnDelay:    3 * time.Second,
		DefaultWeapon:   "rifle",
		Catalog:         weapon.DefaultCatalog(),
		CooldownSlack:   15 * time.Millisecond,
		OriginTolerance: DefaultOriginTolerance,
		AimTolerance:    DefaultAimTolerance,
		SpreadTolerance: DefaultSpreadTolerance,
		MaxSpeed:        DefaultMaxSpeed,
		PoseSlack:       DefaultPoseSlack,
		BotSpeed:        400,
	}
}

// ArenaApplication は射撃の権威サーバーとして動くApplicationです。
// ルームのtickループからのみ呼ばれます。
type ArenaApplication struct {
	settings  Settings
	field     *Field
	authority *Authority
	clock     Clock

	bots     []*BotInstance
	botRand  *rand.Rand
	botSeq   uint16
	lastTick time.Time

	pending []domain.Outbound
	seq     uint16
}

// NewArenaApplication はアリーナを作り、設定された数のボットを配置します。
func NewArenaApplication(settings Settings, m telemetry.Recorder, clock Clock, opts ...AuthorityOption) (*ArenaApplication, error) {
	if _, ok := settings.Catalog.Get(settings.DefaultWeapon); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWeapon, settings.DefaultWeapon)
	}
	field := NewField(NewArena(settings.HalfExtent), settings.ActorRadius, settings.MaxHP, settings.RespawnDelay,
		WithMaxSpeed(settings.MaxSpeed, settings.PoseSlack))
	opts = append([]AuthorityOption{
		WithOriginTolerance(settings.OriginTolerance),
		WithAimTolerance(settings.AimTolerance),
		WithSpreadTolerance(settings.SpreadTolerance),
		WithCatalog(settings.Catalog),
	}, opts...)
	authority, err := NewAuthority(field, m, clock, SimpleValidator{}, opts...)
	if err != nil {
		return nil, err
	}
	app := &ArenaApplication{
		settings:  settings,
		field:     field,
		authority: authority,
		clock:     clock,
		botRand:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for i := 0; i < settings.Bots; i++ {
		app.AddBot(NewRuleBotController(rand.New(rand.NewPCG(app.botRand.Uint64(), uint64(i)))))
	}
	return app, nil
}

// Field はアリーナの状態です。
func (app *ArenaApplication) Field() *Field { return app.field }

// Authority は射撃の権威です。
func (app *ArenaApplication) Authority() *Authority { return app.authority }

// AddBot はサーバー側で動くボットを1体追加します。
func (app *ArenaApplication) AddBot(controller BotController) *BotInstance {
	bot := &BotInstance{ID: domain.NewEntityID(), Controller: controller, Speed: app.settings.BotSpeed}
	actor := app.field.Spawn(bot.ID, KindBot, app.newWeapon())
	app.bots = append(app.bots, bot)
	app.broadcastActor(domain.ActorSubTypeSpawn, actor)
	return bot
}

func (app *ArenaApplication) newWeapon() *weapon.Weapon {
	cfg, _ := app.settings.Catalog.Get(app.settings.DefaultWeapon)
	return weapon.NewWeapon(cfg, weapon.WithCooldownSlack(app.settings.CooldownSlack))
}

func (app *ArenaApplication) Join(ctx context.Context, sessionID domain.SessionID) error {
	id := sessionID.EntityID()
	if app.field.Exists(id) {
		return nil
	}
	actor := app.field.Spawn(id, KindPlayer, app.newWeapon())
	slog.InfoContext(ctx, "actor spawned", "sessionID", sessionID, "position", actor.Position)

	// 参加者には既存のアクターを個別に送る
	for _, other := range app.field.GetAllActors() {
		if other.ID == id {
			continue
		}
		app.sendActor(sessionID, domain.ActorSubTypeSpawn, other)
	}
	app.broadcastActor(domain.ActorSubTypeSpawn, actor)
	return nil
}

func (app *ArenaApplication) Leave(ctx context.Context, sessionID domain.SessionID) {
	id := sessionID.EntityID()
	actor, ok := app.field.GetActor(id)
	if !ok {
		return
	}
	app.field.Remove(id)
	app.authority.Forget(id)
	app.broadcastActor(domain.ActorSubTypeDespawn, actor)
	slog.InfoContext(ctx, "actor removed", "sessionID", sessionID)
}

func (app *ArenaApplication) HandleMessage(ctx context.Context, sessionID domain.SessionID, data []byte) error {
	header, payloadHeader, payload, err := domain.SplitMessage(data)
	if err != nil {
		return err
	}

	switch payloadHeader.DataType {
	case domain.DataTypeInput:
		return app.handleInput(ctx, sessionID, header, payload)
	case domain.DataTypeActor:
		return app.handleActor(ctx, sessionID, payloadHeader.SubType, payload)
	case domain.DataTypeFire:
		return app.handleFire(ctx, sessionID, header, payloadHeader.SubType, payload)
	default:
		slog.WarnContext(ctx, "unknown data type", "dataType", payloadHeader.DataType)
		return nil
	}
}

func (app *ArenaApplication) handleInput(ctx context.Context, sessionID domain.SessionID, header *domain.Header, data []byte) error {
	input, err := domain.ParseInputPayload(data)
	if err != nil {
		return err
	}
	actor, ok := app.field.GetActor(sessionID.EntityID())
	if !ok {
		return nil
	}
	slog.DebugContext(ctx, "handleInput", "sessionID", sessionID, "seq", header.Seq, "keyMask", input.KeyMask)

	actor.Weapon.SetTargeting(input.KeyMask&domain.InputTargeting != 0)
	if input.KeyMask&domain.InputFire == 0 && actor.Weapon.TriggerHeld() {
		actor.Weapon.StopFire(app.clock.Now())
	}
	return nil
}

func (app *ArenaApplication) handleActor(ctx context.Context, sessionID domain.SessionID, subType uint8, data []byte) error {
	if domain.ActorSubType(subType) != domain.ActorSubTypeUpdate {
		slog.WarnContext(ctx, "unexpected actor subtype", "subType", subType)
		return nil
	}
	state, err := domain.ParseActorState(data)
	if err != nil {
		return err
	}
	app.field.UpdatePose(ctx, sessionID.EntityID(), state.Position, state.Aim, app.clock.Now())
	return nil
}

func (app *ArenaApplication) handleFire(ctx context.Context, sessionID domain.SessionID, header *domain.Header, subType uint8, data []byte) error {
	if domain.FireSubType(subType) != domain.FireSubTypeRequest {
		slog.WarnContext(ctx, "unknown fire subtype", "subType", subType)
		return nil
	}
	req, err := domain.ParseFireRequest(data)
	if err != nil {
		return err
	}
	if err := app.authority.HandleFire(ctx, sessionID, req); err != nil {
		// 拒否は要求元に返さない
		slog.DebugContext(ctx, "fire rejected", "sessionID", sessionID, "seq", header.Seq, "fireSeq", req.Seq, "err", err)
	}
	return nil
}

// Tick はリスポーン、ボット、プロジェクタイルを進め、今tickの送信メッセージを返します。
// 被弾レコードは常にアクター状態より先に送ります。
func (app *ArenaApplication) Tick(ctx context.Context) []domain.Outbound {
	now := app.clock.Now()
	dt := time.Duration(0)
	if !app.lastTick.IsZero() {
		dt = now.Sub(app.lastTick)
	}
	app.lastTick = now

	for _, actor := range app.field.TickRespawns(now) {
		slog.DebugContext(ctx, "actor respawned", "entityID", actor.ID)
	}
	app.tickBots(ctx, now, dt)
	app.authority.Tick(ctx, dt)

	out := app.authority.Drain()
	out = append(out, app.pending...)
	clear(app.pending)
	app.pending = app.pending[:0]
	for _, actor := range app.field.GetAllActors() {
		out = append(out, domain.Outbound{Data: app.encodeActor(domain.ActorSubTypeUpdate, actor)})
	}
	return out
}

func (app *ArenaApplication) tickBots(ctx context.Context, now time.Time, dt time.Duration) {
	if len(app.bots) == 0 {
		return
	}
	actors := app.field.GetAllActors()
	projectiles := app.authority.Projectiles()
	for _, bot := range app.bots {
		self, ok := app.field.GetActor(bot.ID)
		if !ok || !self.IsAlive() {
			continue
		}
		action := bot.Controller.Decide(self, actors, projectiles)
		if !action.Move.IsZero() {
			self.Position = app.field.Arena.Clamp(self.Position.Add(action.Move.Scale(bot.Speed * dt.Seconds())))
		}
		if aim, ok := action.Aim.Normalize(); ok {
			self.Aim = aim
		}
		if !action.Fire || now.Before(self.Weapon.NextAllowed()) {
			continue
		}
		// 拡散の減衰を発砲時刻まで進めてから、権威と同じ拡散で方向を作る
		self.Weapon.Update(now)
		if err := app.authority.HandleFire(ctx, bot.ID.SessionID(), app.botFireRequest(self)); err != nil {
			slog.DebugContext(ctx, "bot fire rejected", "entityID", bot.ID, "err", err)
		}
	}
}

// botFireRequest はボットの照準から拡散を適用したfire-requestを組み立てます。
// プレイヤーと同じくセッション由来のシードを使うので、権威の検証をそのまま通ります。
func (app *ArenaApplication) botFireRequest(self *Actor) *domain.FireRequestPayload {
	app.botSeq++
	cfg := self.Weapon.Config()
	rng := weapon.ShotRand(weapon.ShotSeed(self.ID.SessionID(), cfg.Name), app.botSeq)
	req := &domain.FireRequestPayload{
		Seq:             app.botSeq,
		ClientTimestamp: domain.NowMillis32(),
		Origin:          self.Position,
		Aim:             self.Aim,
		Directions:      make([]domain.Vec3, 0, cfg.ShotsPerTrigger),
	}
	spread := self.Weapon.CurrentSpread()
	for i := 0; i < cfg.ShotsPerTrigger; i++ {
		req.Directions = append(req.Directions, weapon.Perturb(self.Aim, spread, rng))
	}
	return req
}

func (app *ArenaApplication) broadcastActor(sub domain.ActorSubType, actor *Actor) {
	app.pending = append(app.pending, domain.Outbound{Data: app.encodeActor(sub, actor)})
}

func (app *ArenaApplication) sendActor(to domain.SessionID, sub domain.ActorSubType, actor *Actor) {
	app.pending = append(app.pending, domain.Outbound{To: to, Data: app.encodeActor(sub, actor)})
}

func (app *ArenaApplication) encodeActor(sub domain.ActorSubType, actor *Actor) []byte {
	app.seq++
	return domain.EncodeMessage(domain.SessionID{}, app.seq, domain.DataTypeActor, uint8(sub), actor.Payload().Encode())
}
