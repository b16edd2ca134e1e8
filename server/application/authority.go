package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"arena/server/domain"
	"arena/server/hit"
	"arena/server/telemetry"
	"arena/server/weapon"
)

const (
	// DefaultOriginTolerance は要求の発射位置と追跡中の位置のずれの許容値です。
	DefaultOriginTolerance = 200.0
	// DefaultAimTolerance は要求の照準と追跡中の照準のずれの許容角 (度) です。
	DefaultAimTolerance = 15.0
	// DefaultSpreadTolerance は各ペレットと再現した拡散方向のずれの許容角 (度) です。
	DefaultSpreadTolerance = 1.0
)

var (
	ErrUnknownActor   = errors.New("authority: unknown or dead actor")
	ErrMalformed      = errors.New("authority: malformed fire request")
	ErrOriginTooFar   = errors.New("authority: origin too far from tracked position")
	ErrAimMismatch    = errors.New("authority: aim too far from tracked aim")
	ErrStaleShot      = errors.New("authority: fire sequence already used")
	ErrSpreadMismatch = errors.New("authority: pellet direction does not match seeded spread")
	ErrRejected       = errors.New("authority: fire rejected")
)

type Clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
}

// SystemClock は実時間のClockです。
type SystemClock struct{}

func (SystemClock) Now() time.Time                  { return time.Now() }
func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Score は確定した被弾1件の得点通知です。
type Score struct {
	Instigator domain.EntityID
	Victim     domain.EntityID
	Damage     float32
	Lethal     bool
}

// ScoreObserver は確定した被弾を受け取るコールバックです。スコア集計は外部が行います。
type ScoreObserver func(Score)

// AuthorityOption はAuthorityの生成オプションです。
type AuthorityOption func(*Authority)

// WithOriginTolerance は発射位置の許容距離を設定します。
func WithOriginTolerance(d float64) AuthorityOption {
	return func(a *Authority) { a.originTolerance = d }
}

// WithAimTolerance は照準のずれの許容角 (度) を設定します。
func WithAimTolerance(deg float64) AuthorityOption {
	return func(a *Authority) { a.aimTolerance = deg }
}

// WithSpreadTolerance はペレット方向と再現した拡散方向のずれの許容角 (度) を設定します。
func WithSpreadTolerance(deg float64) AuthorityOption {
	return func(a *Authority) { a.spreadTolerance = deg }
}

// WithScoreObserver は得点通知先を設定します。
func WithScoreObserver(fn ScoreObserver) AuthorityOption {
	return func(a *Authority) { a.onScore = fn }
}

// WithCatalog はプロジェクタイルの武器名を解決するカタログを設定します。
func WithCatalog(c weapon.Catalog) AuthorityOption {
	return func(a *Authority) { a.catalog = c }
}

// WithDamageModifier は面ごとのダメージ倍率を設定します。
func WithDamageModifier(m weapon.DamageModifier) AuthorityOption {
	return func(a *Authority) { a.modifier = m }
}

type effect struct {
	to      domain.SessionID
	sub     domain.EffectSubType
	payload []byte
}

// Authority は射撃要求を再検証し、自前のトレースで解決して被弾レコードを書き込みます。
// ルームのtickループからのみ呼ばれます。
type Authority struct {
	field       *Field
	tracer      weapon.Tracer
	resolver    *weapon.Resolver
	modifier    weapon.DamageModifier
	projectiles weapon.ProjectileSet
	catalog     weapon.Catalog
	outbox      *hit.Outbox
	effects     []effect

	metrics  telemetry.Recorder
	clock    Clock
	validate Validator

	originTolerance float64
	aimTolerance    float64
	spreadTolerance float64
	onScore         ScoreObserver
	seq             uint16
}

func NewAuthority(field *Field, m telemetry.Recorder, clock Clock, validator Validator, opts ...AuthorityOption) (*Authority, error) {
	if field == nil || m == nil || clock == nil || validator == nil {
		return nil, fmt.Errorf("authority: missing dependencies: field=%v metrics=%v clock=%v validator=%v", field, m, clock, validator)
	}
	a := &Authority{
		field:           field,
		tracer:          NewFieldTracer(field),
		catalog:         weapon.DefaultCatalog(),
		outbox:          hit.NewOutbox(),
		metrics:         m,
		clock:           clock,
		validate:        validator,
		originTolerance: DefaultOriginTolerance,
		aimTolerance:    DefaultAimTolerance,
		spreadTolerance: DefaultSpreadTolerance,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.resolver = weapon.NewResolver(a.tracer, a.modifier)
	return a, nil
}

// Projectiles は飛翔中のプロジェクタイルのスナップショットです。
func (a *Authority) Projectiles() []weapon.Projectile {
	return a.projectiles.Snapshot()
}

// HandleFire は射撃要求1件を処理します。拒否された要求は何も書き込まず、
// 要求元にも通知しません。ペレット方向はクライアントの申告をそのまま信じず、
// 照準とseqから拡散を再現して一致したものだけを解決します。
func (a *Authority) HandleFire(ctx context.Context, sessionID domain.SessionID, req *domain.FireRequestPayload) error {
	start := a.clock.Now()
	defer a.record("fire", start)

	actor, ok := a.field.GetActor(sessionID.EntityID())
	if !ok || !actor.IsAlive() {
		return a.reject(ctx, "unknown_actor", ErrUnknownActor)
	}
	cfg := actor.Weapon.Config()
	if err := a.validate.Fire(cfg, req); err != nil {
		return a.reject(ctx, "malformed", fmt.Errorf("%w: %w", ErrMalformed, err))
	}
	if dist := actor.Position.Dist(req.Origin); dist > a.originTolerance {
		return a.reject(ctx, "origin", fmt.Errorf("%w: %.1f > %.1f", ErrOriginTooFar, dist, a.originTolerance))
	}
	aim, _ := req.Aim.Normalize()
	if deg := weapon.AngleBetween(aim, actor.Aim); deg > a.aimTolerance {
		return a.reject(ctx, "aim", fmt.Errorf("%w: %.1f > %.1f deg", ErrAimMismatch, deg, a.aimTolerance))
	}
	if !actor.acceptsShot(req.Seq) {
		return a.reject(ctx, "sequence", fmt.Errorf("%w: %d", ErrStaleShot, req.Seq))
	}

	seed := weapon.ShotSeed(sessionID, cfg.Name)
	err := actor.Weapon.Fire(start, func(spread float64) error {
		if err := a.checkSpread(seed, req.Seq, aim, spread, req.Directions); err != nil {
			return err
		}
		actor.markShot(req.Seq)
		a.emitEffect(domain.SessionID{}, domain.EffectSubTypeMuzzle, actor.ID, req.Origin, domain.SurfaceUnknown)
		for _, dir := range req.Directions {
			shot := weapon.ShotRequest{Origin: req.Origin, Direction: dir, Instigator: actor.ID, Timestamp: start}
			a.apply(ctx, actor.ID, cfg, req.Seq, a.resolver.ResolveDirection(shot, cfg), start)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSpreadMismatch):
			return a.reject(ctx, "spread", err)
		case errors.Is(err, weapon.ErrOutOfAmmo):
			// 弾切れの演出は本人にだけ返す
			a.emitEffect(sessionID, domain.EffectSubTypeOutOfAmmo, actor.ID, req.Origin, domain.SurfaceUnknown)
			return a.reject(ctx, "out_of_ammo", fmt.Errorf("%w: %w", ErrRejected, err))
		}
		return a.reject(ctx, "cooldown", fmt.Errorf("%w: %w", ErrRejected, err))
	}
	a.metrics.IncrementCounter(ctx, "fire.accepted", 1)
	return nil
}

// Tick はプロジェクタイルを進め、着弾を解決します。
func (a *Authority) Tick(ctx context.Context, dt time.Duration) {
	now := a.clock.Now()
	impacts, expired := a.projectiles.Advance(dt, a.tracer)
	if expired > 0 {
		a.metrics.IncrementCounter(ctx, "projectile.expired", expired)
	}
	for _, impact := range impacts {
		p := impact.Projectile
		cfg, ok := a.weaponConfig(p)
		if !ok {
			slog.WarnContext(ctx, "projectile weapon unknown", "weapon", p.Weapon)
			continue
		}
		dir, _ := p.Velocity.Normalize()
		a.impact(ctx, p.Owner, p.ID, cfg, p.Shot, weapon.Outcome{
			Kind:      weapon.OutcomeImpact,
			Direction: dir,
			Hit:       impact.Hit,
			Damage:    a.resolver.ImpactDamage(cfg, impact.Hit),
		}, now)
	}
}

// Drain は今tickで確定した被弾レコードと演出イベントを送出順に取り出します。
// 被弾レコードはルーム全体 (自分自身を含む全観測者) に配信されます。
func (a *Authority) Drain() []domain.Outbound {
	pending := a.outbox.Drain()
	out := make([]domain.Outbound, 0, len(pending)+len(a.effects))
	for _, p := range pending {
		out = append(out, domain.Outbound{
			Data: domain.EncodeMessage(domain.SessionID{}, a.nextSeq(), domain.DataTypeHit, uint8(domain.HitSubTypeRecord), p.Payload),
		})
	}
	for _, e := range a.effects {
		out = append(out, domain.Outbound{
			To:   e.to,
			Data: domain.EncodeMessage(domain.SessionID{}, a.nextSeq(), domain.DataTypeEffect, uint8(e.sub), e.payload),
		})
	}
	clear(a.effects)
	a.effects = a.effects[:0]
	return out
}

// Forget は退出したアクターの複製状態を破棄します。飛翔中のプロジェクタイルは残ります。
func (a *Authority) Forget(id domain.EntityID) {
	a.outbox.Forget(id)
}

// checkSpread は各ペレットが (seed, seq, 照準, 現在の拡散) から再現した方向と一致するかを確かめます。
func (a *Authority) checkSpread(seed uint64, seq uint16, aim domain.Vec3, spread float64, dirs []domain.Vec3) error {
	rng := weapon.ShotRand(seed, seq)
	for i, dir := range dirs {
		want := weapon.Perturb(aim, spread, rng)
		if deg := weapon.AngleBetween(want, dir); deg > a.spreadTolerance {
			return fmt.Errorf("%w: pellet %d off by %.2f deg", ErrSpreadMismatch, i, deg)
		}
	}
	return nil
}

func (a *Authority) apply(ctx context.Context, owner domain.EntityID, cfg weapon.FireConfig, shot uint16, out weapon.Outcome, now time.Time) {
	switch out.Kind {
	case weapon.OutcomeProjectile:
		p := a.projectiles.Spawn(owner, cfg.Name, shot, out.Projectile)
		slog.DebugContext(ctx, "projectile spawned", "owner", owner, "projectile", p.ID)
	case weapon.OutcomeImpact:
		// 即着弾では武器の持ち主が原因でもある
		a.impact(ctx, owner, owner, cfg, shot, out, now)
	}
}

// impact は着弾1件を被弾レコードに変換します。爆発する武器は範囲ダメージのみを与えます。
func (a *Authority) impact(ctx context.Context, instigator, causer domain.EntityID, cfg weapon.FireConfig, shot uint16, out weapon.Outcome, now time.Time) {
	a.emitEffect(domain.SessionID{}, domain.EffectSubTypeImpact, out.Hit.Entity, out.Hit.Location, out.Hit.Surface)

	if cfg.Splash() {
		ev := hit.RadialDamage{Origin: out.Hit.Location, Radius: cfg.ExplosionRadius}
		for _, rh := range weapon.RadialQuery(a.field, out.Hit.Location, cfg.ExplosionDamage, cfg.ExplosionRadius) {
			a.confirm(ctx, rh.Entity, ev, instigator, causer, cfg.DamageType, shot, rh.Damage, now)
		}
		return
	}
	if out.Hit.Entity.IsEmpty() {
		return
	}
	ev := hit.PointDamage{Location: out.Hit.Location, Direction: out.Direction, Surface: out.Hit.Surface}
	a.confirm(ctx, out.Hit.Entity, ev, instigator, causer, cfg.DamageType, shot, out.Damage, now)
}

// confirm は被弾をアクターと被弾レコードに反映し、複製キューへ積みます。
func (a *Authority) confirm(ctx context.Context, victim domain.EntityID, ev hit.DamageEvent, instigator, causer domain.EntityID, damageType string, shot uint16, amount float64, now time.Time) {
	actor, ok := a.field.GetActor(victim)
	if !ok || !actor.IsAlive() {
		return
	}
	lethal := a.field.ApplyDamage(victim, amount, now)
	actor.Record.SetDamageEvent(ev, instigator, causer, damageType, amount, lethal)
	actor.Record.SetShot(shot)
	a.outbox.Push(actor.Record)
	a.metrics.IncrementCounter(ctx, "hit.confirmed", 1)
	slog.DebugContext(ctx, "hit confirmed", "victim", victim, "instigator", instigator, "damage", amount, "lethal", lethal)

	if a.onScore != nil {
		a.onScore(Score{Instigator: instigator, Victim: victim, Damage: actor.Record.ActualDamage(), Lethal: lethal})
	}
}

func (a *Authority) weaponConfig(p weapon.Projectile) (weapon.FireConfig, bool) {
	if owner, ok := a.field.GetActor(p.Owner); ok && owner.Weapon.Config().Name == p.Weapon {
		return owner.Weapon.Config(), true
	}
	return a.catalog.Get(p.Weapon)
}

// emitEffect は演出イベントを積みます。toが空ならルーム全体に配信されます。
func (a *Authority) emitEffect(to domain.SessionID, sub domain.EffectSubType, entity domain.EntityID, loc domain.Vec3, surface domain.SurfaceType) {
	payload := (&domain.EffectPayload{Entity: entity, Location: loc, Surface: surface}).Encode()
	a.effects = append(a.effects, effect{to: to, sub: sub, payload: payload})
}

func (a *Authority) nextSeq() uint16 {
	a.seq++
	return a.seq
}

func (a *Authority) reject(ctx context.Context, reason string, err error) error {
	a.metrics.IncrementCounter(ctx, "fire.rejected."+reason, 1)
	return err
}

func (a *Authority) record(endpoint string, started time.Time) {
	duration := a.clock.Since(started)
	ctx := context.Background()
	a.metrics.RecordLatency(ctx, endpoint, duration)
	a.metrics.IncrementCounter(ctx, "requests."+endpoint, 1)
}
