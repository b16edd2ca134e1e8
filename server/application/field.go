package application

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"time"

	"arena/server/domain"
	"arena/server/hit"
	"arena/server/weapon"
	"arena/utils"
)

// ActorState はアクターの状態と種別をビットマスクで表現します。
// bit 0-3: 状態フラグ, bit 4-7: 種別フラグ
type ActorState uint8

const (
	StateAlive      ActorState = 0x01
	StateRespawning ActorState = 0x02
	KindPlayer      ActorState = 0x00
	KindBot         ActorState = 0x10
)

// Actor はフィールド上のキャラクターです。被弾レコードはスポーン時に作られ、
// キャラクターが消えるまで同じものを使い回します。
type Actor struct {
	ID        domain.EntityID
	Position  domain.Vec3
	Aim       domain.Vec3
	HP        float64
	State     ActorState
	RespawnAt time.Time
	PoseAt    time.Time // 最後に位置を受け入れた時刻。ゼロならスポーン直後

	Weapon *weapon.Weapon
	Record *hit.Record

	lastShot uint16
	shotSeen bool
}

// IsAlive はアクターが生存しているかを返します。
func (a *Actor) IsAlive() bool {
	return a.State&StateAlive != 0
}

// acceptsShot はseqが最後に受け入れた射撃より新しいかを返します。seqは一周するので差の符号で比べます。
func (a *Actor) acceptsShot(seq uint16) bool {
	return !a.shotSeen || int16(seq-a.lastShot) > 0
}

func (a *Actor) markShot(seq uint16) {
	a.lastShot = seq
	a.shotSeen = true
}

// IsBot はサーバー側のボットかどうかを返します。
func (a *Actor) IsBot() bool {
	return a.State&KindBot != 0
}

// Payload はブロードキャスト用の状態に変換します。
func (a *Actor) Payload() *domain.ActorStatePayload {
	hp := a.HP
	if hp < 0 {
		hp = 0
	}
	if hp > 255 {
		hp = 255
	}
	return &domain.ActorStatePayload{
		Entity:   a.ID,
		Position: a.Position,
		Aim:      a.Aim,
		HP:       uint8(hp),
		Flags:    uint8(a.State),
	}
}

const (
	// DefaultMaxSpeed はクライアントが報告する移動の上限速度 (単位/秒) です。
	DefaultMaxSpeed = 600.0
	// DefaultPoseSlack は速度上限に上乗せする距離です。報告間隔の揺らぎを吸収します。
	DefaultPoseSlack = 50.0
)

// FieldOption はFieldの生成オプションです。
type FieldOption func(*Field)

// WithMaxSpeed は報告された位置の移動上限を設定します。speedが0以下なら制限しません。
func WithMaxSpeed(speed, slack float64) FieldOption {
	return func(f *Field) {
		f.maxSpeed = speed
		f.poseSlack = slack
	}
}

// Field はアリーナとアクターを管理する構造体です。
// オーソリティのtickループからのみ操作されます。
type Field struct {
	Arena  *Arena
	Actors map[domain.EntityID]*Actor

	actorRadius  float64
	maxHP        float64
	respawnDelay time.Duration
	maxSpeed     float64
	poseSlack    float64
	spawned      int
}

// NewField は指定されたアリーナでフィールドを作成します。
func NewField(arena *Arena, actorRadius, maxHP float64, respawnDelay time.Duration, opts ...FieldOption) *Field {
	f := &Field{
		Arena:        arena,
		Actors:       make(map[domain.EntityID]*Actor),
		actorRadius:  actorRadius,
		maxHP:        maxHP,
		respawnDelay: respawnDelay,
		maxSpeed:     DefaultMaxSpeed,
		poseSlack:    DefaultPoseSlack,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ActorRadius はアクターの当たり判定の半径です。
func (f *Field) ActorRadius() float64 { return f.actorRadius }

// Spawn はアクターを生成します。被弾レコードはここで1つだけ作られます。
func (f *Field) Spawn(id domain.EntityID, kind ActorState, w *weapon.Weapon) *Actor {
	actor := &Actor{
		ID:       id,
		Position: f.Arena.SpawnPoint(f.spawned),
		HP:       f.maxHP,
		State:    StateAlive | kind,
		Weapon:   w,
		Record:   hit.NewRecord(id, w.Config().DamageType),
	}
	actor.Aim, _ = actor.Position.Neg().Normalize()
	f.spawned++
	f.Actors[id] = actor
	return actor
}

// Remove はアクターをフィールドから削除します。
func (f *Field) Remove(id domain.EntityID) {
	delete(f.Actors, id)
}

// GetActor は指定されたIDのアクターを取得します。
func (f *Field) GetActor(id domain.EntityID) (*Actor, bool) {
	actor, ok := f.Actors[id]
	return actor, ok
}

// Exists はIDが現存するアクターを指しているかを返します。
func (f *Field) Exists(id domain.EntityID) bool {
	_, ok := f.Actors[id]
	return ok
}

// GetAllActors は全アクターをID順で返します。
func (f *Field) GetAllActors() []*Actor {
	actors := make([]*Actor, 0, len(f.Actors))
	for _, actor := range f.Actors {
		actors = append(actors, actor)
	}
	slices.SortFunc(actors, func(a, b *Actor) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return actors
}

// UpdatePose はクライアントが報告した位置と照準を反映します。
// 移動量は前回受け入れた時刻からの経過時間と上限速度で打ち切り、最後に外枠でクランプします。
// 射撃の発射位置はこの位置と照合されるので、瞬間移動した位置からは撃てません。
func (f *Field) UpdatePose(ctx context.Context, id domain.EntityID, pos, aim domain.Vec3, now time.Time) {
	actor, ok := f.Actors[id]
	if !ok {
		slog.WarnContext(ctx, "actor not found", "entityID", id)
		return
	}
	if !actor.IsAlive() {
		return
	}
	if !utils.FiniteVec(pos) {
		pos = actor.Position
	}
	if f.maxSpeed > 0 {
		limit := f.poseSlack
		if !actor.PoseAt.IsZero() && now.After(actor.PoseAt) {
			limit += f.maxSpeed * now.Sub(actor.PoseAt).Seconds()
		}
		delta := pos.Sub(actor.Position)
		if d := delta.Len(); d > limit {
			slog.DebugContext(ctx, "pose move clamped", "entityID", id, "distance", d, "limit", limit)
			pos = actor.Position.Add(delta.Scale(limit / d))
		}
	}
	actor.Position = f.Arena.Clamp(pos)
	actor.PoseAt = now
	if n, ok := aim.Normalize(); ok {
		actor.Aim = n
	}
}

// ActorsWithin は中心から半径内にいる生存アクターを返します。距離はアクターの中心で測ります。
func (f *Field) ActorsWithin(center domain.Vec3, radius float64) []weapon.RadialTarget {
	var out []weapon.RadialTarget
	r2 := radius * radius
	for _, actor := range f.GetAllActors() {
		if !actor.IsAlive() {
			continue
		}
		if actor.Position.DistSq(center) <= r2 {
			out = append(out, weapon.RadialTarget{Entity: actor.ID, Position: actor.Position})
		}
	}
	return out
}

// ApplyDamage はアクターにダメージを与えます。HPが0になったらRespawning状態に遷移し、
// 致命的だったかを返します。
func (f *Field) ApplyDamage(id domain.EntityID, damage float64, now time.Time) (lethal bool) {
	actor, ok := f.Actors[id]
	if !ok || !actor.IsAlive() {
		return false
	}
	actor.HP -= damage
	if actor.HP > 0 {
		return false
	}
	actor.HP = 0
	actor.State = (actor.State &^ 0x0F) | StateRespawning // 状態フラグのみ変更、種別フラグは維持
	actor.RespawnAt = now.Add(f.respawnDelay)
	return true
}

// TickRespawns はリスポーン時刻を過ぎたアクターを復活させ、そのアクターを返します。
func (f *Field) TickRespawns(now time.Time) []*Actor {
	var respawned []*Actor
	for _, actor := range f.GetAllActors() {
		if actor.State&StateRespawning == 0 || now.Before(actor.RespawnAt) {
			continue
		}
		actor.HP = f.maxHP
		actor.State = (actor.State &^ 0x0F) | StateAlive
		actor.Position = f.Arena.SpawnPoint(f.spawned)
		actor.PoseAt = time.Time{}
		f.spawned++
		actor.Weapon.Reload(actor.Weapon.Config().MagazineSize)
		respawned = append(respawned, actor)
	}
	return respawned
}
