package weapon

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"arena/server/domain"
	"arena/utils"
)

// DirectionEpsilon は方向ベクトルを単位長とみなす許容誤差です。
const DirectionEpsilon = 1e-3

var (
	ErrNonFinite = errors.New("weapon: non-finite shot vector")
	ErrNotUnit   = errors.New("weapon: shot direction is not unit length")
)

// ShotRequest は1回の解決に使う射撃要求です。解決が終われば捨てられます。
type ShotRequest struct {
	Origin     domain.Vec3
	Direction  domain.Vec3
	Instigator domain.EntityID
	Timestamp  time.Time
}

// Validate は方向が有限かつ単位長であることを検査します。
func (r ShotRequest) Validate() error {
	if !utils.FiniteVec(r.Origin) || !utils.FiniteVec(r.Direction) {
		return ErrNonFinite
	}
	if !r.Direction.IsUnit(DirectionEpsilon) {
		return fmt.Errorf("%w: len=%v", ErrNotUnit, r.Direction.Len())
	}
	return nil
}

// TraceHit はレイが最初にぶつかった面です。Entityが空ならワールドの静的ジオメトリです。
type TraceHit struct {
	Location domain.Vec3
	Normal   domain.Vec3
	Distance float64
	Entity   domain.EntityID
	Surface  domain.SurfaceType
}

//go:generate go tool mockgen -destination=./mocks/tracer_mock.go -package=mocks . Tracer

// Tracer はサーバー側のレイクエリです。ignoreの実体は無視します。
type Tracer interface {
	Trace(origin, dir domain.Vec3, maxDist float64, ignore domain.EntityID) (TraceHit, bool)
}

// DamageModifier は面や部位ごとのダメージ倍率を返します。
type DamageModifier interface {
	Multiplier(hit TraceHit) float64
}

// DamageModifierFunc は関数をDamageModifierとして使うためのアダプタです。
type DamageModifierFunc func(hit TraceHit) float64

func (f DamageModifierFunc) Multiplier(hit TraceHit) float64 { return f(hit) }

// OutcomeKind は1ペレット分の解決結果の種類です。
type OutcomeKind uint8

const (
	OutcomeMiss OutcomeKind = iota
	OutcomeImpact
	OutcomeProjectile
)

// ProjectileSpawn はプロジェクタイルの生成要求です。
type ProjectileSpawn struct {
	Origin   domain.Vec3
	Velocity domain.Vec3
	Life     time.Duration
}

// Outcome は1ペレット分の解決結果です。
type Outcome struct {
	Kind       OutcomeKind
	Direction  domain.Vec3
	Hit        TraceHit // OutcomeImpactのとき有効
	Damage     float64  // OutcomeImpactのとき有効
	Projectile ProjectileSpawn
}

// Resolver は検証済みの射撃要求を即着弾トレースかプロジェクタイル生成に変換します。
type Resolver struct {
	tracer   Tracer
	modifier DamageModifier
}

// NewResolver はResolverを生成します。modifierがnilなら倍率は常に1です。
func NewResolver(tracer Tracer, modifier DamageModifier) *Resolver {
	return &Resolver{tracer: tracer, modifier: modifier}
}

// Resolve は照準方向を拡散でずらしたペレットをShotsPerTrigger本解決します。
func (r *Resolver) Resolve(req ShotRequest, cfg FireConfig, spread float64, rng *rand.Rand) []Outcome {
	outcomes := make([]Outcome, 0, cfg.ShotsPerTrigger)
	for i := 0; i < cfg.ShotsPerTrigger; i++ {
		pellet := req
		pellet.Direction = Perturb(req.Direction, spread, rng)
		outcomes = append(outcomes, r.ResolveDirection(pellet, cfg))
	}
	return outcomes
}

// ResolveDirection は拡散適用済みの方向1本をそのまま解決します。
func (r *Resolver) ResolveDirection(req ShotRequest, cfg FireConfig) Outcome {
	dir, ok := req.Direction.Normalize()
	if !ok {
		// 退化した方向はトレースせず外れとして扱う
		return Outcome{Kind: OutcomeMiss}
	}
	out := Outcome{Direction: dir}

	if cfg.Kind == KindProjectile {
		out.Kind = OutcomeProjectile
		out.Projectile = ProjectileSpawn{
			Origin:   req.Origin,
			Velocity: dir.Scale(cfg.ProjectileSpeed),
			Life:     cfg.Life(),
		}
		return out
	}

	maxRange := cfg.MaxRange
	if maxRange <= 0 {
		maxRange = DefaultMaxRange
	}
	hit, ok := r.tracer.Trace(req.Origin, dir, maxRange, req.Instigator)
	if !ok {
		out.Kind = OutcomeMiss
		return out
	}
	out.Kind = OutcomeImpact
	out.Hit = hit
	out.Damage = r.scale(cfg.BaseDamage, hit)
	return out
}

func (r *Resolver) scale(damage float64, hit TraceHit) float64 {
	if r.modifier == nil {
		return damage
	}
	m := r.modifier.Multiplier(hit)
	if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		return damage
	}
	return damage * m
}

// ImpactDamage はプロジェクタイル着弾時の点ダメージを倍率込みで返します。
func (r *Resolver) ImpactDamage(cfg FireConfig, hit TraceHit) float64 {
	return r.scale(cfg.BaseDamage, hit)
}
