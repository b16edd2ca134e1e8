package weapon

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"arena/server/domain"
)

// Spread は連射による拡散の蓄積と減衰を管理します。
// 蓄積量はBaseSpreadからの上乗せ分で、常に [0, MaxSpread-BaseSpread] に収まります。
type Spread struct {
	base         float64
	max          float64
	increment    float64
	decayRate    float64
	targetingMod float64

	accum float64
}

func NewSpread(cfg FireConfig) Spread {
	return Spread{
		base:         cfg.BaseSpread,
		max:          cfg.MaxSpread,
		increment:    cfg.SpreadIncrement,
		decayRate:    cfg.SpreadDecayRate,
		targetingMod: cfg.TargetingSpreadMod,
	}
}

// Current は現在の拡散半角 (度) を返します。精密照準中は倍率を掛けます。
func (s *Spread) Current(targeting bool) float64 {
	c := math.Min(s.max, s.base+s.accum)
	if targeting {
		c *= s.targetingMod
	}
	return c
}

// OnShot は1発分の拡散を上乗せします。
func (s *Spread) OnShot() {
	s.accum = math.Min(s.accum+s.increment, s.max-s.base)
}

// Decay は経過時間に応じて線形にBaseSpreadへ戻します。
func (s *Spread) Decay(dt time.Duration) {
	if dt <= 0 {
		return
	}
	s.accum = math.Max(0, s.accum-s.decayRate*dt.Seconds())
}

// Reset は蓄積を捨てます。
func (s *Spread) Reset() { s.accum = 0 }

// ShotSeed はセッションと武器名から拡散の乱数シードを導きます。
// 発砲側とオーソリティが別々に同じ値を計算できるので、シードは送りません。
func ShotSeed(session domain.SessionID, weapon string) uint64 {
	id := uuid.NewSHA1(uuid.UUID(session), []byte(weapon))
	return binary.LittleEndian.Uint64(id[:8])
}

// ShotRand は武器シードと発砲シーケンスから乱数列を作ります。
// 同じ入力なら発砲側とオーソリティで同じ列になります。
func ShotRand(seed uint64, seq uint16) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(seq)))
}

// Perturb は照準方向を半角halfAngle (度) の円錐内で立体角一様にずらします。
// cosθ を [cos(half), 1] から一様に引くことで、縁への偏りを避けます。
func Perturb(aim domain.Vec3, halfAngle float64, rng *rand.Rand) domain.Vec3 {
	axis, ok := aim.Normalize()
	if !ok {
		return aim
	}
	if halfAngle <= 0 || rng == nil {
		return axis
	}

	cosHalf := math.Cos(halfAngle * math.Pi / 180)
	cosTheta := 1 - rng.Float64()*(1-cosHalf)
	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))
	phi := rng.Float64() * 2 * math.Pi

	u, v := basis(axis)
	dir := axis.Scale(cosTheta).
		Add(u.Scale(sinTheta * math.Cos(phi))).
		Add(v.Scale(sinTheta * math.Sin(phi)))
	return ClampDirection(dir, axis)
}

// ClampDirection は退化した方向 (長さほぼ0・非有限) を照準方向に置き換えます。
func ClampDirection(dir, aim domain.Vec3) domain.Vec3 {
	if n, ok := dir.Normalize(); ok {
		return n
	}
	return aim
}

// basis はaxisに直交する2本の単位ベクトルを返します。
func basis(axis domain.Vec3) (domain.Vec3, domain.Vec3) {
	helper := domain.Vec3{Z: 1}
	if math.Abs(axis.Z) > 0.9 {
		helper = domain.Vec3{X: 1}
	}
	u, _ := axis.Cross(helper).Normalize()
	v := axis.Cross(u)
	return u, v
}

// AngleBetween は2つの単位ベクトルのなす角 (度) を返します。
func AngleBetween(a, b domain.Vec3) float64 {
	d := math.Max(-1, math.Min(1, a.Dot(b)))
	return math.Acos(d) * 180 / math.Pi
}
