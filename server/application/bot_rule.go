package application

import (
	"math"
	"math/rand/v2"

	"arena/server/domain"
	"arena/server/weapon"
)

const (
	botDangerDist float64 = 300.0 // 弾体回避を始める距離
	botNoiseAngle float64 = 0.52  // ±30度 (π/6 ≈ 0.52 rad)
	rushChance    float64 = 0.02  // 毎tick 2% の確率で突撃
)

// RuleBotController はルールベースのボットAIです。
// ボットごとに異なる個性パラメータを持ちます。
type RuleBotController struct {
	CloseRange float64 // 後退を始める距離
	MidRange   float64 // ストレイフを始める距離
	FireRange  float64 // 発砲を始める距離
	StrafeSign float64 // +1: 反時計回り, -1: 時計回り

	rng *rand.Rand
}

// NewRuleBotController はランダムな個性を持つボットAIを生成します。
func NewRuleBotController(rng *rand.Rand) *RuleBotController {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	strafeSign := 1.0
	if rng.Float64() < 0.5 {
		strafeSign = -1.0
	}
	return &RuleBotController{
		CloseRange: 300 + rng.Float64()*400,   // 300〜700
		MidRange:   1000 + rng.Float64()*1000, // 1000〜2000
		FireRange:  2500,
		StrafeSign: strafeSign,
		rng:        rng,
	}
}

func (r *RuleBotController) Decide(self *Actor, allActors []*Actor, projectiles []weapon.Projectile) BotAction {
	nearest := r.findNearestEnemy(self, allActors)

	var action BotAction
	if nearest != nil {
		if aim, ok := nearest.Position.Sub(self.Position).Normalize(); ok {
			action.Aim = aim
			action.Fire = self.Position.Dist(nearest.Position) <= r.FireRange
		}
	}

	// 被弾回避を優先
	if dir, ok := r.evadeProjectile(self, projectiles); ok {
		action.Move = r.addNoise(dir)
		return action
	}
	if nearest == nil {
		return action
	}

	delta := nearest.Position.Sub(self.Position)
	delta.Z = 0
	dist := delta.Len()
	if dist < 0.001 {
		return action
	}
	n := delta.Scale(1 / dist)

	// ランダム突撃: 一定確率で距離に関係なく接近
	if r.rng.Float64() < rushChance {
		action.Move = r.addNoise(n)
		return action
	}

	switch {
	case dist < r.CloseRange:
		// 近距離: 後退
		action.Move = n.Neg()
	case dist < r.MidRange:
		// 中距離: 横移動（ストレイフ方向はボットごとに異なる）
		action.Move = domain.Vec3{X: -n.Y * r.StrafeSign, Y: n.X * r.StrafeSign}
	default:
		// 遠距離: 接近
		action.Move = n
	}
	action.Move = r.addNoise(action.Move)
	return action
}

// evadeProjectile は自分に向かってくる弾体を回避する方向を返します。
func (r *RuleBotController) evadeProjectile(self *Actor, projectiles []weapon.Projectile) (domain.Vec3, bool) {
	closestDist := math.MaxFloat64
	var closest *weapon.Projectile

	for i := range projectiles {
		p := &projectiles[i]
		if p.Owner == self.ID {
			continue
		}
		toSelf := self.Position.Sub(p.Position)
		dist := toSelf.Len()
		if dist > botDangerDist {
			continue
		}
		// 弾体が自分に向かっているか確認（内積 > 0）
		if toSelf.Dot(p.Velocity) <= 0 {
			continue
		}
		if dist < closestDist {
			closestDist = dist
			closest = p
		}
	}
	if closest == nil {
		return domain.Vec3{}, false
	}

	// 弾体の進行方向に対して水平面で垂直に回避
	side, ok := domain.Vec3{X: -closest.Velocity.Y, Y: closest.Velocity.X}.Normalize()
	if !ok {
		return domain.Vec3{}, false
	}
	return side, true
}

// findNearestEnemy は最寄りの生存敵を探します。
func (r *RuleBotController) findNearestEnemy(self *Actor, allActors []*Actor) *Actor {
	var nearest *Actor
	nearestDistSq := math.MaxFloat64

	for _, other := range allActors {
		if other.ID == self.ID || !other.IsAlive() {
			continue
		}
		if distSq := other.Position.DistSq(self.Position); distSq < nearestDistSq {
			nearestDistSq = distSq
			nearest = other
		}
	}
	return nearest
}

// addNoise は水平面の移動方向に ±30度 のランダムノイズを加えます。
func (r *RuleBotController) addNoise(dir domain.Vec3) domain.Vec3 {
	noise := (r.rng.Float64()*2 - 1) * botNoiseAngle
	cos, sin := math.Cos(noise), math.Sin(noise)
	return domain.Vec3{
		X: dir.X*cos - dir.Y*sin,
		Y: dir.X*sin + dir.Y*cos,
		Z: dir.Z,
	}
}
