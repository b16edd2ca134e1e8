package weapon

import (
	"bytes"
	"cmp"
	"slices"

	"arena/server/domain"
)

// RadialFalloff は中心からdistの位置での範囲ダメージです。
// 距離0でdamage、radius以上で0、その間は線形に減衰します。
func RadialFalloff(damage, radius, dist float64) float64 {
	if radius <= 0 || dist >= radius {
		return 0
	}
	if dist <= 0 {
		return damage
	}
	return damage * (1 - dist/radius)
}

// RadialTarget は範囲ダメージの候補となる実体です。
type RadialTarget struct {
	Entity   domain.EntityID
	Position domain.Vec3
}

// ActorQuery は中心から半径内の実体を列挙します。
type ActorQuery interface {
	ActorsWithin(center domain.Vec3, radius float64) []RadialTarget
}

// RadialHit は範囲ダメージ1件分の結果です。
type RadialHit struct {
	Entity   domain.EntityID
	Distance float64
	Damage   float64
}

// RadialQuery は着弾点から半径内の全実体に減衰込みのダメージを割り当てます。
// 結果は距離順で、同距離ならEntityID順です。ダメージ0の実体は含みません。
func RadialQuery(q ActorQuery, center domain.Vec3, damage, radius float64) []RadialHit {
	if radius <= 0 {
		return nil
	}
	var hits []RadialHit
	for _, t := range q.ActorsWithin(center, radius) {
		dist := t.Position.Dist(center)
		dmg := RadialFalloff(damage, radius, dist)
		if dmg <= 0 {
			continue
		}
		hits = append(hits, RadialHit{Entity: t.Entity, Distance: dist, Damage: dmg})
	}
	slices.SortFunc(hits, func(a, b RadialHit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return bytes.Compare(a.Entity[:], b.Entity[:])
	})
	return hits
}
