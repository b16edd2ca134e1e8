package application

import (
	"math"

	"arena/server/domain"
	"arena/server/weapon"
)

// FieldTracer はフィールド上の生存アクター (球) と静的ジオメトリに対するレイクエリです。
type FieldTracer struct {
	field *Field
}

// NewFieldTracer はFieldTracerを生成します。
func NewFieldTracer(field *Field) *FieldTracer {
	return &FieldTracer{field: field}
}

// Trace は最初にぶつかった面を返します。ignoreのアクターは無視します。
func (t *FieldTracer) Trace(origin, dir domain.Vec3, maxDist float64, ignore domain.EntityID) (weapon.TraceHit, bool) {
	best := math.Inf(1)
	var result weapon.TraceHit

	if d, n, surface, ok := t.field.Arena.traceStatic(origin, dir, maxDist); ok {
		best = d
		result = weapon.TraceHit{Normal: n, Distance: d, Surface: surface}
	}

	radius := t.field.ActorRadius()
	for _, actor := range t.field.GetAllActors() {
		if actor.ID == ignore || !actor.IsAlive() {
			continue
		}
		d, ok := raySphere(origin, dir, actor.Position, radius)
		if !ok || d > maxDist || d >= best {
			continue
		}
		best = d
		loc := origin.Add(dir.Scale(d))
		n, _ := loc.Sub(actor.Position).Normalize()
		result = weapon.TraceHit{Normal: n, Distance: d, Entity: actor.ID, Surface: domain.SurfaceFlesh}
	}

	if math.IsInf(best, 1) {
		return weapon.TraceHit{}, false
	}
	result.Location = origin.Add(dir.Scale(best))
	return result, true
}

// raySphere は単位方向のレイが球面に最初に触れる距離を返します。始点が球の中なら0です。
func raySphere(origin, dir, center domain.Vec3, radius float64) (float64, bool) {
	oc := origin.Sub(center)
	c := oc.Dot(oc) - radius*radius
	if c <= 0 {
		return 0, true
	}
	b := oc.Dot(dir)
	if b > 0 {
		return 0, false
	}
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	return -b - math.Sqrt(disc), true
}
