package weapon

import (
	"math"

	"arena/server/domain"
)

type sphere struct {
	entity  domain.EntityID
	center  domain.Vec3
	radius  float64
	surface domain.SurfaceType
}

// sphereTracer は球だけで構成された最小のワールドです。
type sphereTracer struct {
	spheres []sphere
	calls   int
}

func (s *sphereTracer) Trace(origin, dir domain.Vec3, maxDist float64, ignore domain.EntityID) (TraceHit, bool) {
	s.calls++
	best := TraceHit{Distance: math.Inf(1)}
	found := false
	for _, sp := range s.spheres {
		if sp.entity == ignore && !ignore.IsEmpty() {
			continue
		}
		oc := origin.Sub(sp.center)
		b := oc.Dot(dir)
		c := oc.Dot(oc) - sp.radius*sp.radius
		disc := b*b - c
		if disc < 0 {
			continue
		}
		d := -b - math.Sqrt(disc)
		if d < 0 || d > maxDist || d >= best.Distance {
			continue
		}
		loc := origin.Add(dir.Scale(d))
		normal, _ := loc.Sub(sp.center).Normalize()
		best = TraceHit{Location: loc, Normal: normal, Distance: d, Entity: sp.entity, Surface: sp.surface}
		found = true
	}
	return best, found
}

type staticActors []RadialTarget

func (s staticActors) ActorsWithin(center domain.Vec3, radius float64) []RadialTarget {
	var out []RadialTarget
	for _, t := range s {
		if t.Position.Dist(center) <= radius {
			out = append(out, t)
		}
	}
	return out
}
