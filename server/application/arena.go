package application

import (
	"math"

	"arena/server/domain"
)

// Box は軸平行の静的な障害物です。
type Box struct {
	Min, Max domain.Vec3
	Surface  domain.SurfaceType
}

// Arena はフィールドの外枠と静的な障害物です。外枠は原点中心の立方体です。
type Arena struct {
	HalfExtent float64
	Obstacles  []Box
}

// NewArena は外枠だけのアリーナを作ります。
func NewArena(halfExtent float64) *Arena {
	return &Arena{HalfExtent: halfExtent}
}

// AddObstacle は障害物を追加します。
func (a *Arena) AddObstacle(b Box) {
	a.Obstacles = append(a.Obstacles, b)
}

// Clamp は位置を外枠の内側に収めます。
func (a *Arena) Clamp(p domain.Vec3) domain.Vec3 {
	h := a.HalfExtent
	return domain.Vec3{X: clamp(p.X, -h, h), Y: clamp(p.Y, -h, h), Z: clamp(p.Z, -h, h)}
}

// Contains は位置が外枠の内側かどうかを返します。
func (a *Arena) Contains(p domain.Vec3) bool {
	return a.Clamp(p) == p
}

// SpawnPoint はn番目のスポーン位置を返します。外枠の半分の半径の円周上に散らばります。
func (a *Arena) SpawnPoint(n int) domain.Vec3 {
	const golden = 2.399963229728653 // 黄金角 (rad)
	angle := float64(n) * golden
	r := a.HalfExtent / 2
	return domain.Vec3{X: r * math.Cos(angle), Y: r * math.Sin(angle)}
}

// traceStatic はレイが最初にぶつかる障害物または外枠までの距離を返します。
func (a *Arena) traceStatic(origin, dir domain.Vec3, maxDist float64) (float64, domain.Vec3, domain.SurfaceType, bool) {
	best := math.Inf(1)
	var normal domain.Vec3
	var surface domain.SurfaceType
	for _, b := range a.Obstacles {
		if t, n, ok := rayBoxEnter(origin, dir, b.Min, b.Max); ok && t < best {
			best, normal, surface = t, n, b.Surface
		}
	}
	h := a.HalfExtent
	if t, n, ok := rayBoxExit(origin, dir, domain.Vec3{X: -h, Y: -h, Z: -h}, domain.Vec3{X: h, Y: h, Z: h}); ok && t < best {
		best, normal, surface = t, n, domain.SurfaceConcrete
	}
	if best > maxDist {
		return 0, domain.Vec3{}, 0, false
	}
	return best, normal, surface, true
}

// rayBoxEnter はスラブ法でレイが箱に入る距離を求めます。始点が箱の中なら当たりません。
func rayBoxEnter(origin, dir, lo, hi domain.Vec3) (float64, domain.Vec3, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	var normal domain.Vec3
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	l := [3]float64{lo.X, lo.Y, lo.Z}
	h := [3]float64{hi.X, hi.Y, hi.Z}
	for i := 0; i < 3; i++ {
		if d[i] == 0 {
			if o[i] < l[i] || o[i] > h[i] {
				return 0, domain.Vec3{}, false
			}
			continue
		}
		t1 := (l[i] - o[i]) / d[i]
		t2 := (h[i] - o[i]) / d[i]
		sign := -1.0
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1.0
		}
		if t1 > tmin {
			tmin = t1
			normal = axisVec(i, sign)
		}
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, domain.Vec3{}, false
		}
	}
	if tmin < 0 {
		return 0, domain.Vec3{}, false
	}
	return tmin, normal, true
}

// rayBoxExit は箱の内側から出たレイが壁にぶつかる距離を求めます。
func rayBoxExit(origin, dir, lo, hi domain.Vec3) (float64, domain.Vec3, bool) {
	best := math.Inf(1)
	var normal domain.Vec3
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	l := [3]float64{lo.X, lo.Y, lo.Z}
	h := [3]float64{hi.X, hi.Y, hi.Z}
	for i := 0; i < 3; i++ {
		switch {
		case d[i] > 0:
			if t := (h[i] - o[i]) / d[i]; t < best {
				best, normal = t, axisVec(i, -1)
			}
		case d[i] < 0:
			if t := (l[i] - o[i]) / d[i]; t < best {
				best, normal = t, axisVec(i, 1)
			}
		}
	}
	if math.IsInf(best, 1) || best < 0 {
		return 0, domain.Vec3{}, false
	}
	return best, normal, true
}

func axisVec(i int, sign float64) domain.Vec3 {
	switch i {
	case 0:
		return domain.Vec3{X: sign}
	case 1:
		return domain.Vec3{Y: sign}
	default:
		return domain.Vec3{Z: sign}
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
