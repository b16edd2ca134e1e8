package utils

import (
	"math"

	"arena/server/domain"
)

// FiniteVec はすべての成分が有限かどうかを返します。
func FiniteVec(v domain.Vec3) bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
