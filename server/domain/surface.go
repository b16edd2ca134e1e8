package domain

// SurfaceType は着弾面の種別です。デカールやパーティクルの選択は外部が行います。
type SurfaceType uint8

const (
	SurfaceUnknown SurfaceType = iota
	SurfaceConcrete
	SurfaceDirt
	SurfaceWater
	SurfaceMetal
	SurfaceWood
	SurfaceGrass
	SurfaceGlass
	SurfaceFlesh
	SurfaceEnergy
)

var surfaceNames = [...]string{
	SurfaceUnknown:  "unknown",
	SurfaceConcrete: "concrete",
	SurfaceDirt:     "dirt",
	SurfaceWater:    "water",
	SurfaceMetal:    "metal",
	SurfaceWood:     "wood",
	SurfaceGrass:    "grass",
	SurfaceGlass:    "glass",
	SurfaceFlesh:    "flesh",
	SurfaceEnergy:   "energy",
}

func (s SurfaceType) String() string {
	if int(s) < len(surfaceNames) {
		return surfaceNames[s]
	}
	return "unknown"
}

// ParseSurfaceType は設定ファイル上の名前をSurfaceTypeに変換します。
func ParseSurfaceType(name string) (SurfaceType, bool) {
	for i, n := range surfaceNames {
		if n == name {
			return SurfaceType(i), true
		}
	}
	return SurfaceUnknown, false
}
