package domain

import (
	"errors"
	"math"
)

const Vec3Size = 12 // 3 * float32

// Vec3 は3次元ベクトルです。計算はfloat64、ワイヤ上はfloat32で表現します。
type Vec3 struct {
	X, Y, Z float64
}

var ErrInvalidVec3Data = errors.New("invalid vec3 data: expected 12 bytes")

func (v Vec3) Add(o Vec3) Vec3       { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3       { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3  { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64    { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Len() float64          { return math.Sqrt(v.Dot(v)) }
func (v Vec3) Dist(o Vec3) float64   { return v.Sub(o).Len() }
func (v Vec3) DistSq(o Vec3) float64 { d := v.Sub(o); return d.Dot(d) }
func (v Vec3) Neg() Vec3             { return Vec3{-v.X, -v.Y, -v.Z} }
func (v Vec3) IsZero() bool          { return v.X == 0 && v.Y == 0 && v.Z == 0 }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Normalize は単位ベクトルを返します。長さがほぼ0の場合はokがfalseになります。
func (v Vec3) Normalize() (Vec3, bool) {
	l := v.Len()
	if l < 1e-9 || math.IsNaN(l) || math.IsInf(l, 0) {
		return Vec3{}, false
	}
	return v.Scale(1 / l), true
}

// IsUnit は長さが1からeps以内かどうかを返します。
func (v Vec3) IsUnit(eps float64) bool {
	return math.Abs(v.Len()-1) <= eps
}

// ParseVec3 はバイト列からVec3をパースする
func ParseVec3(data []byte) (Vec3, error) {
	if len(data) < Vec3Size {
		return Vec3{}, ErrInvalidVec3Data
	}
	return Vec3{
		X: float64(math.Float32frombits(byteOrder.Uint32(data[0:4]))),
		Y: float64(math.Float32frombits(byteOrder.Uint32(data[4:8]))),
		Z: float64(math.Float32frombits(byteOrder.Uint32(data[8:12]))),
	}, nil
}

// Encode はVec3をバイト列にエンコードする
func (v Vec3) Encode() []byte {
	buf := make([]byte, Vec3Size)
	v.put(buf)
	return buf
}

func (v Vec3) put(buf []byte) {
	byteOrder.PutUint32(buf[0:4], math.Float32bits(float32(v.X)))
	byteOrder.PutUint32(buf[4:8], math.Float32bits(float32(v.Y)))
	byteOrder.PutUint32(buf[8:12], math.Float32bits(float32(v.Z)))
}
