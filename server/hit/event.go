// Package hit はキャラクターごとに1つ持つ被弾レコードと、その複製を扱います。
package hit

import "arena/server/domain"

// DefaultDamageType はレコードに既定のダメージ種別が与えられなかったときに使う値です。
const DefaultDamageType = "default"

// DamageEvent は汎用・点・範囲のいずれか1つのダメージ形状です。
// 実装はこのパッケージ内の3型に限られます。
type DamageEvent interface {
	Shape() domain.DamageShape
	Type() string
	withType(damageType string) DamageEvent
}

// GenericDamage は形状を持たないダメージです。
type GenericDamage struct {
	DamageType string
}

// PointDamage は1点への着弾によるダメージです。
type PointDamage struct {
	DamageType string
	Location   domain.Vec3
	Direction  domain.Vec3
	Surface    domain.SurfaceType
}

// RadialDamage は爆発などの範囲ダメージです。
type RadialDamage struct {
	DamageType string
	Origin     domain.Vec3
	Radius     float64
}

func (GenericDamage) Shape() domain.DamageShape { return domain.ShapeGeneric }
func (PointDamage) Shape() domain.DamageShape   { return domain.ShapePoint }
func (RadialDamage) Shape() domain.DamageShape  { return domain.ShapeRadial }

func (e GenericDamage) Type() string { return e.DamageType }
func (e PointDamage) Type() string   { return e.DamageType }
func (e RadialDamage) Type() string  { return e.DamageType }

func (e GenericDamage) withType(t string) DamageEvent { e.DamageType = t; return e }
func (e PointDamage) withType(t string) DamageEvent   { e.DamageType = t; return e }
func (e RadialDamage) withType(t string) DamageEvent  { e.DamageType = t; return e }

// EventFromPayload は受信したヒットレコードから形状を復元します。
func EventFromPayload(p *domain.HitRecordPayload) DamageEvent {
	switch p.Shape {
	case domain.ShapePoint:
		return PointDamage{
			DamageType: p.DamageType,
			Location:   p.Point.Location,
			Direction:  p.Point.Direction,
			Surface:    p.Point.Surface,
		}
	case domain.ShapeRadial:
		return RadialDamage{
			DamageType: p.DamageType,
			Origin:     p.Radial.Origin,
			Radius:     float64(p.Radial.Radius),
		}
	default:
		return GenericDamage{DamageType: p.DamageType}
	}
}
