package hit

import (
	"math"

	"arena/server/domain"
)

// Registry は弱い参照 (EntityID) の生存確認に使うアクターレジストリです。
type Registry interface {
	Exists(id domain.EntityID) bool
}

// Record はキャラクター1体分の被弾レコードです。スポーン時に作られ、
// 確定した被弾のたびに上書きされ、キャラクターと共に破棄されます。
//
// dirtyは書き込みのたびに必ず進みます。直前と同じ内容の被弾でも複製層が
// 変更として扱えるようにするためで、値そのものに意味はありません。
type Record struct {
	victim      domain.EntityID
	defaultType string

	event        DamageEvent
	instigator   domain.EntityID
	causer       domain.EntityID
	actualDamage float32
	lethal       bool
	dirty        uint8
	shot         uint16
}

// NewRecord は被弾レコードを生成します。defaultTypeが空ならDefaultDamageTypeを使います。
func NewRecord(victim domain.EntityID, defaultType string) *Record {
	if defaultType == "" {
		defaultType = DefaultDamageType
	}
	return &Record{victim: victim, defaultType: defaultType}
}

func (r *Record) Victim() domain.EntityID { return r.victim }
func (r *Record) ActualDamage() float32   { return r.actualDamage }
func (r *Record) Lethal() bool            { return r.lethal }
func (r *Record) Dirty() uint8            { return r.dirty }
func (r *Record) Shot() uint16            { return r.shot }
func (r *Record) DefaultType() string     { return r.defaultType }

// Shape は現在保持しているダメージ形状です。
func (r *Record) Shape() domain.DamageShape {
	if r.event == nil {
		return domain.ShapeGeneric
	}
	return r.event.Shape()
}

// SetDamageEvent は被弾1件を書き込みます。イベント自身の種別タグが空なら
// damageType、それも空ならレコードの既定種別で埋めます。dirtyは無条件に進みます。
// 原因の射撃seqは消えるので、射撃由来の被弾ならこの後にSetShotを呼びます。
func (r *Record) SetDamageEvent(ev DamageEvent, instigator, causer domain.EntityID, damageType string, amount float64, lethal bool) {
	if ev == nil {
		ev = GenericDamage{}
	}
	if ev.Type() == "" {
		ev = ev.withType(damageType)
	}
	if ev.Type() == "" {
		ev = ev.withType(r.defaultType)
	}
	if amount < 0 || math.IsNaN(amount) {
		amount = 0
	}
	if amount > math.MaxFloat32 {
		amount = math.MaxFloat32
	}

	r.event = ev
	r.instigator = instigator
	r.causer = causer
	r.actualDamage = float32(amount)
	r.lethal = lethal
	r.shot = 0
	r.dirty++
}

// SetShot は直前に書き込んだ被弾の原因となった射撃要求のseqを記録します。
// 発砲側はこれで自分の予測と確定を突き合わせます。
func (r *Record) SetShot(seq uint16) { r.shot = seq }

// GetDamageEvent は現在の形状を返します。種別タグが未設定なら既定種別で埋めます。
// 埋めるのは最初の1回だけで、以降の読み出しは状態を変えません。
func (r *Record) GetDamageEvent() DamageEvent {
	if r.event == nil {
		r.event = GenericDamage{}
	}
	if r.event.Type() == "" {
		r.event = r.event.withType(r.defaultType)
	}
	return r.event
}

// InstigatorID は攻撃者の参照をそのまま返します。既に存在しない可能性があります。
func (r *Record) InstigatorID() domain.EntityID { return r.instigator }

// CauserID はダメージを与えた実体 (弾丸など) の参照をそのまま返します。
func (r *Record) CauserID() domain.EntityID { return r.causer }

// Instigator はレジストリで生存確認した攻撃者を返します。
// 参照が空か消えていればfalseで、呼び出し側は「不明な攻撃者」として扱います。
func (r *Record) Instigator(reg Registry) (domain.EntityID, bool) {
	return resolve(reg, r.instigator)
}

// Causer はレジストリで生存確認した原因実体を返します。
func (r *Record) Causer(reg Registry) (domain.EntityID, bool) {
	return resolve(reg, r.causer)
}

func resolve(reg Registry, id domain.EntityID) (domain.EntityID, bool) {
	if id.IsEmpty() || reg == nil || !reg.Exists(id) {
		return domain.EntityID{}, false
	}
	return id, true
}

// Payload はワイヤに載せる形に変換します。dirtyは必ず含めます。
func (r *Record) Payload() domain.HitRecordPayload {
	ev := r.GetDamageEvent()
	p := domain.HitRecordPayload{
		Victim:       r.victim,
		ActualDamage: r.actualDamage,
		DamageType:   ev.Type(),
		Instigator:   r.instigator,
		Causer:       r.causer,
		Shape:        ev.Shape(),
		Lethal:       r.lethal,
		Dirty:        r.dirty,
		Shot:         r.shot,
	}
	switch e := ev.(type) {
	case PointDamage:
		p.Point = domain.PointPayload{Location: e.Location, Direction: e.Direction, Surface: e.Surface}
	case RadialDamage:
		p.Radial = domain.RadialPayload{Origin: e.Origin, Radius: float32(e.Radius)}
	}
	return p
}
