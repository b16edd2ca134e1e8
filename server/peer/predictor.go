// Package peer は発砲側クライアントの予測表示と、権威からの結果による突き合わせを扱います。
// 予測はあくまで演出で、ダメージはこちら側では一切適用しません。
package peer

import (
	"errors"
	"time"

	"arena/server/domain"
	"arena/server/hit"
	"arena/server/weapon"
)

// DefaultPredictionDeadline は権威の確認を待つ時間です。過ぎた予測は消えます。
const DefaultPredictionDeadline = 500 * time.Millisecond

var ErrNotHitRecord = errors.New("peer: not a hit record")

// EventKind は演出レイヤーへ通知する予測イベントの種類です。
type EventKind uint8

const (
	EventPredictedShot EventKind = iota + 1
	EventPredictedImpact
	EventConfirmed
	EventFaded
	EventOutOfAmmo
	EventRemoteHit
)

// Event は予測イベント1件です。
type Event struct {
	Kind     EventKind
	Seq      uint16
	At       time.Time
	Location domain.Vec3
	Surface  domain.SurfaceType
	Record   *domain.HitRecordPayload // EventConfirmed, EventRemoteHitのとき有効
}

// Prediction は権威の確認を待っている1回分の発砲です。
type Prediction struct {
	Seq        uint16
	IssuedAt   time.Time
	Origin     domain.Vec3
	Directions []domain.Vec3

	confirmations int
}

// Confirmations はこの発砲に対して確認された被弾の数です。
func (p *Prediction) Confirmations() int { return p.confirmations }

// Option はPredictorの生成オプションです。
type Option func(*Predictor)

// WithTracer は予測着弾の演出に使うローカルのレイクエリを設定します。
func WithTracer(t weapon.Tracer) Option {
	return func(p *Predictor) { p.tracer = t }
}

// WithDeadline は予測の待ち時間を設定します。
func WithDeadline(d time.Duration) Option {
	return func(p *Predictor) { p.deadline = d }
}

// WithEventHandler は予測イベントの通知先を設定します。
func WithEventHandler(h func(Event)) Option {
	return func(p *Predictor) { p.onEvent = h }
}

// Predictor は自分の武器を先行して動かし、fire-requestを組み立てます。
// 拡散の乱数はセッションと武器名から決まるため、権威は同じペレット方向を再現して検証できます。
// 単一のクライアントループからのみ操作されます。
type Predictor struct {
	session domain.SessionID
	self    domain.EntityID
	weapon  *weapon.Weapon

	tracer   weapon.Tracer
	deadline time.Duration
	onEvent  func(Event)
	seed     uint64

	shotSeq  uint16
	msgSeq   uint16
	pending  []*Prediction
	observer *hit.Observer
}

// NewPredictor はセッションが操作するキャラクターの予測器を生成します。
func NewPredictor(session domain.SessionID, cfg weapon.FireConfig, opts ...Option) *Predictor {
	p := &Predictor{
		session:  session,
		self:     session.EntityID(),
		deadline: DefaultPredictionDeadline,
		observer: hit.NewObserver(),
		seed:     weapon.ShotSeed(session, cfg.Name),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.weapon = weapon.NewWeapon(cfg, weapon.WithEventHandler(p.onWeaponEvent))
	return p
}

// Weapon はローカルの武器状態です。
func (p *Predictor) Weapon() *weapon.Weapon { return p.weapon }

// Pending は確認待ちの予測数です。
func (p *Predictor) Pending() int { return len(p.pending) }

// Trigger はトリガーを引きます。撃てた場合はfire-requestを返します。
// クールダウン中にトリガーを引いた場合はnilを返し、Updateで撃ちます。
func (p *Predictor) Trigger(now time.Time, origin, aim domain.Vec3) (*domain.FireRequestPayload, error) {
	permit, err := p.weapon.StartFire(now)
	if err != nil {
		return nil, err
	}
	if !permit {
		return nil, nil
	}
	return p.shoot(now, origin, aim)
}

// Update は時間を進めます。オート武器の連射で撃った場合はfire-requestを返します。
func (p *Predictor) Update(now time.Time, origin, aim domain.Vec3) (*domain.FireRequestPayload, error) {
	if !p.weapon.Update(now) {
		return nil, nil
	}
	return p.shoot(now, origin, aim)
}

// Release はトリガーを離します。
func (p *Predictor) Release(now time.Time) {
	p.weapon.StopFire(now)
}

// SetTargeting は精密照準モードを切り替えます。
func (p *Predictor) SetTargeting(on bool) {
	p.weapon.SetTargeting(on)
}

// Message はfire-requestを送信用のメッセージにします。
func (p *Predictor) Message(req *domain.FireRequestPayload) []byte {
	p.msgSeq++
	return domain.EncodeMessage(p.session, p.msgSeq, domain.DataTypeFire, uint8(domain.FireSubTypeRequest), req.Encode())
}

func (p *Predictor) shoot(now time.Time, origin, aim domain.Vec3) (*domain.FireRequestPayload, error) {
	cfg := p.weapon.Config()
	spread := p.weapon.CurrentSpread()
	if n, ok := aim.Normalize(); ok {
		aim = n
	}
	p.shotSeq++
	rng := weapon.ShotRand(p.seed, p.shotSeq)

	pred := &Prediction{
		Seq:        p.shotSeq,
		IssuedAt:   now,
		Origin:     origin,
		Directions: make([]domain.Vec3, 0, cfg.ShotsPerTrigger),
	}
	for i := 0; i < cfg.ShotsPerTrigger; i++ {
		pred.Directions = append(pred.Directions, weapon.Perturb(aim, spread, rng))
	}
	if err := p.weapon.CompleteShot(now); err != nil {
		return nil, err
	}
	p.pending = append(p.pending, pred)

	p.emit(Event{Kind: EventPredictedShot, Seq: pred.Seq, At: now, Location: origin})
	if p.tracer != nil && cfg.Kind == weapon.KindInstant {
		maxRange := cfg.MaxRange
		if maxRange <= 0 {
			maxRange = weapon.DefaultMaxRange
		}
		for _, dir := range pred.Directions {
			if th, ok := p.tracer.Trace(origin, dir, maxRange, p.self); ok {
				p.emit(Event{Kind: EventPredictedImpact, Seq: pred.Seq, At: now, Location: th.Location, Surface: th.Surface})
			}
		}
	}

	return &domain.FireRequestPayload{
		Seq:             pred.Seq,
		ClientTimestamp: uint32(now.UnixMilli()),
		Origin:          origin,
		Aim:             aim,
		Directions:      pred.Directions,
	}, nil
}

// HandleMessage は権威から届いたメッセージのうち被弾レコードを取り込みます。
func (p *Predictor) HandleMessage(data []byte, now time.Time) error {
	_, ph, payload, err := domain.SplitMessage(data)
	if err != nil {
		return err
	}
	if ph.DataType != domain.DataTypeHit || domain.HitSubType(ph.SubType) != domain.HitSubTypeRecord {
		return ErrNotHitRecord
	}
	rec, err := domain.ParseHitRecord(payload)
	if err != nil {
		return err
	}
	p.Observe(rec, now)
	return nil
}

// Observe は複製された被弾レコードを取り込みます。dirtyが変化していなければ何もしません。
// 自分が加害者の被弾は、レコードに載った射撃seqと同じ予測の確認として扱います。
// 爆発は1発で複数の被弾を生むので、確認数に上限はありません。
func (p *Predictor) Observe(rec *domain.HitRecordPayload, now time.Time) (isNew bool, confirmed *Prediction) {
	if !p.observer.Observe(rec) {
		return false, nil
	}
	if rec.Instigator != p.self {
		p.emit(Event{Kind: EventRemoteHit, At: now, Record: rec})
		return true, nil
	}
	for _, pred := range p.pending {
		if pred.Seq == rec.Shot {
			pred.confirmations++
			confirmed = pred
			break
		}
	}
	ev := Event{Kind: EventConfirmed, At: now, Record: rec}
	if confirmed != nil {
		ev.Seq = confirmed.Seq
	}
	p.emit(ev)
	return true, confirmed
}

// Expire は待ち時間を過ぎた予測を取り除きます。一度も確認されなかった予測は
// 演出を消すだけで、巻き戻しは行いません。消えた予測を返します。
func (p *Predictor) Expire(now time.Time) []*Prediction {
	var faded []*Prediction
	kept := p.pending[:0]
	for _, pred := range p.pending {
		if now.Sub(pred.IssuedAt) < p.deadline {
			kept = append(kept, pred)
			continue
		}
		if pred.confirmations == 0 {
			faded = append(faded, pred)
			p.emit(Event{Kind: EventFaded, Seq: pred.Seq, At: now, Location: pred.Origin})
		}
	}
	clear(p.pending[len(kept):])
	p.pending = kept
	return faded
}

// Forget はキャラクターの破棄に合わせて追跡をやめます。
func (p *Predictor) Forget(victim domain.EntityID) {
	p.observer.Forget(victim)
}

func (p *Predictor) onWeaponEvent(kind weapon.EventKind, at time.Time) {
	if kind == weapon.EventOutOfAmmo {
		p.emit(Event{Kind: EventOutOfAmmo, At: at})
	}
}

func (p *Predictor) emit(ev Event) {
	if p.onEvent != nil {
		p.onEvent(ev)
	}
}
