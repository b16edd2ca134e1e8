package weapon

import (
	"errors"
	"time"
)

var (
	ErrOutOfAmmo  = errors.New("weapon: out of ammo")
	ErrOnCooldown = errors.New("weapon: on cooldown")
	ErrNotFiring  = errors.New("weapon: not firing")
)

// State は射撃モードの状態です。
type State uint8

const (
	StateIdle State = iota
	StateFiring
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFiring:
		return "firing"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// EventKind は演出レイヤーへ通知するイベントの種類です。
type EventKind uint8

const (
	EventFired EventKind = iota + 1
	EventOutOfAmmo
)

// EventHandler は射撃イベントの受け口です。
type EventHandler func(kind EventKind, at time.Time)

// Option はWeaponの生成オプションです。
type Option func(*Weapon)

// WithEventHandler はマズルフラッシュや弾切れの通知先を設定します。
func WithEventHandler(h EventHandler) Option {
	return func(w *Weapon) { w.onEvent = h }
}

// WithCooldownSlack はオーソリティ側でクールダウン判定を緩める幅を設定します。
// ネットワークの揺らぎで正規の連射が弾かれないようにするためのものです。
func WithCooldownSlack(d time.Duration) Option {
	return func(w *Weapon) { w.slack = d }
}

// Weapon は装備中の武器1つ分の実行時状態と射撃ゲートです。
// 単一のシミュレーションループからのみ操作されます。
type Weapon struct {
	cfg    FireConfig
	spread Spread

	state          State
	ammo           int
	triggerHeld    bool
	targeting      bool
	shotsThisBurst int

	lastFire    time.Time
	nextAllowed time.Time
	decayedAt   time.Time // Idle中の減衰をどこまで適用したか

	slack   time.Duration
	onEvent EventHandler
}

func NewWeapon(cfg FireConfig, opts ...Option) *Weapon {
	w := &Weapon{
		cfg:    cfg,
		spread: NewSpread(cfg),
		ammo:   cfg.MagazineSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Weapon) Config() FireConfig     { return w.cfg }
func (w *Weapon) State() State           { return w.state }
func (w *Weapon) Ammo() int              { return w.ammo }
func (w *Weapon) TriggerHeld() bool      { return w.triggerHeld }
func (w *Weapon) Targeting() bool        { return w.targeting }
func (w *Weapon) ShotsThisBurst() int    { return w.shotsThisBurst }
func (w *Weapon) LastFire() time.Time    { return w.lastFire }
func (w *Weapon) NextAllowed() time.Time { return w.nextAllowed }

// CurrentSpread は現在の拡散半角 (度) です。
func (w *Weapon) CurrentSpread() float64 {
	return w.spread.Current(w.targeting)
}

// SetTargeting は精密照準モードを切り替えます。
func (w *Weapon) SetTargeting(on bool) { w.targeting = on }

// Reload は弾倉を補充します。
func (w *Weapon) Reload(ammo int) {
	if w.cfg.MagazineSize > 0 && ammo > w.cfg.MagazineSize {
		ammo = w.cfg.MagazineSize
	}
	if ammo < 0 {
		ammo = 0
	}
	w.ammo = ammo
}

// StartFire はトリガーを引きます。trueが返った場合、呼び出し側は1発分を解決してから
// CompleteShotを呼びます。クールダウン中の拒否では状態を変えず、弾切れではトリガーを離した扱いにします。
func (w *Weapon) StartFire(now time.Time) (bool, error) {
	if w.state != StateFiring && w.ammo <= 0 {
		// クールダウン中でも弾切れは即座に知らせる
		w.triggerHeld = false
		w.emit(EventOutOfAmmo, now)
		return false, ErrOutOfAmmo
	}
	switch w.state {
	case StateFiring:
		// 連射中の再トリガーは合法
		w.triggerHeld = true
		return true, nil
	case StateCooldown:
		if now.Before(w.nextAllowed) {
			w.triggerHeld = true
			return false, nil
		}
		w.enterIdle(w.nextAllowed)
	}

	w.decay(now)
	if w.ammo <= 0 {
		w.emit(EventOutOfAmmo, now)
		return false, ErrOutOfAmmo
	}
	if now.Before(w.nextAllowed) {
		return false, ErrOnCooldown
	}
	w.triggerHeld = true
	w.state = StateFiring
	return true, nil
}

// CompleteShot は解決済みの1発を確定し、Cooldownへ遷移します。
// 次に撃てる時刻は前回の予定時刻から数えるため、早撃ちの猶予を重ねても
// 長期の発射レートはFireRateを超えません。
func (w *Weapon) CompleteShot(now time.Time) error {
	if w.state != StateFiring {
		return ErrNotFiring
	}
	w.ammo--
	w.spread.OnShot()
	w.shotsThisBurst++
	w.lastFire = now
	base := now
	if w.nextAllowed.After(now) {
		base = w.nextAllowed
	}
	w.nextAllowed = base.Add(w.cfg.FireInterval())
	w.state = StateCooldown
	w.emit(EventFired, now)
	return nil
}

// Update は時間を進めます。オート武器でトリガーが引かれたままクールダウンが明けた場合は
// trueを返し、呼び出し側は次の1発を解決します。
func (w *Weapon) Update(now time.Time) bool {
	switch w.state {
	case StateCooldown:
		if now.Before(w.nextAllowed) {
			return false
		}
		if w.cfg.Automatic && w.triggerHeld {
			if w.ammo > 0 {
				w.state = StateFiring
				return true
			}
			w.emit(EventOutOfAmmo, now)
			w.triggerHeld = false
		}
		w.enterIdle(w.nextAllowed)
		w.decay(now)
	case StateIdle:
		w.decay(now)
	}
	return false
}

// StopFire はトリガーを離します。クールダウン中ならIdleへ戻りますが、
// 次に撃てる時刻は保持するため停止と再開で連射制限を回避できません。
func (w *Weapon) StopFire(now time.Time) {
	w.triggerHeld = false
	if w.state == StateCooldown {
		w.enterIdle(now)
	}
}

// Fire はオーソリティ側の単発射撃です。ゲートを通過した場合のみresolveを呼び、
// その後1発分を確定します。resolveには発砲時点の拡散半角が渡されます。
// resolveがエラーを返した場合は弾も発射時刻も消費せず、そのエラーを返します。
func (w *Weapon) Fire(now time.Time, resolve func(spread float64) error) error {
	w.Update(now)
	gate := now.Add(w.slack)
	if w.state == StateCooldown {
		if gate.Before(w.nextAllowed) {
			return ErrOnCooldown
		}
		w.enterIdle(now)
	}
	if w.ammo <= 0 {
		w.emit(EventOutOfAmmo, now)
		return ErrOutOfAmmo
	}
	if gate.Before(w.nextAllowed) {
		return ErrOnCooldown
	}
	w.state = StateFiring
	if resolve != nil {
		if err := resolve(w.CurrentSpread()); err != nil {
			w.state = StateIdle
			return err
		}
	}
	return w.CompleteShot(now)
}

func (w *Weapon) enterIdle(at time.Time) {
	w.state = StateIdle
	w.shotsThisBurst = 0
	w.decayedAt = at
}

func (w *Weapon) decay(now time.Time) {
	if w.decayedAt.IsZero() || now.Before(w.decayedAt) {
		return
	}
	w.spread.Decay(now.Sub(w.decayedAt))
	w.decayedAt = now
}

func (w *Weapon) emit(kind EventKind, at time.Time) {
	if w.onEvent != nil {
		w.onEvent(kind, at)
	}
}
