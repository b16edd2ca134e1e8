package peer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"arena/server/application"
	"arena/server/domain"
	"arena/server/telemetry"
	"arena/server/weapon"
	"arena/server/weapon/mocks"
)

var t0 = time.Unix(1000, 0)

type eventLog struct {
	events []Event
}

func (l *eventLog) handle(ev Event) { l.events = append(l.events, ev) }

func (l *eventLog) kinds() []EventKind {
	out := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func pistol() weapon.FireConfig {
	cfg, _ := weapon.DefaultCatalog().Get("pistol")
	return cfg
}

func TestPredictor_TriggerBuildsRequest(t *testing.T) {
	log := &eventLog{}
	cfg := weapon.DefaultFireConfig()
	p := NewPredictor(domain.NewSessionID(), cfg, WithEventHandler(log.handle))
	aim := domain.Vec3{X: 1}

	req, err := p.Trigger(t0, domain.Vec3{}, aim)
	require.NoError(t, err)
	require.NotNil(t, req)

	assert.Equal(t, uint16(1), req.Seq)
	assert.Equal(t, aim, req.Aim)
	require.Len(t, req.Directions, cfg.ShotsPerTrigger)
	for _, dir := range req.Directions {
		assert.True(t, dir.IsUnit(weapon.DirectionEpsilon))
		assert.LessOrEqual(t, weapon.AngleBetween(dir, aim), cfg.BaseSpread+1e-4)
	}
	assert.Equal(t, cfg.MagazineSize-1, p.Weapon().Ammo())
	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, []EventKind{EventPredictedShot}, log.kinds())
}

func TestPredictor_DirectionsFollowSessionSeed(t *testing.T) {
	session := domain.NewSessionID()
	a := NewPredictor(session, weapon.DefaultFireConfig())
	b := NewPredictor(session, weapon.DefaultFireConfig())

	ra, err := a.Trigger(t0, domain.Vec3{}, domain.Vec3{Y: 2})
	require.NoError(t, err)
	rb, err := b.Trigger(t0, domain.Vec3{}, domain.Vec3{Y: 2})
	require.NoError(t, err)
	assert.Equal(t, ra.Directions, rb.Directions)
	assert.Equal(t, domain.Vec3{Y: 1}, ra.Aim)

	// 権威はセッションと武器名だけから同じ方向を再現できる
	rng := weapon.ShotRand(weapon.ShotSeed(session, "rifle"), ra.Seq)
	want := weapon.Perturb(ra.Aim, weapon.DefaultFireConfig().BaseSpread, rng)
	assert.Equal(t, want, ra.Directions[0])
}

func TestPredictor_AutomaticRefireThroughUpdate(t *testing.T) {
	cfg := weapon.DefaultFireConfig()
	p := NewPredictor(domain.NewSessionID(), cfg)

	first, err := p.Trigger(t0, domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)
	require.NotNil(t, first)

	held, err := p.Trigger(t0.Add(10*time.Millisecond), domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)
	assert.Nil(t, held, "trigger during cooldown must not fire")

	none, err := p.Update(t0.Add(50*time.Millisecond), domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)
	assert.Nil(t, none)

	next, err := p.Update(t0.Add(cfg.FireInterval()), domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, uint16(2), next.Seq)

	p.Release(t0.Add(cfg.FireInterval()))
	stopped, err := p.Update(t0.Add(2*cfg.FireInterval()), domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)
	assert.Nil(t, stopped, "released trigger must not refire")
}

func TestPredictor_OutOfAmmo(t *testing.T) {
	log := &eventLog{}
	p := NewPredictor(domain.NewSessionID(), weapon.DefaultFireConfig(), WithEventHandler(log.handle))
	p.Weapon().Reload(0)

	req, err := p.Trigger(t0, domain.Vec3{}, domain.Vec3{X: 1})

	assert.ErrorIs(t, err, weapon.ErrOutOfAmmo)
	assert.Nil(t, req)
	assert.Zero(t, p.Pending())
	assert.Equal(t, []EventKind{EventOutOfAmmo}, log.kinds())
}

func TestPredictor_PredictedImpactUsesLocalTracer(t *testing.T) {
	ctrl := gomock.NewController(t)
	tracer := mocks.NewMockTracer(ctrl)
	session := domain.NewSessionID()
	cfg := pistol()
	log := &eventLog{}

	tracer.EXPECT().
		Trace(domain.Vec3{}, gomock.Any(), cfg.MaxRange, session.EntityID()).
		Return(weapon.TraceHit{Location: domain.Vec3{X: 300}, Surface: domain.SurfaceMetal}, true).
		Times(1)

	p := NewPredictor(session, cfg, WithTracer(tracer), WithEventHandler(log.handle))
	_, err := p.Trigger(t0, domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)

	require.Equal(t, []EventKind{EventPredictedShot, EventPredictedImpact}, log.kinds())
	assert.Equal(t, domain.SurfaceMetal, log.events[1].Surface)
	assert.Equal(t, domain.Vec3{X: 300}, log.events[1].Location)
}

func TestPredictor_ProjectileHasNoPredictedImpact(t *testing.T) {
	ctrl := gomock.NewController(t)
	tracer := mocks.NewMockTracer(ctrl) // 呼ばれたら失敗する

	p := NewPredictor(domain.NewSessionID(), weapon.DefaultFireConfig(), WithTracer(tracer))
	_, err := p.Trigger(t0, domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)
}

func TestPredictor_ObserveConfirmsOwnHit(t *testing.T) {
	log := &eventLog{}
	session := domain.NewSessionID()
	p := NewPredictor(session, pistol(), WithEventHandler(log.handle))
	_, err := p.Trigger(t0, domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)

	rec := &domain.HitRecordPayload{Victim: domain.NewEntityID(), Instigator: session.EntityID(), ActualDamage: 100, Dirty: 1, Shot: 1}
	isNew, confirmed := p.Observe(rec, t0.Add(80*time.Millisecond))
	assert.True(t, isNew)
	require.NotNil(t, confirmed)
	assert.Equal(t, uint16(1), confirmed.Seq)
	assert.Equal(t, 1, confirmed.Confirmations())

	// 同じdirtyの再送は無視する
	isNew, confirmed = p.Observe(rec, t0.Add(90*time.Millisecond))
	assert.False(t, isNew)
	assert.Nil(t, confirmed)

	faded := p.Expire(t0.Add(DefaultPredictionDeadline))
	assert.Empty(t, faded, "confirmed predictions do not fade")
	assert.Zero(t, p.Pending())
	assert.Equal(t, []EventKind{EventPredictedShot, EventConfirmed}, log.kinds())
}

func TestPredictor_ObserveCreditsShotBySeq(t *testing.T) {
	session := domain.NewSessionID()
	cfg := pistol()
	p := NewPredictor(session, cfg)
	first, err := p.Trigger(t0, domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)
	p.Release(t0)
	second, err := p.Trigger(t0.Add(cfg.FireInterval()), domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)
	require.NotNil(t, second)

	// 2発目の爆発が3体に当たっても、1発目の予測は確認されない
	for i := 0; i < 3; i++ {
		rec := &domain.HitRecordPayload{Victim: domain.NewEntityID(), Instigator: session.EntityID(), Dirty: 1, Shot: second.Seq}
		_, confirmed := p.Observe(rec, t0.Add(cfg.FireInterval()+50*time.Millisecond))
		require.NotNil(t, confirmed)
		assert.Equal(t, second.Seq, confirmed.Seq)
	}

	faded := p.Expire(t0.Add(cfg.FireInterval() + DefaultPredictionDeadline))
	require.Len(t, faded, 1)
	assert.Equal(t, first.Seq, faded[0].Seq)
}

func TestPredictor_ExpireFadesUnconfirmed(t *testing.T) {
	log := &eventLog{}
	p := NewPredictor(domain.NewSessionID(), pistol(), WithEventHandler(log.handle), WithDeadline(200*time.Millisecond))
	_, err := p.Trigger(t0, domain.Vec3{}, domain.Vec3{X: 1})
	require.NoError(t, err)

	assert.Empty(t, p.Expire(t0.Add(199*time.Millisecond)))
	assert.Equal(t, 1, p.Pending())

	faded := p.Expire(t0.Add(200 * time.Millisecond))
	require.Len(t, faded, 1)
	assert.Equal(t, uint16(1), faded[0].Seq)
	assert.Zero(t, p.Pending())
	assert.Equal(t, EventFaded, log.events[len(log.events)-1].Kind)
	// ダメージはローカルに適用しないので武器状態は巻き戻らない
	assert.Equal(t, pistol().MagazineSize-1, p.Weapon().Ammo())
}

func TestPredictor_RemoteHit(t *testing.T) {
	log := &eventLog{}
	p := NewPredictor(domain.NewSessionID(), pistol(), WithEventHandler(log.handle))

	rec := &domain.HitRecordPayload{Victim: domain.NewEntityID(), Instigator: domain.NewEntityID(), Dirty: 3}
	isNew, confirmed := p.Observe(rec, t0)

	assert.True(t, isNew)
	assert.Nil(t, confirmed)
	require.Len(t, log.events, 1)
	assert.Equal(t, EventRemoteHit, log.events[0].Kind)
	assert.Equal(t, rec, log.events[0].Record)
}

func TestPredictor_HandleMessageRejectsOtherTypes(t *testing.T) {
	p := NewPredictor(domain.NewSessionID(), pistol())
	data := domain.EncodeMessage(domain.SessionID{}, 1, domain.DataTypeEffect, uint8(domain.EffectSubTypeImpact),
		(&domain.EffectPayload{}).Encode())

	assert.ErrorIs(t, p.HandleMessage(data, t0), ErrNotHitRecord)
}

func TestPredictor_RoundTripWithAuthority(t *testing.T) {
	ctx := context.Background()
	cfg := pistol()
	field := application.NewField(application.NewArena(5000), 40, 100, 3*time.Second)
	authority, err := application.NewAuthority(field, telemetry.Noop(), application.SystemClock{}, application.SimpleValidator{})
	require.NoError(t, err)

	session := domain.NewSessionID()
	shooter := field.Spawn(session.EntityID(), application.KindPlayer, weapon.NewWeapon(cfg))
	victim := field.Spawn(domain.NewEntityID(), application.KindPlayer, weapon.NewWeapon(cfg))
	shooter.Position = domain.Vec3{}
	shooter.Aim = domain.Vec3{X: 1}
	victim.Position = domain.Vec3{X: 1000}

	p := NewPredictor(session, cfg)
	now := time.Now()
	req, err := p.Trigger(now, shooter.Position, domain.Vec3{X: 1})
	require.NoError(t, err)

	// 送信メッセージとして往復させてから権威に渡す
	_, _, payload, err := domain.SplitMessage(p.Message(req))
	require.NoError(t, err)
	wire, err := domain.ParseFireRequest(payload)
	require.NoError(t, err)
	require.NoError(t, authority.HandleFire(ctx, session, wire))

	var confirmed int
	for _, out := range authority.Drain() {
		_, ph, body, err := domain.SplitMessage(out.Data)
		require.NoError(t, err)
		if ph.DataType != domain.DataTypeHit {
			continue
		}
		rec, err := domain.ParseHitRecord(body)
		require.NoError(t, err)
		if _, pred := p.Observe(rec, now); pred != nil {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, float32(100), victim.Record.ActualDamage())
}
