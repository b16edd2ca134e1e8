package weapon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Unix(1_700_000_000, 0)

func scenarioConfig() FireConfig {
	cfg := DefaultFireConfig()
	cfg.BaseSpread = 5
	cfg.SpreadIncrement = 1
	cfg.MaxSpread = 10
	cfg.FireRate = 10
	cfg.Automatic = true
	return cfg
}

func TestWeapon_ContinuousFireSpreadSequence(t *testing.T) {
	w := NewWeapon(scenarioConfig())
	interval := w.Config().FireInterval()
	require.Equal(t, 100*time.Millisecond, interval)

	spreads := []float64{w.CurrentSpread()}
	now := t0
	ok, err := w.StartFire(now)
	require.NoError(t, err)
	require.True(t, ok)

	for shot := 0; shot < 6; shot++ {
		require.NoError(t, w.CompleteShot(now))
		spreads = append(spreads, w.CurrentSpread())
		now = now.Add(interval)
		if shot < 5 {
			require.True(t, w.Update(now), "automatic weapon should refire at shot %d", shot+1)
			require.Equal(t, StateFiring, w.State())
		}
	}

	assert.InDeltaSlice(t, []float64{5, 6, 7, 8, 9, 10, 10}, spreads, 1e-9)
	assert.Equal(t, 24, w.Ammo())
	assert.Equal(t, 6, w.ShotsThisBurst())
}

func TestWeapon_StartFireOutOfAmmo(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MagazineSize = 0

	var events []EventKind
	w := NewWeapon(cfg, WithEventHandler(func(kind EventKind, _ time.Time) {
		events = append(events, kind)
	}))

	ok, err := w.StartFire(t0)
	assert.ErrorIs(t, err, ErrOutOfAmmo)
	assert.False(t, ok)
	assert.Equal(t, StateIdle, w.State())
	assert.False(t, w.TriggerHeld())
	assert.Equal(t, []EventKind{EventOutOfAmmo}, events)
	assert.InDelta(t, 5, w.CurrentSpread(), 1e-9)
}

func TestWeapon_StopFireKeepsRateLimit(t *testing.T) {
	w := NewWeapon(scenarioConfig())

	ok, err := w.StartFire(t0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.CompleteShot(t0))

	w.StopFire(t0.Add(10 * time.Millisecond))
	assert.Equal(t, StateIdle, w.State())

	_, err = w.StartFire(t0.Add(20 * time.Millisecond))
	assert.ErrorIs(t, err, ErrOnCooldown)
	assert.Equal(t, StateIdle, w.State())

	ok, err = w.StartFire(t0.Add(100 * time.Millisecond))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateFiring, w.State())
}

func TestWeapon_RetriggerWhileFiring(t *testing.T) {
	w := NewWeapon(scenarioConfig())
	ok, err := w.StartFire(t0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = w.StartFire(t0)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateFiring, w.State())
}

func TestWeapon_SemiAutomaticReturnsToIdle(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Automatic = false
	w := NewWeapon(cfg)

	_, err := w.StartFire(t0)
	require.NoError(t, err)
	require.NoError(t, w.CompleteShot(t0))
	assert.Equal(t, StateCooldown, w.State())

	assert.False(t, w.Update(t0.Add(100*time.Millisecond)))
	assert.Equal(t, StateIdle, w.State())
}

func TestWeapon_AutomaticStopsWhenEmpty(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MagazineSize = 1

	var events []EventKind
	w := NewWeapon(cfg, WithEventHandler(func(kind EventKind, _ time.Time) {
		events = append(events, kind)
	}))
	_, err := w.StartFire(t0)
	require.NoError(t, err)
	require.NoError(t, w.CompleteShot(t0))

	assert.False(t, w.Update(t0.Add(100*time.Millisecond)))
	assert.Equal(t, StateIdle, w.State())
	assert.Equal(t, []EventKind{EventFired, EventOutOfAmmo}, events)
}

func TestWeapon_CompleteShotRequiresFiring(t *testing.T) {
	w := NewWeapon(scenarioConfig())
	assert.ErrorIs(t, w.CompleteShot(t0), ErrNotFiring)
	assert.Equal(t, 30, w.Ammo())
}

func TestWeapon_FireWithSlack(t *testing.T) {
	w := NewWeapon(scenarioConfig(), WithCooldownSlack(15*time.Millisecond))

	calls := 0
	resolve := func(float64) error { calls++; return nil }

	require.NoError(t, w.Fire(t0, resolve))
	require.NoError(t, w.Fire(t0.Add(90*time.Millisecond), resolve))
	assert.ErrorIs(t, w.Fire(t0.Add(140*time.Millisecond), resolve), ErrOnCooldown)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 28, w.Ammo())
}

func TestWeapon_FireSlackDoesNotAccumulate(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MagazineSize = 1000
	w := NewWeapon(cfg, WithCooldownSlack(15*time.Millisecond))

	// 毎回猶予ぎりぎりの86ms間隔で要求し続ける
	accepted := 0
	for now := t0; now.Before(t0.Add(10 * time.Second)); now = now.Add(86 * time.Millisecond) {
		if err := w.Fire(now, nil); err == nil {
			accepted++
		}
	}
	// 10秒 x 10発/秒 と初弾、猶予分の1発まで
	assert.LessOrEqual(t, accepted, 101)
	assert.GreaterOrEqual(t, accepted, 99)
}

func TestWeapon_FireResolveErrorConsumesNothing(t *testing.T) {
	w := NewWeapon(scenarioConfig())
	rejected := errors.New("rejected")

	err := w.Fire(t0, func(float64) error { return rejected })
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 30, w.Ammo())
	assert.Equal(t, StateIdle, w.State())
	assert.True(t, w.LastFire().IsZero())

	// 直後の正規の1発はクールダウンに掛からない
	require.NoError(t, w.Fire(t0.Add(time.Millisecond), nil))
	assert.Equal(t, 29, w.Ammo())
}

func TestWeapon_SemiAutomaticOutOfAmmoDuringCooldown(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Automatic = false
	cfg.MagazineSize = 1

	var events []EventKind
	w := NewWeapon(cfg, WithEventHandler(func(kind EventKind, _ time.Time) {
		events = append(events, kind)
	}))
	_, err := w.StartFire(t0)
	require.NoError(t, err)
	require.NoError(t, w.CompleteShot(t0))
	require.Equal(t, StateCooldown, w.State())

	// 最後の1発のクールダウン中に引き直す
	ok, err := w.StartFire(t0.Add(20 * time.Millisecond))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrOutOfAmmo)
	assert.False(t, w.TriggerHeld())
	assert.Equal(t, StateCooldown, w.State())
	assert.Equal(t, []EventKind{EventFired, EventOutOfAmmo}, events)
}

func TestWeapon_FireOutOfAmmoNeverResolves(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MagazineSize = 0
	w := NewWeapon(cfg)

	called := false
	err := w.Fire(t0, func(float64) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOutOfAmmo)
	assert.False(t, called)
	assert.Equal(t, StateIdle, w.State())
}

func TestWeapon_Reload(t *testing.T) {
	w := NewWeapon(scenarioConfig())
	w.Reload(100)
	assert.Equal(t, 30, w.Ammo())
	w.Reload(-1)
	assert.Equal(t, 0, w.Ammo())
}

func TestWeapon_TargetingNarrowsSpread(t *testing.T) {
	w := NewWeapon(scenarioConfig())
	w.SetTargeting(true)
	assert.InDelta(t, 5*0.25, w.CurrentSpread(), 1e-9)
	w.SetTargeting(false)
	assert.InDelta(t, 5, w.CurrentSpread(), 1e-9)
}

func TestWeapon_SpreadDecaysAfterStop(t *testing.T) {
	w := NewWeapon(scenarioConfig())
	now := t0
	_, err := w.StartFire(now)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.CompleteShot(now))
		now = now.Add(100 * time.Millisecond)
		if i < 2 {
			require.True(t, w.Update(now))
		}
	}
	require.InDelta(t, 8, w.CurrentSpread(), 1e-9)

	w.StopFire(now)
	prev := w.CurrentSpread()
	for i := 0; i < 3; i++ {
		now = now.Add(100 * time.Millisecond)
		w.Update(now)
		cur := w.CurrentSpread()
		assert.Less(t, cur, prev)
		prev = cur
	}
	assert.InDelta(t, 5, prev, 1e-9)

	w.Update(now.Add(time.Second))
	assert.InDelta(t, 5, w.CurrentSpread(), 1e-9)
}

func genConfig(t *rapid.T) FireConfig {
	cfg := DefaultFireConfig()
	cfg.BaseSpread = rapid.Float64Range(0, 20).Draw(t, "base")
	cfg.MaxSpread = cfg.BaseSpread + rapid.Float64Range(0, 30).Draw(t, "extra")
	cfg.SpreadIncrement = rapid.Float64Range(0, 5).Draw(t, "inc")
	cfg.SpreadDecayRate = rapid.Float64Range(0, 50).Draw(t, "decay")
	cfg.FireRate = rapid.Float64Range(1, 20).Draw(t, "rate")
	cfg.Automatic = rapid.Bool().Draw(t, "auto")
	cfg.MagazineSize = rapid.IntRange(0, 40).Draw(t, "mag")
	return cfg
}

func TestWeapon_SpreadStaysWithinBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := genConfig(t)
		w := NewWeapon(cfg)
		now := t0

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			now = now.Add(time.Duration(rapid.IntRange(0, 300).Draw(t, "dtMs")) * time.Millisecond)
			switch rapid.IntRange(0, 3).Draw(t, "action") {
			case 0:
				if ok, _ := w.StartFire(now); ok {
					_ = w.CompleteShot(now)
				}
			case 1:
				if w.Update(now) {
					_ = w.CompleteShot(now)
				}
			case 2:
				w.StopFire(now)
			case 3:
				_ = w.Fire(now, nil)
			}
			s := w.CurrentSpread()
			if s < cfg.BaseSpread-1e-9 || s > cfg.MaxSpread+1e-9 {
				t.Fatalf("spread %v outside [%v, %v]", s, cfg.BaseSpread, cfg.MaxSpread)
			}
		}
	})
}

func TestWeapon_SpreadMonotoneUnderFireAndRest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := genConfig(t)
		cfg.SpreadIncrement = rapid.Float64Range(0.1, 5).Draw(t, "inc")
		cfg.SpreadDecayRate = rapid.Float64Range(0.1, 50).Draw(t, "decay")
		cfg.MaxSpread = cfg.BaseSpread + rapid.Float64Range(0.5, 30).Draw(t, "extra")
		cfg.Automatic = true
		cfg.MagazineSize = 40
		w := NewWeapon(cfg)
		interval := cfg.FireInterval()

		now := t0
		if _, err := w.StartFire(now); err != nil {
			t.Fatalf("StartFire: %v", err)
		}
		prev := w.CurrentSpread()
		shots := rapid.IntRange(1, 30).Draw(t, "shots")
		for i := 0; i < shots; i++ {
			if err := w.CompleteShot(now); err != nil {
				t.Fatalf("CompleteShot: %v", err)
			}
			cur := w.CurrentSpread()
			if prev < cfg.MaxSpread-1e-9 && cur <= prev {
				t.Fatalf("spread did not increase under fire: %v -> %v", prev, cur)
			}
			if cur < prev {
				t.Fatalf("spread decreased under fire: %v -> %v", prev, cur)
			}
			prev = cur
			now = now.Add(interval)
			if i < shots-1 && !w.Update(now) {
				t.Fatalf("automatic weapon did not refire")
			}
		}

		w.StopFire(now)
		for w.CurrentSpread() > cfg.BaseSpread+1e-9 {
			now = now.Add(50 * time.Millisecond)
			w.Update(now)
			cur := w.CurrentSpread()
			if cur >= prev {
				t.Fatalf("spread did not decrease at rest: %v -> %v", prev, cur)
			}
			prev = cur
		}
	})
}
