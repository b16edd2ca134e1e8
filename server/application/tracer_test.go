package application

import (
	"testing"

	"arena/server/domain"
)

func TestFieldTracer(t *testing.T) {
	f := newTestField()
	shooter := f.Spawn(domain.NewEntityID(), KindPlayer, newTestWeapon())
	target := f.Spawn(domain.NewEntityID(), KindPlayer, newTestWeapon())
	shooter.Position = domain.Vec3{}
	target.Position = domain.Vec3{X: 500}
	tracer := NewFieldTracer(f)

	t.Run("actor", func(t *testing.T) {
		hit, ok := tracer.Trace(shooter.Position, domain.Vec3{X: 1}, 10000, shooter.ID)
		if !ok {
			t.Fatal("expected a hit")
		}
		if hit.Entity != target.ID {
			t.Errorf("Entity = %s, want %s", hit.Entity, target.ID)
		}
		if hit.Distance != 460 {
			t.Errorf("Distance = %f, want 460", hit.Distance)
		}
		if hit.Location != (domain.Vec3{X: 460}) {
			t.Errorf("Location = %+v", hit.Location)
		}
		if hit.Normal != (domain.Vec3{X: -1}) {
			t.Errorf("Normal = %+v", hit.Normal)
		}
		if hit.Surface != domain.SurfaceFlesh {
			t.Errorf("Surface = %s, want flesh", hit.Surface)
		}
	})

	t.Run("bounds", func(t *testing.T) {
		hit, ok := tracer.Trace(shooter.Position, domain.Vec3{Y: 1}, 10000, shooter.ID)
		if !ok {
			t.Fatal("expected the arena wall")
		}
		if !hit.Entity.IsEmpty() || hit.Distance != 1000 || hit.Surface != domain.SurfaceConcrete {
			t.Errorf("hit = %+v, want concrete wall at 1000", hit)
		}
	})

	t.Run("max distance", func(t *testing.T) {
		if _, ok := tracer.Trace(shooter.Position, domain.Vec3{X: 1}, 100, shooter.ID); ok {
			t.Error("expected no hit within 100")
		}
	})

	t.Run("dead actors are transparent", func(t *testing.T) {
		other := f.Spawn(domain.NewEntityID(), KindPlayer, newTestWeapon())
		other.Position = domain.Vec3{Z: 300}
		other.State = StateRespawning
		hit, ok := tracer.Trace(shooter.Position, domain.Vec3{Z: 1}, 10000, shooter.ID)
		if !ok || !hit.Entity.IsEmpty() {
			t.Errorf("hit = %+v, want wall behind the dead actor", hit)
		}
	})
}

func TestFieldTracer_ObstacleBlocksActor(t *testing.T) {
	f := newTestField()
	shooter := f.Spawn(domain.NewEntityID(), KindPlayer, newTestWeapon())
	target := f.Spawn(domain.NewEntityID(), KindPlayer, newTestWeapon())
	shooter.Position = domain.Vec3{}
	target.Position = domain.Vec3{X: 500}
	f.Arena.AddObstacle(Box{
		Min:     domain.Vec3{X: 200, Y: -100, Z: -100},
		Max:     domain.Vec3{X: 250, Y: 100, Z: 100},
		Surface: domain.SurfaceMetal,
	})

	hit, ok := NewFieldTracer(f).Trace(shooter.Position, domain.Vec3{X: 1}, 10000, shooter.ID)

	if !ok {
		t.Fatal("expected the obstacle")
	}
	if !hit.Entity.IsEmpty() || hit.Distance != 200 || hit.Surface != domain.SurfaceMetal {
		t.Errorf("hit = %+v, want metal obstacle at 200", hit)
	}
	if hit.Normal != (domain.Vec3{X: -1}) {
		t.Errorf("Normal = %+v, want (-1, 0, 0)", hit.Normal)
	}
}

func TestRaySphere_OriginInside(t *testing.T) {
	d, ok := raySphere(domain.Vec3{}, domain.Vec3{X: 1}, domain.Vec3{X: 10}, 40)
	if !ok || d != 0 {
		t.Errorf("raySphere = (%f, %v), want (0, true)", d, ok)
	}
}
