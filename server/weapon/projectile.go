package weapon

import (
	"time"

	"arena/server/domain"
)

// Projectile は発射後に独立して飛ぶ弾体です。持ち主が退出しても生存します。
type Projectile struct {
	ID        domain.EntityID
	Owner     domain.EntityID
	Weapon    string
	Shot      uint16 // 発射した射撃要求のseq
	Position  domain.Vec3
	Velocity  domain.Vec3
	Remaining time.Duration
}

// ProjectileImpact はプロジェクタイルの衝突です。
type ProjectileImpact struct {
	Projectile Projectile
	Hit        TraceHit
}

// ProjectileSet は飛翔中のプロジェクタイルを生成順に保持します。
type ProjectileSet struct {
	live []*Projectile
}

// Spawn はプロジェクタイルを追加します。shotは着弾時の被弾レコードにそのまま載ります。
func (s *ProjectileSet) Spawn(owner domain.EntityID, weapon string, shot uint16, spawn ProjectileSpawn) *Projectile {
	p := &Projectile{
		ID:        domain.NewEntityID(),
		Owner:     owner,
		Weapon:    weapon,
		Shot:      shot,
		Position:  spawn.Origin,
		Velocity:  spawn.Velocity,
		Remaining: spawn.Life,
	}
	s.live = append(s.live, p)
	return p
}

// Len は飛翔中の数です。
func (s *ProjectileSet) Len() int { return len(s.live) }

// Snapshot は飛翔中のプロジェクタイルのコピーを返します。
func (s *ProjectileSet) Snapshot() []Projectile {
	out := make([]Projectile, 0, len(s.live))
	for _, p := range s.live {
		out = append(out, *p)
	}
	return out
}

// Advance はdtだけ全弾を進めます。区間内で最初に当たった面で衝突を報告し、
// 寿命が尽きた弾は何も起こさずに消えます。戻り値は生成順です。
func (s *ProjectileSet) Advance(dt time.Duration, tracer Tracer) (impacts []ProjectileImpact, expired int) {
	if dt <= 0 {
		return nil, 0
	}
	kept := s.live[:0]
	for _, p := range s.live {
		step := dt
		if step > p.Remaining {
			step = p.Remaining
		}
		delta := p.Velocity.Scale(step.Seconds())
		if dir, ok := delta.Normalize(); ok {
			if hit, ok := tracer.Trace(p.Position, dir, delta.Len(), p.Owner); ok {
				p.Position = hit.Location
				impacts = append(impacts, ProjectileImpact{Projectile: *p, Hit: hit})
				continue
			}
		}
		p.Position = p.Position.Add(delta)
		p.Remaining -= step
		if p.Remaining <= 0 {
			expired++
			continue
		}
		kept = append(kept, p)
	}
	clear(s.live[len(kept):])
	s.live = kept
	return impacts, expired
}
