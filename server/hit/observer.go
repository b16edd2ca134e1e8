package hit

import "arena/server/domain"

// Observer は受信側で新しい被弾を検出します。
// 比較するのはdirtyだけで、他のフィールドが同じでも新しい被弾とみなします。
type Observer struct {
	seen map[domain.EntityID]uint8
}

func NewObserver() *Observer {
	return &Observer{seen: make(map[domain.EntityID]uint8)}
}

// Observe はレコードを取り込み、前回からdirtyが変化していればtrueを返します。
// 初めて見るレコードは一度でも書き込まれていれば (dirty != 0) 新しい被弾です。
func (o *Observer) Observe(p *domain.HitRecordPayload) bool {
	prev, ok := o.seen[p.Victim]
	o.seen[p.Victim] = p.Dirty
	if !ok {
		return p.Dirty != 0
	}
	return prev != p.Dirty
}

// Forget はキャラクターの破棄に合わせて追跡をやめます。
func (o *Observer) Forget(victim domain.EntityID) {
	delete(o.seen, victim)
}
