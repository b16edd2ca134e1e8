package hit

import (
	"bytes"

	"arena/server/domain"
)

// Pending は送出待ちの複製メッセージです。
type Pending struct {
	Victim  domain.EntityID
	Payload []byte
}

// Outbox は被弾レコードの複製キューです。
// 直前に送ったものとバイト単位で同じ内容は送らず、それ以外は書き込み順に送ります。
type Outbox struct {
	last  map[domain.EntityID][]byte
	queue []Pending
}

func NewOutbox() *Outbox {
	return &Outbox{last: make(map[domain.EntityID][]byte)}
}

// Push はレコードの現在値をキューに積みます。差分が無ければfalseを返します。
func (o *Outbox) Push(r *Record) bool {
	p := r.Payload()
	data := p.Encode()
	if prev, ok := o.last[r.victim]; ok && bytes.Equal(prev, data) {
		return false
	}
	o.last[r.victim] = data
	o.queue = append(o.queue, Pending{Victim: r.victim, Payload: data})
	return true
}

// Drain は積まれた順に全件を取り出します。
func (o *Outbox) Drain() []Pending {
	out := o.queue
	o.queue = nil
	return out
}

// Len は送出待ちの件数です。
func (o *Outbox) Len() int { return len(o.queue) }

// Forget はキャラクターの破棄に合わせて差分の基準を捨てます。
func (o *Outbox) Forget(victim domain.EntityID) {
	delete(o.last, victim)
}
