package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

//go:generate go tool mockgen -destination=./mocks/pubsub_mock.go -package=mocks . PubSub

// Topic はpubsubの配送先です。"session:<id>" / "room:<id>" / "room:<id>:ctrl" の形を取ります。
type Topic string

func SessionTopic(id SessionID) Topic { return Topic("session:" + id.String()) }
func RoomTopic(id RoomID) Topic       { return Topic("room:" + id.String()) }
func RoomCtrlTopic(id RoomID) Topic   { return Topic("room:" + id.String() + ":ctrl") }

// Message はpubsubで配送されるメッセージです。
type Message struct {
	SessionID SessionID
	Data      []byte
}

// ErrSubscriberFull は購読者のバッファが満杯でメッセージを渡せなかったことを示します。
var ErrSubscriberFull = errors.New("pubsub: subscriber buffer full")

// PubSub はセッションとルームの間のメッセージ配送を担当します。
// 配送は購読者ごとに順序どおりで、途中の1件だけが欠けることはありません。
type PubSub interface {
	Publish(ctx context.Context, topic Topic, msg Message) error
	Subscribe(topic Topic) <-chan Message
	Unsubscribe(topic Topic, ch <-chan Message)
	// Evict はトピックの購読をすべて閉じます。購読側はチャネルのcloseで切断を知ります。
	Evict(topic Topic)
}

const subscriberBufferSize = 1024

// SimplePubSub はプロセス内で完結するPubSub実装です。
// 購読者のバッファが満杯ならErrSubscriberFullを返し、後始末は送信側に任せます。
type SimplePubSub struct {
	mu   sync.RWMutex
	subs map[Topic][]chan Message
}

var _ PubSub = (*SimplePubSub)(nil)

func NewSimplePubSub() *SimplePubSub {
	return &SimplePubSub{subs: make(map[Topic][]chan Message)}
}

func (p *SimplePubSub) Publish(ctx context.Context, topic Topic, msg Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var err error
	for _, ch := range p.subs[topic] {
		select {
		case ch <- msg:
		default:
			err = fmt.Errorf("%w: %s", ErrSubscriberFull, topic)
		}
	}
	return err
}

func (p *SimplePubSub) Subscribe(topic Topic) <-chan Message {
	ch := make(chan Message, subscriberBufferSize)
	p.mu.Lock()
	p.subs[topic] = append(p.subs[topic], ch)
	p.mu.Unlock()
	return ch
}

func (p *SimplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.subs[topic]
	for i, c := range subs {
		if c == ch {
			p.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(c)
			break
		}
	}
	if len(p.subs[topic]) == 0 {
		delete(p.subs, topic)
	}
}

func (p *SimplePubSub) Evict(topic Topic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.subs[topic] {
		close(c)
	}
	delete(p.subs, topic)
}
