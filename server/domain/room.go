package domain

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTickRate はルームの既定tickレート (Hz) です。
const DefaultTickRate = 60

type Room struct {
	ID       RoomID
	sessions map[SessionID]struct{}

	pubsub      PubSub
	application Application // 外部からアプリケーションロジックを注入できる

	tickInterval time.Duration
}

func NewRoom(id RoomID, pubsub PubSub, application Application, tickRate int) *Room {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	return &Room{
		ID:           id,
		sessions:     make(map[SessionID]struct{}),
		pubsub:       pubsub,
		application:  application,
		tickInterval: time.Second / time.Duration(tickRate),
	}
}

func (r *Room) Broadcast(ctx context.Context, data []byte) {
	for sessionID := range r.sessions {
		r.deliver(ctx, sessionID, data)
	}
}

func (r *Room) SendTo(ctx context.Context, sessionID SessionID, data []byte) {
	r.deliver(ctx, sessionID, data)
}

// deliver はセッションへ1件送ります。受け取れなかったセッションは以降の順序を
// 保証できないため、購読を閉じてルームから外します。
func (r *Room) deliver(ctx context.Context, sessionID SessionID, data []byte) {
	err := r.pubsub.Publish(ctx, SessionTopic(sessionID), Message{Data: data})
	if err == nil {
		return
	}
	slog.WarnContext(ctx, "room: session backlog, disconnecting", "sessionID", sessionID, "err", err)
	r.pubsub.Evict(SessionTopic(sessionID))
	if _, ok := r.sessions[sessionID]; ok {
		delete(r.sessions, sessionID)
		r.application.Leave(ctx, sessionID)
	}
}

// Members は現在ルームに参加しているセッション数を返します。
func (r *Room) Members() int { return len(r.sessions) }

func (r *Room) Run(ctx context.Context) error {
	// room宛のメッセージを購読
	msgCh := r.pubsub.Subscribe(RoomTopic(r.ID))
	defer r.pubsub.Unsubscribe(RoomTopic(r.ID), msgCh)

	// room制御用トピックを購読（異常切断時のleave）
	ctrlCh := r.pubsub.Subscribe(RoomCtrlTopic(r.ID))
	defer r.pubsub.Unsubscribe(RoomCtrlTopic(r.ID), ctrlCh)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.step(ctx, ctrlCh, msgCh)
		}
	}
}

// step は1tick分の処理を行います。制御 → 受信 → Tick → 送信 の順序は固定です。
func (r *Room) step(ctx context.Context, ctrlCh, msgCh <-chan Message) {
	// 制御メッセージを処理（join/leave）
CTRL_LOOP:
	for {
		select {
		case ctrl := <-ctrlCh:
			r.handleMessage(ctx, ctrl)
		default:
			break CTRL_LOOP
		}
	}
	// 受信メッセージを処理
RECEIVE_LOOP:
	for {
		select {
		case msg := <-msgCh:
			r.handleMessage(ctx, msg)
		default:
			break RECEIVE_LOOP
		}
	}
	// ApplicationのTick()を呼び出し、生成された順に送出する
	for _, out := range r.application.Tick(ctx) {
		if out.To.IsEmpty() {
			r.Broadcast(ctx, out.Data)
			continue
		}
		r.SendTo(ctx, out.To, out.Data)
	}
}

func (r *Room) handleMessage(ctx context.Context, msg Message) {
	_, payloadHeader, _, err := SplitMessage(msg.Data)
	if err != nil {
		slog.WarnContext(ctx, "room: malformed message", "sessionID", msg.SessionID, "err", err)
		return
	}
	if payloadHeader.DataType == DataTypeControl {
		r.handleControlMessage(ctx, msg.SessionID, ControlSubType(payloadHeader.SubType))
		return
	}
	if _, ok := r.sessions[msg.SessionID]; !ok {
		slog.WarnContext(ctx, "room: message from non-member", "sessionID", msg.SessionID)
		return
	}
	// アプリケーションロジックが担当する
	if err := r.application.HandleMessage(ctx, msg.SessionID, msg.Data); err != nil {
		slog.WarnContext(ctx, "room handle message failed", "err", err)
	}
}

// handleControlMessage はjoin/leave制御メッセージを処理します。
func (r *Room) handleControlMessage(ctx context.Context, sessionID SessionID, subType ControlSubType) {
	switch subType {
	case ControlSubTypeJoin:
		if _, ok := r.sessions[sessionID]; ok {
			return
		}
		if err := r.application.Join(ctx, sessionID); err != nil {
			slog.WarnContext(ctx, "room: join rejected", "sessionID", sessionID, "err", err)
			return
		}
		r.sessions[sessionID] = struct{}{}
	case ControlSubTypeLeave:
		if _, ok := r.sessions[sessionID]; !ok {
			return
		}
		delete(r.sessions, sessionID)
		r.application.Leave(ctx, sessionID)
	default:
	}
}
