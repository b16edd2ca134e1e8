package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrSessionAlreadyAttached はセッションに既に接続が紐付けられている場合に返されるエラーです。
	ErrSessionAlreadyAttached = errors.New("session already has an attached connection")
	// ErrSessionNotAttached はセッションに接続が紐付けられていない場合に返されるエラーです。
	ErrSessionNotAttached = errors.New("session has no attached connection")
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
)

const (
	DefaultPingInterval = 10 * time.Second
	DefaultIdleTimeout  = 30 * time.Second
)

// EndpointOption はSessionEndpointの生成オプションです。
type EndpointOption func(*SessionEndpoint)

// WithHeartbeat はpingの送信間隔とアイドル判定のタイムアウトを設定します。
func WithHeartbeat(pingInterval, idleTimeout time.Duration) EndpointOption {
	return func(se *SessionEndpoint) {
		if pingInterval > 0 {
			se.pingInterval = pingInterval
		}
		se.idleTimeout = idleTimeout
	}
}

type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session     *Session
	connection  *Connection
	pubsub      PubSub
	roomManager RoomManager

	mu     sync.Mutex
	roomID RoomID // 実行時にRoomManagerから取得

	pingInterval time.Duration
	idleTimeout  time.Duration

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(session *Session, connection *Connection, pubsub PubSub, roomManager RoomManager, opts ...EndpointOption) (*SessionEndpoint, error) {
	if session == nil {
		return nil, ErrInitializationFailed
	}
	if connection == nil {
		return nil, ErrInitializationFailed
	}
	if pubsub == nil {
		return nil, ErrInitializationFailed
	}
	if roomManager == nil {
		return nil, ErrInitializationFailed
	}
	ctx, cancel := context.WithCancel(context.Background())
	se := &SessionEndpoint{
		ctx:          ctx,
		cancel:       cancel,
		session:      session,
		connection:   connection,
		pubsub:       pubsub,
		roomManager:  roomManager,
		pingInterval: DefaultPingInterval,
		idleTimeout:  DefaultIdleTimeout,
		ctrlCh:       make(chan endpointEvent, 16),
		writeCh:      make(chan []byte, 1024),
	}
	for _, opt := range opts {
		opt(se)
	}
	return se, nil
}

func (se *SessionEndpoint) Run() error {
	// 自分宛のメッセージを購読
	sessionTopic := SessionTopic(se.session.ID())
	msgCh := se.pubsub.Subscribe(sessionTopic)
	defer se.pubsub.Unsubscribe(sessionTopic, msgCh)

	// セッションID通知を送信
	if err := se.Send(EncodeAssignMessage(se.session.ID())); err != nil {
		return err
	}

	heartbeat := NewHeartbeatService(se.pingInterval, se.session, se.writeCh)

	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.subscribeLoop(ctx, msgCh)
		return nil
	})
	eg.Go(func() error {
		heartbeat.Run(ctx)
		return nil
	})

	return eg.Wait()
}

func (se *SessionEndpoint) Send(data []byte) error {
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (se *SessionEndpoint) Close(ctx context.Context) {
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, err: nil})
}

func (se *SessionEndpoint) ForceClose() {
	se.close()
}

// RoomID は参加中のルームIDを返します。未参加なら空です。
func (se *SessionEndpoint) RoomID() RoomID {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.roomID
}

func (se *SessionEndpoint) setRoomID(id RoomID) {
	se.mu.Lock()
	se.roomID = id
	se.mu.Unlock()
}

// ownerLoop は論理セッションの状態を監視し、必要に応じて接続の管理を行います。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-ticker.C:
			ok, reason := se.session.IsIdle(se.idleTimeout)
			if ok {
				slog.InfoContext(ctx, "session idle, closing", "sessionID", se.session.ID(), "reason", reason.String())
				se.handleControlEvent(ctx, endpointEvent{
					kind: evClose,
					err:  errors.New(reason.String()),
				})
			}
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			data, err := se.connection.Read(ctx)
			if err != nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evReadError, err: err})
				return
			}
			se.session.TouchRead()
			se.handleData(ctx, data)
		}
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			err := se.connection.Write(ctx, data)
			if err != nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, err: err})
				continue
			}
			se.session.TouchWrite()
		}
	}
}

// subscribeLoop はpubsubからのメッセージをwriteChに転送します。
func (se *SessionEndpoint) subscribeLoop(ctx context.Context, msgCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				// ルーム側で送りきれずに購読を閉じられた
				se.session.MarkBacklog()
				se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, err: ErrBackpressure})
				return
			}
			select {
			case se.writeCh <- msg.Data:
			default:
				// 1件でも欠けると被弾の複製順序が壊れるので、捨てずに切断する
				se.session.MarkBacklog()
				se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, err: ErrBackpressure})
				return
			}
		}
	}
}

func (se *SessionEndpoint) close() {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	// 異常切断でもルームから確実に抜ける
	if roomID := se.RoomID(); !roomID.IsEmpty() {
		if err := se.pubsub.Publish(context.Background(), RoomCtrlTopic(roomID), Message{
			SessionID: se.session.ID(),
			Data:      EncodeLeaveMessage(se.session.ID()),
		}); err != nil {
			slog.Warn("failed to publish leave", "sessionID", se.session.ID(), "err", err)
		}
		se.setRoomID(RoomID{})
	}
	se.cancel()
	se.session.Close()
	se.connection.Close()
}

func (se *SessionEndpoint) handleData(ctx context.Context, data []byte) {
	header, payloadHeader, payload, err := SplitMessage(data)
	if err != nil {
		slog.WarnContext(ctx, "failed to parse message", "err", err)
		return
	}
	if header.SessionID != se.session.ID().Bytes() {
		slog.WarnContext(ctx, "session ID mismatch", "expected", se.session.ID(), "got", SessionIDFromBytes(header.SessionID))
		return
	}

	switch payloadHeader.DataType {
	case DataTypeControl:
		se.handleControlMessage(ctx, ControlSubType(payloadHeader.SubType), data, payload)
	case DataTypeInput, DataTypeActor, DataTypeFire:
		// データメッセージをroom topicに転送
		roomID := se.RoomID()
		if roomID.IsEmpty() {
			slog.WarnContext(ctx, "received data message before joining a room", "sessionID", se.session.ID())
			return
		}
		if err := se.pubsub.Publish(ctx, RoomTopic(roomID), Message{
			SessionID: se.session.ID(),
			Data:      data,
		}); err != nil {
			// 射撃要求を黙って落とさず、送り手を切断する
			se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, err: err})
		}
	default:
		slog.WarnContext(ctx, "unknown data type", "dataType", payloadHeader.DataType)
	}
}

func (se *SessionEndpoint) handleControlMessage(ctx context.Context, subType ControlSubType, data, payload []byte) {
	switch subType {
	case ControlSubTypeJoin:
		if !se.RoomID().IsEmpty() {
			slog.WarnContext(ctx, "session already in a room", "sessionID", se.session.ID())
			return
		}
		var roomID RoomID
		if len(payload) >= JoinPayloadSize {
			join, err := ParseJoinPayload(payload)
			if err != nil {
				slog.WarnContext(ctx, "failed to parse join message", "err", err)
				return
			}
			roomID = join.RoomID
		}
		// RoomIDが空の場合、RoomManagerからデフォルトルームを取得
		if roomID.IsEmpty() {
			defaultRoomID, err := se.roomManager.GetRoom(ctx, se.session.ID())
			if err != nil {
				slog.ErrorContext(ctx, "failed to get default room", "err", err)
				return
			}
			roomID = defaultRoomID
			slog.DebugContext(ctx, "auto-assigned room", "sessionID", se.session.ID(), "roomID", roomID)
		}
		se.setRoomID(roomID)
		slog.InfoContext(ctx, "session joined room", "sessionID", se.session.ID(), "roomID", roomID)
		if err := se.pubsub.Publish(ctx, RoomCtrlTopic(roomID), Message{SessionID: se.session.ID(), Data: data}); err != nil {
			se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, err: err})
		}
	case ControlSubTypeLeave:
		roomID := se.RoomID()
		if roomID.IsEmpty() {
			slog.WarnContext(ctx, "session not in any room, cannot leave", "sessionID", se.session.ID())
			return
		}
		if err := se.pubsub.Publish(ctx, RoomCtrlTopic(roomID), Message{SessionID: se.session.ID(), Data: data}); err != nil {
			slog.WarnContext(ctx, "failed to publish leave", "sessionID", se.session.ID(), "err", err)
		}
		slog.InfoContext(ctx, "session left room", "sessionID", se.session.ID(), "roomID", roomID)
		se.setRoomID(RoomID{})
	case ControlSubTypePong:
		se.sendCtrlEvent(ctx, endpointEvent{kind: evPong})
	default:
		slog.DebugContext(ctx, "ignored control message", "subType", subType)
	}
}

// handleControlEvent は制御チャネルからのイベントを処理し論理セッションの状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		if ev.err != nil {
			slog.InfoContext(ctx, "closing session", "sessionID", se.session.ID(), "reason", ev.err)
		}
		se.close()
	case evPong:
		se.session.TouchPong()
	case evReadError:
		// 読み込みが途絶えた接続は再利用できない
		slog.InfoContext(ctx, "read failed, closing session", "sessionID", se.session.ID(), "err", ev.err)
		se.close()
	case evWriteError:
		slog.WarnContext(ctx, "write failed", "sessionID", se.session.ID(), "err", ev.err)
	default:
		slog.WarnContext(ctx, "unknown endpoint event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}
