package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	adapterwebsocket "arena/server/adapter/websocket"
	"arena/server/domain"
)

// AcceptOption はAcceptHandlerの生成オプションです。
type AcceptOption func(*AcceptHandler)

// WithAuthenticator は接続時のトークン検証を有効にします。
func WithAuthenticator(a *Authenticator) AcceptOption {
	return func(h *AcceptHandler) { h.auth = a }
}

// WithEndpointOptions はセッションエンドポイントに渡すオプションを設定します。
func WithEndpointOptions(opts ...domain.EndpointOption) AcceptOption {
	return func(h *AcceptHandler) { h.endpointOpts = append(h.endpointOpts, opts...) }
}

type AcceptHandler struct {
	pubsub       domain.PubSub
	roomManager  domain.RoomManager
	auth         *Authenticator
	endpointOpts []domain.EndpointOption
}

func NewAcceptHandler(pubsub domain.PubSub, roomManager domain.RoomManager, opts ...AcceptOption) *AcceptHandler {
	h := &AcceptHandler{pubsub: pubsub, roomManager: roomManager}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := ""
	if h.auth != nil {
		var err error
		subject, err = h.auth.Verify(r)
		if err != nil {
			slog.WarnContext(ctx, "rejected connection", "remote", r.RemoteAddr, "err", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // 開発用: Origin チェックをスキップ
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	session := domain.NewSession()
	transport := adapterwebsocket.NewTransportFrom(conn)
	connection := domain.NewConnection(session.ID(), transport)
	endpoint, err := domain.NewSessionEndpoint(session, connection, h.pubsub, h.roomManager, h.endpointOpts...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session endpoint", "err", err)
		return
	}
	slog.DebugContext(ctx, "accepted new connection", "session_id", session.ID(), "subject", subject)
	err = endpoint.Run()
	if err != nil {
		slog.ErrorContext(ctx, "failed to run session endpoint", "err", err)
		return
	}
}
