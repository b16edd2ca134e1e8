package domain

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatService はpingを送り続け、送信キューの詰まりを検出します。
// pingすら積めないセッションは被弾レコードの複製も滞っているので、バックログとして記録します。
type HeartbeatService struct {
	pingInterval time.Duration
	session      *Session
	writeCh      chan<- []byte
}

func NewHeartbeatService(pingInterval time.Duration, session *Session, writeCh chan<- []byte) *HeartbeatService {
	return &HeartbeatService{
		pingInterval: pingInterval,
		session:      session,
		writeCh:      writeCh,
	}
}

// Run はctxがキャンセルされるまでpingInterval間隔でpingを積みます。
// キューが満杯だった時点でセッションにバックログを記録して終了します。
func (h *HeartbeatService) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.ping(ctx) {
				return
			}
		}
	}
}

func (h *HeartbeatService) ping(ctx context.Context) bool {
	select {
	case h.writeCh <- EncodePingMessage(h.session.ID()):
		slog.DebugContext(ctx, "heartbeat: ping queued", "sessionID", h.session.ID())
		return true
	default:
		slog.WarnContext(ctx, "heartbeat: send queue full", "sessionID", h.session.ID())
		h.session.MarkBacklog()
		return false
	}
}
