package domain

import "context"

// Outbound はApplicationがtickごとに送出するメッセージです。
// Toが空ならルーム全体へのブロードキャストになります。
type Outbound struct {
	To   SessionID
	Data []byte
}

// Application はルームのtickループ上で動くゲームロジックです。
// すべてのメソッドはルームの単一goroutineから呼ばれます。
type Application interface {
	Join(ctx context.Context, sessionID SessionID) error
	Leave(ctx context.Context, sessionID SessionID)
	HandleMessage(ctx context.Context, sessionID SessionID, data []byte) error
	Tick(ctx context.Context) []Outbound
}
