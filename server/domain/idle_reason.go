package domain

import (
	"fmt"
	"strings"
)

// IdleReason はセッションを切断する理由のビット集合です。
type IdleReason uint8

const (
	IdleNone     IdleReason = 0
	IdleRead     IdleReason = 1 << 0
	IdleWrite    IdleReason = 1 << 1
	IdlePong     IdleReason = 1 << 2
	IdleBacklog  IdleReason = 1 << 3 // 送信キューが溢れて複製を届けきれない
	IdleDisabled IdleReason = 1 << 7 // timeout<=0 のとき
)

var idleReasonNames = []struct {
	reason IdleReason
	name   string
}{
	{IdleRead, "read"},
	{IdleWrite, "write"},
	{IdlePong, "pong"},
	{IdleBacklog, "backlog"},
}

func (r IdleReason) Has(x IdleReason) bool { return r&x != 0 }

func (r IdleReason) String() string {
	switch r {
	case IdleNone:
		return "none"
	case IdleDisabled:
		return "disabled"
	}
	var names []string
	for _, n := range idleReasonNames {
		if r.Has(n.reason) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("unknown(%d)", r)
	}
	return strings.Join(names, "|")
}
