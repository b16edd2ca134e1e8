package application

import (
	"arena/server/domain"
	"arena/server/weapon"
)

// BotAction はボットの1tick分の行動を表します。
type BotAction struct {
	Move domain.Vec3 // 単位方向。ゼロなら停止
	Aim  domain.Vec3
	Fire bool
}

// BotController はボットの意思決定インターフェースです。
type BotController interface {
	Decide(self *Actor, allActors []*Actor, projectiles []weapon.Projectile) BotAction
}

// BotInstance はサーバー側で動かすボットです。
type BotInstance struct {
	ID         domain.EntityID
	Controller BotController
	Speed      float64 // units/s
}
