package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"arena/server/application"
	"arena/server/config"
	"arena/server/domain"
	"arena/server/handler"
	"arena/server/peer"
	"arena/server/weapon"
	"arena/utils"
)

const botSpeed = 400.0 // units/s

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadServer(utils.GetEnvDefault("CONFIG", "arena.yaml"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	slog.SetDefault(utils.NewLogger(os.Stdout, cfg.LogLevel))

	botCount := utils.GetEnvInt("BOT_COUNT", 3)
	weaponName := utils.GetEnvDefault("WEAPON", cfg.DefaultWeapon)
	catalog, err := fetchCatalog(ctx, fmt.Sprintf("http://%s/weapons", cfg.ListenAddr()))
	if err != nil {
		slog.Warn("using local weapon catalog", "err", err)
		catalog = cfg.Weapons
	}
	fireCfg, ok := catalog.Get(weaponName)
	if !ok {
		slog.Error("unknown weapon", "weapon", weaponName)
		os.Exit(1)
	}

	serverURL := fmt.Sprintf("ws://%s/ws", cfg.ListenAddr())
	slog.Info("starting bots", "count", botCount, "server", serverURL, "weapon", fireCfg.Name)

	var wg sync.WaitGroup
	for i := range botCount {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runBot(ctx, serverURL, cfg.Auth, fireCfg, id)
		}(i)
	}

	wg.Wait()
	slog.Info("all bots stopped")
}

func runBot(ctx context.Context, serverURL string, auth config.AuthConfig, fireCfg weapon.FireConfig, id int) {
	logger := slog.With("botID", id)

	for {
		if ctx.Err() != nil {
			return
		}
		err := botSession(ctx, serverURL, auth, fireCfg, logger)
		if err != nil && ctx.Err() == nil {
			logger.Warn("bot session ended, reconnecting", "err", err)
			time.Sleep(2 * time.Second)
		}
	}
}

// fetchCatalog はサーバーが使っている武器設定を取得します。
func fetchCatalog(ctx context.Context, url string) (weapon.Catalog, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var configs []weapon.FireConfig
	if err := json.NewDecoder(resp.Body).Decode(&configs); err != nil {
		return nil, fmt.Errorf("decode weapons: %w", err)
	}
	catalog := make(weapon.Catalog, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		catalog[cfg.Name] = cfg
	}
	return catalog, nil
}

// botState は受信ループと判断ループで共有する状態です。
type botState struct {
	mu        sync.Mutex
	sessionID domain.SessionID
	predictor *peer.Predictor
	actors    map[domain.EntityID]*application.Actor
	seq       uint16
}

func (s *botState) nextSeq() uint16 {
	s.seq++
	return s.seq
}

func botSession(ctx context.Context, serverURL string, auth config.AuthConfig, fireCfg weapon.FireConfig, logger *slog.Logger) error {
	var opts *websocket.DialOptions
	if auth.Secret != "" {
		token, err := handler.IssueToken(auth.Secret, auth.Issuer, "bot", time.Hour)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		opts = &websocket.DialOptions{HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}}}
	}
	conn, _, err := websocket.Dial(ctx, serverURL, opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	logger.Info("connected")

	state := &botState{actors: make(map[domain.EntityID]*application.Actor)}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return receiveLoop(ctx, conn, state, fireCfg, logger)
	})
	eg.Go(func() error {
		return decideLoop(ctx, conn, state, logger)
	})
	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		conn.Close(websocket.StatusNormalClosure, "shutdown")
		return nil
	}
	return err
}

func receiveLoop(ctx context.Context, conn *websocket.Conn, state *botState, fireCfg weapon.FireConfig, logger *slog.Logger) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		header, payloadHeader, payload, err := domain.SplitMessage(data)
		if err != nil {
			continue
		}

		switch payloadHeader.DataType {
		case domain.DataTypeControl:
			switch domain.ControlSubType(payloadHeader.SubType) {
			case domain.ControlSubTypeAssign:
				sessionID := domain.SessionIDFromBytes(header.SessionID)
				state.mu.Lock()
				state.sessionID = sessionID
				state.predictor = peer.NewPredictor(sessionID, fireCfg,
					peer.WithEventHandler(func(ev peer.Event) {
						if ev.Kind == peer.EventFaded {
							logger.Debug("prediction faded", "seq", ev.Seq)
						}
					}),
				)
				join := domain.EncodeMessage(sessionID, state.nextSeq(), domain.DataTypeControl, uint8(domain.ControlSubTypeJoin),
					(&domain.JoinPayload{}).Encode())
				state.mu.Unlock()
				logger.Info("session assigned", "sessionID", sessionID)
				if err := conn.Write(ctx, websocket.MessageBinary, join); err != nil {
					return fmt.Errorf("send join: %w", err)
				}
			case domain.ControlSubTypePing:
				state.mu.Lock()
				pong := domain.EncodeMessage(state.sessionID, state.nextSeq(), domain.DataTypeControl, uint8(domain.ControlSubTypePong), nil)
				state.mu.Unlock()
				if err := conn.Write(ctx, websocket.MessageBinary, pong); err != nil {
					return fmt.Errorf("send pong: %w", err)
				}
			}

		case domain.DataTypeActor:
			a, err := domain.ParseActorState(payload)
			if err != nil {
				continue
			}
			state.mu.Lock()
			applyActor(state, domain.ActorSubType(payloadHeader.SubType), a)
			state.mu.Unlock()

		case domain.DataTypeHit:
			state.mu.Lock()
			if state.predictor != nil {
				if err := state.predictor.HandleMessage(data, time.Now()); err != nil {
					logger.Debug("hit record dropped", "err", err)
				}
			}
			state.mu.Unlock()
		}
	}
}

func applyActor(state *botState, sub domain.ActorSubType, a *domain.ActorStatePayload) {
	if sub == domain.ActorSubTypeDespawn {
		delete(state.actors, a.Entity)
		if state.predictor != nil {
			state.predictor.Forget(a.Entity)
		}
		return
	}
	actor, ok := state.actors[a.Entity]
	if !ok {
		actor = &application.Actor{ID: a.Entity}
		state.actors[a.Entity] = actor
	}
	wasAlive := ok && actor.IsAlive()
	// 自分の位置はローカルで進めているので上書きしない。
	// ただしスポーンとリスポーンではサーバーの位置に合わせる
	if a.Entity != state.sessionID.EntityID() || sub == domain.ActorSubTypeSpawn || !wasAlive || application.ActorState(a.Flags)&application.StateAlive == 0 {
		actor.Position = a.Position
		actor.Aim = a.Aim
	}
	actor.HP = float64(a.HP)
	actor.State = application.ActorState(a.Flags)
	// サーバーはリスポーン時に弾倉を満たすので、ローカルの武器も合わせる
	if a.Entity == state.sessionID.EntityID() && !wasAlive && actor.IsAlive() && state.predictor != nil {
		w := state.predictor.Weapon()
		w.Reload(w.Config().MagazineSize)
	}
}

func decideLoop(ctx context.Context, conn *websocket.Conn, state *botState, logger *slog.Logger) error {
	controller := application.NewRuleBotController(nil)

	// 判断・送信ループ (60FPS相当)
	const dt = time.Second / 60
	ticker := time.NewTicker(dt)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			msgs := step(state, controller, now, dt, logger)
			for _, msg := range msgs {
				if err := conn.Write(ctx, websocket.MessageBinary, msg); err != nil {
					return fmt.Errorf("write: %w", err)
				}
			}
		}
	}
}

// step は1tick分の判断を行い、送信するメッセージを返します。
func step(state *botState, controller application.BotController, now time.Time, dt time.Duration, logger *slog.Logger) [][]byte {
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.predictor == nil {
		return nil
	}
	state.predictor.Expire(now)

	self, ok := state.actors[state.sessionID.EntityID()]
	if !ok || !self.IsAlive() {
		return nil
	}
	actors := make([]*application.Actor, 0, len(state.actors))
	for _, a := range state.actors {
		actors = append(actors, a)
	}
	action := controller.Decide(self, actors, nil)

	self.Position = self.Position.Add(action.Move.Scale(botSpeed * dt.Seconds()))
	if aim, ok := action.Aim.Normalize(); ok {
		self.Aim = aim
	}

	var msgs [][]byte
	pose := &domain.ActorStatePayload{Entity: self.ID, Position: self.Position, Aim: self.Aim}
	msgs = append(msgs, domain.EncodeMessage(state.sessionID, state.nextSeq(), domain.DataTypeActor, uint8(domain.ActorSubTypeUpdate), pose.Encode()))

	p := state.predictor
	var req *domain.FireRequestPayload
	var err error
	switch {
	case action.Fire && (!p.Weapon().TriggerHeld() || p.Weapon().State() == weapon.StateIdle):
		// セミオートはIdleに戻った時点で引き直す
		req, err = p.Trigger(now, self.Position, self.Aim)
	case action.Fire:
		req, err = p.Update(now, self.Position, self.Aim)
	default:
		if p.Weapon().TriggerHeld() {
			p.Release(now)
		}
		p.Update(now, self.Position, self.Aim)
	}
	if err != nil && !errors.Is(err, weapon.ErrOutOfAmmo) {
		logger.Debug("local fire failed", "err", err)
	}
	if req != nil {
		msgs = append(msgs, p.Message(req))
	}

	var mask uint32
	if action.Fire {
		mask |= domain.InputFire
	}
	input := &domain.InputPayload{KeyMask: mask}
	msgs = append(msgs, domain.EncodeMessage(state.sessionID, state.nextSeq(), domain.DataTypeInput, 0, input.Encode()))
	return msgs
}
