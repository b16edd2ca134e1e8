// Package config はサーバー設定をYAMLから読み込みます。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"arena/server/weapon"
	"arena/utils"
)

var ErrInvalidConfig = errors.New("config: invalid server config")

// Server はオーソリティサーバーの設定です。
type Server struct {
	// Network
	Addr     string `yaml:"addr"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Room
	TickRate     int           `yaml:"tick_rate"`
	PingInterval time.Duration `yaml:"ping_interval"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	Auth      AuthConfig      `yaml:"auth"`
	Authority AuthorityConfig `yaml:"authority"`
	Arena     ArenaConfig     `yaml:"arena"`

	DefaultWeapon string         `yaml:"default_weapon"`
	Weapons       weapon.Catalog `yaml:"weapons"`
}

// AuthConfig はピア認証の設定です。Secretが空なら認証しません。
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// AuthorityConfig は射撃要求の再検証に使う許容値です。
type AuthorityConfig struct {
	OriginTolerance float64       `yaml:"origin_tolerance"`
	AimTolerance    float64       `yaml:"aim_tolerance"`    // 度
	SpreadTolerance float64       `yaml:"spread_tolerance"` // 度
	CooldownSlack   time.Duration `yaml:"cooldown_slack"`
}

// ArenaConfig はフィールドの広さとキャラクターの設定です。
type ArenaConfig struct {
	HalfExtent   float64       `yaml:"half_extent"`
	ActorRadius  float64       `yaml:"actor_radius"`
	MaxHP        float64       `yaml:"max_hp"`
	RespawnDelay time.Duration `yaml:"respawn_delay"`
	MaxSpeed     float64       `yaml:"max_speed"`  // 報告位置の移動上限 (単位/秒)。0なら制限しない
	PoseSlack    float64       `yaml:"pose_slack"` // 移動上限に上乗せする距離
	Bots         int           `yaml:"bots"`
}

// DefaultServer は既定値の設定を返します。
func DefaultServer() Server {
	return Server{
		Addr:         "localhost",
		Port:         9090,
		LogLevel:     "INFO",
		TickRate:     60,
		PingInterval: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		Auth: AuthConfig{
			Issuer: "arena",
		},
		Authority: AuthorityConfig{
			OriginTolerance: 200,
			AimTolerance:    15,
			SpreadTolerance: 1,
			CooldownSlack:   15 * time.Millisecond,
		},
		Arena: ArenaConfig{
			HalfExtent:   5000,
			ActorRadius:  40,
			MaxHP:        100,
			RespawnDelay: 3 * time.Second,
			MaxSpeed:     600,
			PoseSlack:    50,
			Bots:         0,
		},
		DefaultWeapon: "rifle",
		Weapons:       weapon.DefaultCatalog(),
	}
}

// LoadServer はYAMLファイルから設定を読み込みます。
// ファイルが存在しない場合は既定値を返します。
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv は環境変数で上書きします。秘密鍵はファイルに置かずAUTH_SECRETで渡せます。
func (s *Server) ApplyEnv() {
	s.Addr = utils.GetEnvDefault("ADDR", s.Addr)
	s.Port = utils.GetEnvInt("PORT", s.Port)
	s.LogLevel = utils.GetEnvDefault("LOG_LEVEL", s.LogLevel)
	s.Auth.Secret = utils.GetEnvDefault("AUTH_SECRET", s.Auth.Secret)
}

// ListenAddr はhttp.Serverに渡すアドレスです。
func (s Server) ListenAddr() string {
	return s.Addr + ":" + strconv.Itoa(s.Port)
}

// Validate は設定の整合性を検査します。
func (s Server) Validate() error {
	switch {
	case s.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be > 0", ErrInvalidConfig)
	case s.Authority.OriginTolerance < 0:
		return fmt.Errorf("%w: origin_tolerance must be >= 0", ErrInvalidConfig)
	case s.Authority.AimTolerance <= 0 || s.Authority.AimTolerance > 180:
		return fmt.Errorf("%w: aim_tolerance must be within (0, 180]", ErrInvalidConfig)
	case s.Authority.SpreadTolerance <= 0:
		return fmt.Errorf("%w: spread_tolerance must be > 0", ErrInvalidConfig)
	case s.Arena.MaxSpeed < 0 || s.Arena.PoseSlack < 0:
		return fmt.Errorf("%w: max_speed and pose_slack must be >= 0", ErrInvalidConfig)
	case s.Authority.CooldownSlack < 0:
		return fmt.Errorf("%w: cooldown_slack must be >= 0", ErrInvalidConfig)
	case s.Arena.HalfExtent <= 0 || s.Arena.ActorRadius <= 0 || s.Arena.MaxHP <= 0:
		return fmt.Errorf("%w: arena extents, actor radius and max hp must be > 0", ErrInvalidConfig)
	case len(s.Weapons) == 0:
		return fmt.Errorf("%w: no weapons configured", ErrInvalidConfig)
	}
	if _, ok := s.Weapons.Get(s.DefaultWeapon); !ok {
		return fmt.Errorf("%w: default weapon %q not in catalog", ErrInvalidConfig, s.DefaultWeapon)
	}
	return nil
}
