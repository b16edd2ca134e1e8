// Package weapon は武器の射撃ゲート・拡散・弾道解決を扱います。
// 発砲側のピア(予測)とオーソリティの双方で同じコードが動きます。
package weapon

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"arena/server/domain"
)

// Kind は武器の弾道解決の種類です。
type Kind string

const (
	KindInstant    Kind = "instant"
	KindProjectile Kind = "projectile"
)

// DefaultMaxRange は即着弾トレースの射程です。実質的に無制限として扱います。
const DefaultMaxRange = 1e6

// DefaultDamageType はダメージ種別タグが未設定のときに使う値です。
const DefaultDamageType = "default"

var ErrInvalidConfig = errors.New("weapon: invalid fire config")

// FireConfig は武器アーキタイプごとの射撃設定です。ロード後は変更しません。
// 角度はすべて度 (degree) です。
type FireConfig struct {
	Name string `yaml:"name" json:"name"`
	Kind Kind   `yaml:"kind" json:"kind"`

	BaseSpread         float64 `yaml:"base_spread" json:"base_spread"`
	MaxSpread          float64 `yaml:"max_spread" json:"max_spread"`
	SpreadIncrement    float64 `yaml:"spread_increment" json:"spread_increment"`
	SpreadDecayRate    float64 `yaml:"spread_decay_rate" json:"spread_decay_rate"` // deg/s
	TargetingSpreadMod float64 `yaml:"targeting_spread_mod" json:"targeting_spread_mod"`

	ShotsPerTrigger int     `yaml:"shots_per_trigger" json:"shots_per_trigger"`
	FireRate        float64 `yaml:"fire_rate" json:"fire_rate"` // shots/s
	Automatic       bool    `yaml:"automatic" json:"automatic"`
	MagazineSize    int     `yaml:"magazine_size" json:"magazine_size"`

	ProjectileLife  float64 `yaml:"projectile_life" json:"projectile_life"` // seconds
	ProjectileSpeed float64 `yaml:"projectile_speed" json:"projectile_speed"`
	MaxRange        float64 `yaml:"max_range" json:"max_range"`

	BaseDamage      float64 `yaml:"base_damage" json:"base_damage"`
	Explosive       bool    `yaml:"explosive" json:"explosive"`
	ExplosionDamage float64 `yaml:"explosion_damage" json:"explosion_damage"`
	ExplosionRadius float64 `yaml:"explosion_radius" json:"explosion_radius"`
	DamageType      string  `yaml:"damage_type" json:"damage_type"`
}

// DefaultFireConfig は標準的なプロジェクタイル武器の設定を返します。
func DefaultFireConfig() FireConfig {
	return FireConfig{
		Name:               "rifle",
		Kind:               KindProjectile,
		BaseSpread:         5,
		MaxSpread:          10,
		SpreadIncrement:    1,
		SpreadDecayRate:    10,
		TargetingSpreadMod: 0.25,
		ShotsPerTrigger:    1,
		FireRate:           10,
		Automatic:          true,
		MagazineSize:       30,
		ProjectileLife:     10,
		ProjectileSpeed:    2000,
		MaxRange:           DefaultMaxRange,
		BaseDamage:         100,
		Explosive:          true,
		ExplosionDamage:    0,
		ExplosionRadius:    0,
		DamageType:         DefaultDamageType,
	}
}

// Validate は設定の不変条件を検査します。
func (c FireConfig) Validate() error {
	switch {
	case c.Kind != KindInstant && c.Kind != KindProjectile:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidConfig, c.Name, c.Kind)
	case c.BaseSpread < 0 || c.BaseSpread > c.MaxSpread:
		return fmt.Errorf("%w: %s: base spread %v must be within [0, max spread %v]", ErrInvalidConfig, c.Name, c.BaseSpread, c.MaxSpread)
	case c.MaxSpread >= 90:
		return fmt.Errorf("%w: %s: max spread %v must be below 90", ErrInvalidConfig, c.Name, c.MaxSpread)
	case c.SpreadIncrement < 0 || c.SpreadDecayRate < 0:
		return fmt.Errorf("%w: %s: spread increment and decay must be >= 0", ErrInvalidConfig, c.Name)
	case c.TargetingSpreadMod <= 0 || c.TargetingSpreadMod > 1:
		return fmt.Errorf("%w: %s: targeting spread mod %v must be within (0, 1]", ErrInvalidConfig, c.Name, c.TargetingSpreadMod)
	case c.ShotsPerTrigger < 1 || c.ShotsPerTrigger > domain.MaxPellets:
		return fmt.Errorf("%w: %s: shots per trigger %d must be within [1, %d]", ErrInvalidConfig, c.Name, c.ShotsPerTrigger, domain.MaxPellets)
	case len(c.DamageType) > domain.MaxDamageTypeLen:
		return fmt.Errorf("%w: %s: damage type longer than %d bytes", ErrInvalidConfig, c.Name, domain.MaxDamageTypeLen)
	case c.FireRate <= 0:
		return fmt.Errorf("%w: %s: fire rate must be > 0", ErrInvalidConfig, c.Name)
	case c.MagazineSize < 0:
		return fmt.Errorf("%w: %s: magazine size must be >= 0", ErrInvalidConfig, c.Name)
	case c.Kind == KindProjectile && (c.ProjectileLife <= 0 || c.ProjectileSpeed <= 0):
		return fmt.Errorf("%w: %s: projectile life and speed must be > 0", ErrInvalidConfig, c.Name)
	case c.Kind == KindInstant && c.MaxRange <= 0:
		return fmt.Errorf("%w: %s: max range must be > 0", ErrInvalidConfig, c.Name)
	case c.BaseDamage < 0 || c.ExplosionDamage < 0:
		return fmt.Errorf("%w: %s: damage must be >= 0", ErrInvalidConfig, c.Name)
	case c.ExplosionRadius < 0:
		return fmt.Errorf("%w: %s: explosion radius must be >= 0", ErrInvalidConfig, c.Name)
	case c.ExplosionRadius > 0 && !c.Explosive:
		return fmt.Errorf("%w: %s: explosion radius set on non-explosive weapon", ErrInvalidConfig, c.Name)
	}
	return nil
}

// FireInterval は1発ごとのクールダウン時間です。
func (c FireConfig) FireInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.FireRate)
}

// Life はプロジェクタイルの最大生存時間です。
func (c FireConfig) Life() time.Duration {
	return time.Duration(c.ProjectileLife * float64(time.Second))
}

// Splash は着弾時に範囲ダメージを発生させるかを返します。
func (c FireConfig) Splash() bool {
	return c.Explosive && c.ExplosionRadius > 0
}

// Catalog は名前で引ける武器設定の一覧です。
type Catalog map[string]FireConfig

// DefaultCatalog は既定の武器セットを返します。
func DefaultCatalog() Catalog {
	rifle := DefaultFireConfig()

	pistol := DefaultFireConfig()
	pistol.Name = "pistol"
	pistol.Kind = KindInstant
	pistol.Automatic = false
	pistol.FireRate = 4
	pistol.MagazineSize = 12
	pistol.Explosive = false
	pistol.BaseSpread = 2
	pistol.MaxSpread = 6
	pistol.SpreadIncrement = 2

	shotgun := DefaultFireConfig()
	shotgun.Name = "shotgun"
	shotgun.Kind = KindInstant
	shotgun.Automatic = false
	shotgun.FireRate = 1.5
	shotgun.MagazineSize = 8
	shotgun.ShotsPerTrigger = 8
	shotgun.BaseDamage = 12
	shotgun.Explosive = false
	shotgun.BaseSpread = 8
	shotgun.MaxSpread = 12
	shotgun.SpreadIncrement = 2
	shotgun.DamageType = "buckshot"

	launcher := DefaultFireConfig()
	launcher.Name = "launcher"
	launcher.Automatic = false
	launcher.FireRate = 1
	launcher.MagazineSize = 4
	launcher.ProjectileSpeed = 1200
	launcher.ExplosionDamage = 150
	launcher.ExplosionRadius = 300
	launcher.DamageType = "explosion"

	return Catalog{
		rifle.Name:    rifle,
		pistol.Name:   pistol,
		shotgun.Name:  shotgun,
		launcher.Name: launcher,
	}
}

// Get は名前から設定を引きます。
func (c Catalog) Get(name string) (FireConfig, bool) {
	cfg, ok := c[name]
	return cfg, ok
}

// UnmarshalYAML は武器設定の配列を読み込みます。
// 各エントリは既定値の上に上書きされ、不正な設定はロード時に拒否します。
func (c *Catalog) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: weapons must be a list", ErrInvalidConfig)
	}
	out := make(Catalog, len(value.Content))
	for _, node := range value.Content {
		cfg := DefaultFireConfig()
		cfg.Name = ""
		if err := node.Decode(&cfg); err != nil {
			return fmt.Errorf("decoding weapon at line %d: %w", node.Line, err)
		}
		if cfg.Name == "" {
			return fmt.Errorf("%w: weapon at line %d has no name", ErrInvalidConfig, node.Line)
		}
		if _, dup := out[cfg.Name]; dup {
			return fmt.Errorf("%w: duplicate weapon %q", ErrInvalidConfig, cfg.Name)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		out[cfg.Name] = cfg
	}
	*c = out
	return nil
}
