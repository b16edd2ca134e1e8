package application

import (
	"errors"
	"fmt"

	"arena/server/domain"
	"arena/server/weapon"
	"arena/utils"
)

// Validator はfire-requestの形式検証を行います。
type Validator interface {
	Fire(cfg weapon.FireConfig, req *domain.FireRequestPayload) error
}

// SimpleValidator は最低限の入力検証を提供するデフォルト実装。
type SimpleValidator struct{}

func (SimpleValidator) Fire(cfg weapon.FireConfig, req *domain.FireRequestPayload) error {
	if req == nil {
		return errors.New("fire request is required")
	}
	if !utils.FiniteVec(req.Origin) {
		return fmt.Errorf("invalid origin: %+v", req.Origin)
	}
	if !utils.FiniteVec(req.Aim) || !req.Aim.IsUnit(weapon.DirectionEpsilon) {
		return fmt.Errorf("invalid aim: %+v", req.Aim)
	}
	if len(req.Directions) == 0 || len(req.Directions) > domain.MaxPellets {
		return fmt.Errorf("invalid pellet count: %d", len(req.Directions))
	}
	if len(req.Directions) != cfg.ShotsPerTrigger {
		return fmt.Errorf("pellet count %d does not match weapon %q (%d)", len(req.Directions), cfg.Name, cfg.ShotsPerTrigger)
	}
	for i, dir := range req.Directions {
		shot := weapon.ShotRequest{Origin: req.Origin, Direction: dir}
		if err := shot.Validate(); err != nil {
			return fmt.Errorf("pellet %d: %w", i, err)
		}
	}
	return nil
}
