package handler

import (
	"encoding/json"
	"net/http"
	"slices"

	"arena/server/weapon"
)

// NewWeaponsHandler は武器カタログをJSONで返します。発砲側のピアは同じ設定で予測を行います。
func NewWeaponsHandler(catalog weapon.Catalog) http.HandlerFunc {
	configs := make([]weapon.FireConfig, 0, len(catalog))
	for _, cfg := range catalog {
		configs = append(configs, cfg)
	}
	slices.SortFunc(configs, func(a, b weapon.FireConfig) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(configs); err != nil {
			httpError(w, http.StatusInternalServerError, err)
		}
	}
}

func httpError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
