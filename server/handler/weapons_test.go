package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"arena/server/weapon"
)

func TestWeaponsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewWeaponsHandler(weapon.DefaultCatalog())(rec, httptest.NewRequest(http.MethodGet, "/weapons", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []weapon.FireConfig
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	names := make([]string, 0, len(got))
	for _, cfg := range got {
		names = append(names, cfg.Name)
	}
	want := []string{"launcher", "pistol", "rifle", "shotgun"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}
	if got[1] != weapon.DefaultCatalog()["pistol"] {
		t.Errorf("pistol = %+v, want catalog entry", got[1])
	}
}
