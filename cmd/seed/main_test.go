package main

import "testing"

func TestLoadProviders(t *testing.T) {
	providers, err := loadProviders()
	if err != nil {
		t.Fatalf("loadProviders() error = %v", err)
	}
	if len(providers) == 0 {
		t.Fatal("no providers in seed file")
	}

	seen := make(map[string]bool)
	inactive := 0
	for _, p := range providers {
		if seen[p.ID] {
			t.Errorf("duplicate id %s for %s", p.ID, p.Name)
		}
		seen[p.ID] = true

		if p.Name == "" || p.Phone == "" {
			t.Errorf("provider missing name or phone: %+v", p)
		}
		// Karachi bounding box
		if p.Longitude < 66.8 || p.Longitude > 67.4 || p.Latitude < 24.7 || p.Latitude > 25.1 {
			t.Errorf("%s at (%v, %v) is outside Karachi; coordinates swapped?", p.Name, p.Longitude, p.Latitude)
		}
		if !p.IsActive {
			inactive++
		}
	}
	if inactive != 1 {
		t.Errorf("inactive providers = %d, want 1", inactive)
	}

	again, err := loadProviders()
	if err != nil {
		t.Fatal(err)
	}
	if again[0].ID != providers[0].ID {
		t.Errorf("ids are not stable across loads: %s != %s", again[0].ID, providers[0].ID)
	}
}
