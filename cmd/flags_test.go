package cmd

import (
	"github.com/paulmach/orb"
	"github.com/rotblauer/tilestream/hierarchy"
	"github.com/rotblauer/tilestream/params"
	"github.com/spf13/viper"
	"testing"
)

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("-105.3, 39.9,-105.1,40.1")
	if err != nil {
		t.Fatal(err)
	}
	want := orb.Bound{Min: orb.Point{-105.3, 39.9}, Max: orb.Point{-105.1, 40.1}}
	if b != want {
		t.Errorf("expected %v, got %v", want, b)
	}
	for _, bad := range []string{"", "1,2,3", "1,2,a,4", "3,3,1,1"} {
		if _, err := parseBBox(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestParseScreen(t *testing.T) {
	w, h, err := parseScreen("1024X768")
	if err != nil {
		t.Fatal(err)
	}
	if w != 1024 || h != 768 {
		t.Errorf("expected 1024x768, got %dx%d", w, h)
	}
	for _, bad := range []string{"1024", "0x10", "ax10"} {
		if _, _, err := parseScreen(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestConfigFromFlags(t *testing.T) {
	defer viper.Reset()
	viper.Set("max-concurrent", 3)
	viper.Set("strategy", "no-overlap")
	viper.Set("max-zoom", 5)
	c, err := tilesetConfigFromFlags()
	if err != nil {
		t.Fatal(err)
	}
	if c.MaxConcurrentRequests != 3 || c.RefinementStrategy != params.RefineNoOverlap {
		t.Errorf("expected flags applied, got %+v", c)
	}

	viper.Set("hierarchy", "quadtree")
	viper.Set("root-zoom", 2)
	h, err := hierarchyFromFlags()
	if err != nil {
		t.Fatal(err)
	}
	if roots := h.Roots(); len(roots) != 16 {
		t.Errorf("expected 16 roots at zoom 2, got %d", len(roots))
	}
	if _, ok := h.(*hierarchy.Quadtree); !ok {
		t.Errorf("expected a quadtree, got %T", h)
	}

	viper.Set("strategy", "sideways")
	if _, err := tilesetConfigFromFlags(); err == nil {
		t.Error("expected unknown strategy rejected")
	}
	viper.Set("hierarchy", "manifest")
	if _, err := hierarchyFromFlags(); err == nil {
		t.Error("expected manifest hierarchy to need a path")
	}
}
