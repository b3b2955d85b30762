package block

import "testing"

func TestByName(t *testing.T) {
	tests := []struct {
		name string
		want State
	}{
		{"stone", Stone},
		{"minecraft:grass_block", GrassBlock},
		{"minecraft:deepslate_iron_ore", DeepslateIronOre},
		{"air", Air},
	}
	for _, tt := range tests {
		got, ok := ByName(tt.name)
		if !ok {
			t.Fatalf("ByName(%q) not found", tt.name)
		}
		if got != tt.want {
			t.Errorf("ByName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
	if _, ok := ByName("minecraft:diamond_block"); ok {
		t.Error("unknown block resolved")
	}
}

func TestNamesRoundTrip(t *testing.T) {
	for s := State(0); int(s) < Count; s++ {
		got, ok := ByName(s.Name())
		if !ok || got != s {
			t.Errorf("ByName(%q) = %v, %v; want %v", s.Name(), got, ok, s)
		}
	}
}

func TestClassification(t *testing.T) {
	if !CaveAir.IsAir() || Stone.IsAir() {
		t.Error("IsAir misclassified")
	}
	if !Water.IsFluid() || !Lava.IsFluid() || Sand.IsFluid() {
		t.Error("IsFluid misclassified")
	}
	if !Stone.IsSolid() || Water.IsSolid() || Air.IsSolid() {
		t.Error("IsSolid misclassified")
	}
}
