package noise

import "strings"

// Seeds holds the derivers every world-generation stage splits its randomness from.
// It is immutable after NewSeeds and safe to share across goroutines.
type Seeds struct {
	Seed    int64
	Legacy  bool
	Base    Deriver
	Aquifer Deriver
	Ore     Deriver
}

// NewSeeds derives the base, aquifer and ore streams of a world seed.
func NewSeeds(seed int64, legacy bool) *Seeds {
	base := NewRandom(seed, legacy).Deriver()
	return &Seeds{
		Seed:    seed,
		Legacy:  legacy,
		Base:    base,
		Aquifer: base.FromHash("minecraft:aquifer").Deriver(),
		Ore:     base.FromHash("minecraft:ore").Deriver(),
	}
}

// DoublePerlin builds the named noise from the base deriver. Bare ids are
// placed in the minecraft namespace.
func (s *Seeds) DoublePerlin(id string, p Params) (*DoublePerlin, error) {
	return NewDoublePerlin(s.Base.FromHash(Namespaced(id)), p, s.Legacy)
}

// Namespaced prefixes id with "minecraft:" unless it already has a namespace.
func Namespaced(id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return "minecraft:" + id
}
