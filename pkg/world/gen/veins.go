package gen

import (
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/router"
)

// Vein thresholds, kept in float32 precision.
var (
	veinToggleThreshold = float64(float32(0.4))
	veinSkipChance      = float64(float32(0.7))
	veinRichnessLo      = float64(float32(0.1))
	veinRichnessHi      = float64(float32(0.3))
	veinRichnessSpan    = float64(float32(0.6))
	veinGapThreshold    = float64(float32(-0.3))
	veinRawChance       = float32(0.02)
)

const veinEdgeTaper = 20

type veinType struct {
	ore, raw, filler block.State
	minY, maxY       int32
}

// veinTypes picks copper for a positive toggle and iron for a negative one.
type veinTypes struct {
	copper, iron veinType
}

func defaultVeins() veinTypes {
	return veinTypes{
		copper: veinType{ore: block.CopperOre, raw: block.RawCopperBlock, filler: block.Granite, minY: 0, maxY: 50},
		iron:   veinType{ore: block.DeepslateIronOre, raw: block.RawIronBlock, filler: block.Tuff, minY: -60, maxY: -8},
	}
}

// oreVein decides whether a solid block belongs to a large ore vein. sample
// returns the value of a vein slot at the block. The random stream is split
// from the ore seed by absolute position, so the outcome does not depend on
// which chunk asks.
func oreVein(types veinTypes, ore noise.Deriver, x, y, z int32, sample func(router.Slot) float64) (block.State, bool) {
	toggle := sample(router.VeinToggle)
	vt := types.iron
	if toggle > 0 {
		vt = types.copper
	}
	fromTop, fromBottom := vt.maxY-y, y-vt.minY
	if fromTop < 0 || fromBottom < 0 {
		return 0, false
	}
	edge := noise.ClampedLerp(-0.2, 0, float64(min(fromTop, fromBottom))/veinEdgeTaper)
	abs := max(toggle, -toggle)
	if abs+edge < veinToggleThreshold {
		return 0, false
	}

	r := ore.At(x, y, z)
	if float64(r.NextFloat()) > veinSkipChance {
		return 0, false
	}
	if sample(router.VeinRidged) >= 0 {
		return 0, false
	}
	richness := noise.ClampedLerp(veinRichnessLo, veinRichnessHi, (abs-veinToggleThreshold)/(veinRichnessSpan-veinToggleThreshold))
	if float64(r.NextFloat()) < richness && sample(router.VeinGap) > veinGapThreshold {
		if r.NextFloat() < veinRawChance {
			return vt.raw, true
		}
		return vt.ore, true
	}
	return vt.filler, true
}
