package inventory

import (
	"math"

	"cafehub/internal/models"
)

var unitScale = map[models.InventoryUnit]struct {
	base   models.InventoryUnit
	factor float64
}{
	models.UnitGram:       {models.UnitGram, 1},
	models.UnitKilogram:   {models.UnitGram, 1000},
	models.UnitMilliliter: {models.UnitMilliliter, 1},
	models.UnitLiter:      {models.UnitMilliliter, 1000},
}

// convert expresses qty given in unit from in unit to. An empty from means the
// quantity is already in the ingredient's unit.
func convert(qty float64, from, to models.InventoryUnit) (float64, bool) {
	if from == "" || from == to {
		return qty, true
	}
	f, okFrom := unitScale[from]
	t, okTo := unitScale[to]
	if !okFrom || !okTo || f.base != t.base {
		return 0, false
	}
	return round(qty * f.factor / t.factor), true
}

// round trims float noise so ledger sums stay exact at the precision stock is tracked in.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
