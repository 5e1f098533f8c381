/*
waterfall.go - Reinsurance waterfall allocation

PURPOSE:
  Distributes the total premium across an ordered list of bounded layers,
  filling lower bands before higher ones:

    allocated = clamp(totalPremium - lowerBound, 0, upperBound - lowerBound)

VALIDATION:
  Layers must start at zero, be contiguous and non-overlapping
  (layer[i].UpperBound == layer[i+1].LowerBound), and the final layer must
  be able to absorb the total premium. Any violation is LayerConfigError:
  a fatal configuration defect, never retried.

POSTCONDITION:
  The sum of allocations equals the total premium exactly. This is
  verified, not merely expected; a mismatch is reported as an
  AllocationMismatchError.
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// LayerAllocation is one layer's fill.
type LayerAllocation struct {
	Layer     ReinsuranceLayer
	Allocated decimal.Decimal
}

// ValidateLayers checks the static layer stack for gaps, overlaps and
// ordering defects. The input must already be sorted by lower bound.
func ValidateLayers(layers []ReinsuranceLayer) error {
	for i, l := range layers {
		if l.UpperBound.LessThanOrEqual(l.LowerBound) {
			return &LayerConfigError{Layer: l.Name, Detail: "upper bound not above lower bound"}
		}
		if i == 0 {
			if !l.LowerBound.IsZero() {
				return &LayerConfigError{Layer: l.Name, Detail: "first layer must start at zero"}
			}
			continue
		}
		prev := layers[i-1]
		switch {
		case l.LowerBound.GreaterThan(prev.UpperBound):
			return &LayerConfigError{Layer: l.Name, Detail: "gap below layer"}
		case l.LowerBound.LessThan(prev.UpperBound):
			return &LayerConfigError{Layer: l.Name, Detail: "overlaps previous layer"}
		}
	}
	return nil
}

// Waterfall allocates totalPremium across the layers. Layers are sorted by
// lower bound before validation, so callers may pass them in any order.
func Waterfall(totalPremium decimal.Decimal, layers []ReinsuranceLayer) ([]LayerAllocation, error) {
	ordered := make([]ReinsuranceLayer, len(layers))
	copy(ordered, layers)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].LowerBound.LessThan(ordered[j].LowerBound)
	})

	if len(ordered) == 0 {
		if totalPremium.IsZero() {
			return nil, nil
		}
		return nil, &LayerConfigError{Detail: "no layers configured"}
	}
	if err := ValidateLayers(ordered); err != nil {
		return nil, err
	}
	if ordered[len(ordered)-1].UpperBound.LessThan(totalPremium) {
		return nil, &LayerConfigError{
			Layer:  ordered[len(ordered)-1].Name,
			Detail: "final upper bound below total premium",
		}
	}

	allocations := make([]LayerAllocation, len(ordered))
	allocated := decimal.Zero
	for i, l := range ordered {
		fill := totalPremium.Sub(l.LowerBound)
		if fill.IsNegative() {
			fill = decimal.Zero
		}
		if width := l.Width(); fill.GreaterThan(width) {
			fill = width
		}
		allocations[i] = LayerAllocation{Layer: l, Allocated: fill}
		allocated = allocated.Add(fill)
	}

	if !allocated.Equal(totalPremium) {
		return nil, &AllocationMismatchError{Total: totalPremium, Allocated: allocated}
	}
	return allocations, nil
}
