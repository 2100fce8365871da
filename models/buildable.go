package models

import (
	"github.com/shopspring/decimal"
)

const (
	PartStatusMissing = "missing"
	PartStatusLow     = "low"
	PartStatusOK      = "ok"
)

// buildableCount is the number of complete units the current stock allows.
// nil means the device has no BOM.
func buildableCount(entries []*BomEntry) *int {
	if len(entries) == 0 {
		return nil
	}
	count := -1
	for _, e := range entries {
		if e.Part == nil || e.QuantityRequired <= 0 {
			continue
		}
		n := e.Part.Quantity / e.QuantityRequired
		if count < 0 || n < count {
			count = n
		}
	}
	if count < 0 {
		count = 0
	}
	return &count
}

// buildablePercentage averages, over all BOM lines, how much of one unit's
// requirement is in stock (each line capped at 100%). Halves round to even.
func buildablePercentage(entries []*BomEntry) int {
	hundred := decimal.NewFromInt(100)
	sum := decimal.Zero
	lines := 0
	for _, e := range entries {
		if e.Part == nil || e.QuantityRequired <= 0 {
			continue
		}
		pct := decimal.NewFromInt(int64(e.Part.Quantity)).
			Div(decimal.NewFromInt(int64(e.QuantityRequired))).
			Mul(hundred)
		sum = sum.Add(decimal.Min(pct, hundred))
		lines++
	}
	if lines == 0 {
		return 0
	}
	return int(sum.Div(decimal.NewFromInt(int64(lines))).RoundBank(0).IntPart())
}

// partStatus compares stock with the largest requirement of any device.
func partStatus(available int, required []int) string {
	maxRequired := 0
	for _, r := range required {
		if r > maxRequired {
			maxRequired = r
		}
	}
	switch {
	case maxRequired == 0:
		return ""
	case available < maxRequired:
		return PartStatusMissing
	case available < 2*maxRequired:
		return PartStatusLow
	default:
		return PartStatusOK
	}
}
