// Package core provides the ledger's domain types, money handling, and the
// invariants shared by every ledger operation.
package core

// Euros returns the euro value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Euros() float64 {
	return float64(m.Cents) / 100.0
}
