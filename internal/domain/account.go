package domain

// UsageAccount is the billable balance record for one identity.
//
// Balance is nil on accounts written before the current schema; those carry
// LegacyBalance instead until the ledger migrates them.
type UsageAccount struct {
	Identity       string
	Balance        *int
	LegacyBalance  *int
	OperationsUsed int
}

// NeedsMigration reports whether only the legacy balance field is present.
func (a UsageAccount) NeedsMigration() bool {
	return a.Balance == nil && a.LegacyBalance != nil
}

// CurrentBalance returns the authoritative balance, or 0 when unset.
func (a UsageAccount) CurrentBalance() int {
	if a.Balance == nil {
		return 0
	}
	return *a.Balance
}
