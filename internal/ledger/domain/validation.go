package domain

// ValidateBalanced ensures a batch of entries forms a balanced double-entry
// posting before it is persisted. This is the one invariant enforced on
// every write path: no unbalanced batch may ever reach the store.
func ValidateBalanced(entries []LedgerEntry) error {
	if len(entries) < 2 {
		return ErrInvalidEntryBatch
	}

	var debitTotal int64
	var creditTotal int64
	for _, entry := range entries {
		if entry.Debit < 0 || entry.Credit < 0 {
			return ErrInvalidEntryAmount
		}
		if entry.Debit > 0 && entry.Credit > 0 {
			return ErrInvalidEntryAmount
		}
		debitTotal += entry.Debit
		creditTotal += entry.Credit
	}

	if debitTotal != creditTotal {
		return ErrUnbalancedBatch
	}
	return nil
}
