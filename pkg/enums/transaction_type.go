package enums

import "fmt"

// TransactionType labels rows in the append-only transactions ledger.
type TransactionType string

const (
	TransactionEscrowHold     TransactionType = "escrow_hold"
	TransactionAdditionalCost TransactionType = "additional_cost"
	TransactionEscrowRelease  TransactionType = "escrow_release"
)

var validTransactionTypes = []TransactionType{
	TransactionEscrowHold,
	TransactionAdditionalCost,
	TransactionEscrowRelease,
}

func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
