package amqp

import (
	"encoding/json"
	"time"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
)

// SettlementNotice announces that a reimbursement was settled. It carries
// everything the delivery side needs so consumers never have to call back
// into the ledger database.
type SettlementNotice struct {
	ReimbursementID string    `json:"reimbursementId"`
	ExpenseID       string    `json:"expenseId"`
	UserID          string    `json:"userId"`
	AmountCents     int64     `json:"amountCents"`
	SettledAt       time.Time `json:"settledAt"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewSettlementNotice builds a notice from a settled reimbursement.
func NewSettlementNotice(r core.Reimbursement) *SettlementNotice {
	n := &SettlementNotice{
		ReimbursementID: r.ID,
		ExpenseID:       r.ExpenseID,
		UserID:          r.UserID,
		AmountCents:     r.Amount.Cents,
		Timestamp:       time.Now(),
	}
	if r.ReimbursedAt != nil {
		n.SettledAt = *r.ReimbursedAt
	}
	return n
}

// ToJSON converts the notice to JSON bytes.
func (n *SettlementNotice) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

// SettlementNoticeFromJSON parses a notice from JSON bytes.
func SettlementNoticeFromJSON(data []byte) (*SettlementNotice, error) {
	var n SettlementNotice
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
