package amqp

import (
	"encoding/json"
	"time"
)

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventLoanCreated        EventType = "loan.created"
	EventLoanRepaid         EventType = "loan.repaid"
	EventLoanOverdue        EventType = "loan.overdue"
	// EventAccountReplaced follows an import or reset; EntityID is the account.
	EventAccountReplaced EventType = "account.replaced"
)

type EventType string

// LedgerEvent announces a change to an account's ledger. It carries only
// identifiers; consumers load the current record from the store. VoucherID is
// set so deletions can be mirrored after the record is gone.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	AccountID string    `json:"account_id"`
	EntityID  string    `json:"entity_id"`
	VoucherID string    `json:"voucher_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(typ EventType, accountID, entityID, voucherID string) *LedgerEvent {
	return &LedgerEvent{
		Type:      typ,
		AccountID: accountID,
		EntityID:  entityID,
		VoucherID: voucherID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON creates an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
