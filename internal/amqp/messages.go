package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"sewa/internal/sheets"
)

// Message kinds carried on the sync queue.
const (
	KindBillRecorded     = "bill_recorded"
	KindTenantRegistered = "tenant_registered"
)

// RowSyncMessage announces that a row was stored locally and should be
// mirrored. It carries only the row's stable key; the worker reads the row
// itself from the database.
type RowSyncMessage struct {
	Kind      string    `json:"kind"`
	Table     string    `json:"table"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBillRecordedMessage creates the message for a ledger record.
func NewBillRecordedMessage(recordID string) *RowSyncMessage {
	return &RowSyncMessage{
		Kind:      KindBillRecorded,
		Table:     sheets.TableRecords,
		Key:       recordID,
		Timestamp: time.Now(),
	}
}

// NewTenantRegisteredMessage creates the message for a directory row.
func NewTenantRegisteredMessage(tenantID string) *RowSyncMessage {
	return &RowSyncMessage{
		Kind:      KindTenantRegistered,
		Table:     sheets.TableTenants,
		Key:       tenantID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RowSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RowSyncMessageFromJSON decodes a message and checks that it names a
// known table.
func RowSyncMessageFromJSON(data []byte) (*RowSyncMessage, error) {
	var msg RowSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Table {
	case sheets.TableRecords, sheets.TableTenants:
	default:
		return nil, fmt.Errorf("unknown table %q", msg.Table)
	}
	return &msg, nil
}
