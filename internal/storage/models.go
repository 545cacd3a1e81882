package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CycleSample summarises one polling cycle for auditing.
type CycleSample struct {
	Bucket        time.Time
	RowsFetched   int
	AlertsEmitted int
	Status        string
	Error         *string
	CreatedAt     time.Time
}

// AlertRecord captures an emitted alert for the show/export commands.
type AlertRecord struct {
	ID        uuid.UUID
	Player    string
	TeamPos   string
	Kind      string
	AddDelta  int
	DropDelta int
	AddRate   decimal.Decimal
	DropRate  decimal.Decimal
	Observed  time.Time
	CreatedAt time.Time
}
