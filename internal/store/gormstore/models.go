package gormstore

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const (
	dialectPostgres   = "postgres"
	columnTypeNumeric = "numeric"
	columnTypeText    = "text"
)

// LedgerEntry mirrors the transactions table. Account holds an at-rest token.
type LedgerEntry struct {
	ID            int64        `gorm:"column:id;primaryKey;autoIncrement"`
	TransactionID string       `gorm:"column:transaction_id;type:text;not null;index:idx_transactions_transaction_id"`
	Account       string       `gorm:"column:account;type:text;not null"`
	InDebt        amountColumn `gorm:"column:in_debt"`
	Have          amountColumn `gorm:"column:have"`
	Time          time.Time    `gorm:"column:time;not null"`
}

func (LedgerEntry) TableName() string { return "transactions" }

// amountColumn is numeric on PostgreSQL and text elsewhere. SQLite numeric
// affinity converts long decimals to REAL and drops digits; text keeps the
// decimal string exact.
type amountColumn struct {
	decimal.Decimal
}

func newAmountColumn(value decimal.Decimal) amountColumn {
	return amountColumn{Decimal: value}
}

// GormDBDataType picks the column type for the connected dialect.
func (amountColumn) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == dialectPostgres {
		return columnTypeNumeric
	}
	return columnTypeText
}
