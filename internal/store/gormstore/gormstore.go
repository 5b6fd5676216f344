package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/cipherledger/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgIntegrityViolationClass = "23"
	sqliteConstraintCode      = 19
	errorOperationStore       = "store"
	errorSubjectEntry         = "entry"
	errorSubjectSchema        = "schema"
	errorCodeConstraint       = "constraint"
	errorCodeCount            = "count"
	errorCodeDecrypt          = "decrypt"
	errorCodeDelete           = "delete"
	errorCodeEncrypt          = "encrypt"
	errorCodeGet              = "get"
	errorCodeInsert           = "insert"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeMigrate          = "migrate"
	errorCodeReplace          = "replace"
)

// ErrInvalidStoreConfig reports a missing database handle or cipher.
var ErrInvalidStoreConfig = errors.New("invalid store config")

// Store implements ledger.Store using GORM. The account column is sealed with
// a ledger.FieldCipher on every write and opened on every read.
type Store struct {
	db     *gorm.DB
	cipher ledger.FieldCipher
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, cipher ledger.FieldCipher) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database is nil", ErrInvalidStoreConfig)
	}
	if cipher == nil {
		return nil, fmt.Errorf("%w: field cipher is nil", ErrInvalidStoreConfig)
	}
	return &Store{db: db, cipher: cipher}, nil
}

// Migrate creates or updates the transactions table.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(&LedgerEntry{}); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, ledger.StoreFailure(err))
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, cipher: store.cipher})
	})
}

func (store *Store) ListEntries(ctx context.Context, pageRequest ledger.PageRequest) ([]ledger.Entry, int64, error) {
	var total int64
	if err := store.db.WithContext(ctx).Model(&LedgerEntry{}).Count(&total).Error; err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeCount, ledger.StoreFailure(err))
	}

	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Order("id ASC").
		Offset(int(pageRequest.Offset())).
		Limit(pageRequest.Size()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeList, ledger.StoreFailure(err))
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := store.mapLedgerEntry(row)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

func (store *Store) GetEntry(ctx context.Context, entryID ledger.EntryID) (ledger.Entry, error) {
	var row LedgerEntry
	err := store.db.WithContext(ctx).Where("id = ?", entryID.Int64()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrEntryNotFound)
		}
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.StoreFailure(err))
	}
	return store.mapLedgerEntry(row)
}

func (store *Store) InsertEntry(ctx context.Context, entryInput ledger.EntryInput) (ledger.Entry, error) {
	row, err := store.newLedgerEntry(entryInput)
	if err != nil {
		return ledger.Entry{}, err
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, classifyWriteError(err, errorCodeInsert), ledger.StoreFailure(err))
	}
	entryID, err := ledger.NewEntryID(row.ID)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, ledger.StoreFailure(err))
	}
	return entryInput.ToEntry(entryID), nil
}

func (store *Store) ReplaceEntry(ctx context.Context, entryID ledger.EntryID, entryInput ledger.EntryInput) (ledger.Entry, error) {
	row, err := store.newLedgerEntry(entryInput)
	if err != nil {
		return ledger.Entry{}, err
	}
	result := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Where("id = ?", entryID.Int64()).
		Updates(map[string]interface{}{
			"transaction_id": row.TransactionID,
			"account":        row.Account,
			"in_debt":        row.InDebt,
			"have":           row.Have,
			"time":           row.Time,
		})
	if result.Error != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, classifyWriteError(result.Error, errorCodeReplace), ledger.StoreFailure(result.Error))
	}
	if result.RowsAffected == 0 {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeReplace, ledger.ErrEntryNotFound)
	}
	return entryInput.ToEntry(entryID), nil
}

func (store *Store) DeleteEntry(ctx context.Context, entryID ledger.EntryID) error {
	result := store.db.WithContext(ctx).Where("id = ?", entryID.Int64()).Delete(&LedgerEntry{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeDelete, ledger.StoreFailure(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEntry, errorCodeDelete, ledger.ErrEntryNotFound)
	}
	return nil
}

func (store *Store) newLedgerEntry(entryInput ledger.EntryInput) (LedgerEntry, error) {
	token, err := store.cipher.EncryptAtRest(entryInput.Account().Plaintext())
	if err != nil {
		return LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeEncrypt, ledger.EncryptionFailure(err))
	}
	return LedgerEntry{
		TransactionID: entryInput.CorrelationID().String(),
		Account:       token,
		InDebt:        newAmountColumn(entryInput.DebitAmount().Decimal()),
		Have:          newAmountColumn(entryInput.CreditAmount().Decimal()),
		Time:          entryInput.PostedAt().UTC(),
	}, nil
}

func (store *Store) mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	plaintext, err := store.cipher.DecryptAtRest(row.Account)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeDecrypt, ledger.EncryptionFailure(err))
	}
	entryID, err := ledger.NewEntryID(row.ID)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, ledger.StoreFailure(err))
	}
	correlationID, err := ledger.NewCorrelationID(row.TransactionID)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, ledger.StoreFailure(err))
	}
	account, err := ledger.NewAccountNumber(plaintext)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, ledger.StoreFailure(err))
	}
	debitAmount, err := ledger.NewAmount(row.InDebt.Decimal)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, ledger.StoreFailure(err))
	}
	creditAmount, err := ledger.NewAmount(row.Have.Decimal)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, ledger.StoreFailure(err))
	}
	return ledger.Entry{
		ID:            entryID,
		CorrelationID: correlationID,
		Account:       account,
		DebitAmount:   debitAmount,
		CreditAmount:  creditAmount,
		PostedAt:      row.Time.UTC(),
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

// classifyWriteError reports integrity violations under a dedicated code.
func classifyWriteError(err error, fallback string) string {
	if isConstraintViolation(err) {
		return errorCodeConstraint
	}
	return fallback
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == pgIntegrityViolationClass
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
