package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/cipherledger/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgIntegrityViolationClass = "23"
	errorOperationStore       = "store"
	errorSubjectEntry         = "entry"
	errorSubjectSchema        = "schema"
	errorSubjectTransaction   = "transaction"
	errorCodeBegin            = "begin"
	errorCodeCommit           = "commit"
	errorCodeConstraint       = "constraint"
	errorCodeCount            = "count"
	errorCodeDecrypt          = "decrypt"
	errorCodeDelete           = "delete"
	errorCodeEncrypt          = "encrypt"
	errorCodeEnsure           = "ensure"
	errorCodeGet              = "get"
	errorCodeInsert           = "insert"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeReplace          = "replace"

	sqlCreateTable = `
		create table if not exists transactions (
			id bigserial primary key,
			transaction_id text not null,
			account text not null,
			in_debt numeric,
			have numeric,
			"time" timestamp not null
		)
	`

	sqlCreateIndex = `
		create index if not exists idx_transactions_transaction_id on transactions(transaction_id)
	`

	sqlInsertEntry = `
		insert into transactions(transaction_id, account, in_debt, have, "time")
		values ($1, $2, $3::numeric, $4::numeric, $5)
		returning id
	`

	sqlSelectEntry = `
		select id, transaction_id, account, coalesce(in_debt, 0)::text, coalesce(have, 0)::text, "time"
		from transactions
		where id = $1
	`

	sqlCountEntries = `select count(*) from transactions`

	sqlListEntries = `
		select id, transaction_id, account, coalesce(in_debt, 0)::text, coalesce(have, 0)::text, "time"
		from transactions
		order by id asc
		offset $1
		limit $2
	`

	sqlReplaceEntry = `
		update transactions
		set transaction_id = $2, account = $3, in_debt = $4::numeric, have = $5::numeric, "time" = $6
		where id = $1
	`

	sqlDeleteEntry = `delete from transactions where id = $1`
)

// ErrInvalidStoreConfig reports a missing pool or cipher.
var ErrInvalidStoreConfig = errors.New("invalid store config")

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// queries holds the statements shared by Store and TxStore.
type queries struct {
	db     querier
	cipher ledger.FieldCipher
}

// Store implements ledger.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements ledger.Store for an active transaction.
type TxStore struct {
	queries
	tx pgx.Tx
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool, cipher ledger.FieldCipher) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: pool is nil", ErrInvalidStoreConfig)
	}
	if cipher == nil {
		return nil, fmt.Errorf("%w: field cipher is nil", ErrInvalidStoreConfig)
	}
	return &Store{queries: queries{db: pool, cipher: cipher}, pool: pool}, nil
}

// EnsureSchema creates the transactions table and its index when absent.
func (store *Store) EnsureSchema(ctx context.Context) error {
	for _, statement := range []string{sqlCreateTable, sqlCreateIndex} {
		if _, err := store.pool.Exec(ctx, statement); err != nil {
			return wrapStoreError(errorSubjectSchema, errorCodeEnsure, ledger.StoreFailure(err))
		}
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, ledger.StoreFailure(err))
	}
	return runInTx(ctx, tx, store.cipher, fn)
}

// WithTx opens a savepoint inside the active transaction.
func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	nested, err := store.tx.Begin(ctx)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, ledger.StoreFailure(err))
	}
	return runInTx(ctx, nested, store.cipher, fn)
}

func runInTx(ctx context.Context, tx pgx.Tx, cipher ledger.FieldCipher, fn func(ctx context.Context, txStore ledger.Store) error) error {
	transactionStore := &TxStore{queries: queries{db: tx, cipher: cipher}, tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, ledger.StoreFailure(err))
	}
	return nil
}

func (q queries) ListEntries(ctx context.Context, pageRequest ledger.PageRequest) ([]ledger.Entry, int64, error) {
	var total int64
	if err := q.db.QueryRow(ctx, sqlCountEntries).Scan(&total); err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeCount, ledger.StoreFailure(err))
	}
	rows, err := q.db.Query(ctx, sqlListEntries, pageRequest.Offset(), pageRequest.Size())
	if err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeList, ledger.StoreFailure(err))
	}
	defer rows.Close()

	entries := make([]ledger.Entry, 0, pageRequest.Size())
	for rows.Next() {
		entry, err := q.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeList, ledger.StoreFailure(err))
	}
	return entries, total, nil
}

func (q queries) GetEntry(ctx context.Context, entryID ledger.EntryID) (ledger.Entry, error) {
	entry, err := q.scanEntry(q.db.QueryRow(ctx, sqlSelectEntry, entryID.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrEntryNotFound)
		}
		return ledger.Entry{}, err
	}
	return entry, nil
}

func (q queries) InsertEntry(ctx context.Context, entryInput ledger.EntryInput) (ledger.Entry, error) {
	token, err := q.sealAccount(entryInput)
	if err != nil {
		return ledger.Entry{}, err
	}
	var idValue int64
	err = q.db.QueryRow(ctx, sqlInsertEntry,
		entryInput.CorrelationID().String(),
		token,
		entryInput.DebitAmount().String(),
		entryInput.CreditAmount().String(),
		entryInput.PostedAt().UTC(),
	).Scan(&idValue)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, classifyWriteError(err, errorCodeInsert), ledger.StoreFailure(err))
	}
	entryID, err := ledger.NewEntryID(idValue)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, ledger.StoreFailure(err))
	}
	return entryInput.ToEntry(entryID), nil
}

func (q queries) ReplaceEntry(ctx context.Context, entryID ledger.EntryID, entryInput ledger.EntryInput) (ledger.Entry, error) {
	token, err := q.sealAccount(entryInput)
	if err != nil {
		return ledger.Entry{}, err
	}
	tag, err := q.db.Exec(ctx, sqlReplaceEntry,
		entryID.Int64(),
		entryInput.CorrelationID().String(),
		token,
		entryInput.DebitAmount().String(),
		entryInput.CreditAmount().String(),
		entryInput.PostedAt().UTC(),
	)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, classifyWriteError(err, errorCodeReplace), ledger.StoreFailure(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeReplace, ledger.ErrEntryNotFound)
	}
	return entryInput.ToEntry(entryID), nil
}

func (q queries) DeleteEntry(ctx context.Context, entryID ledger.EntryID) error {
	tag, err := q.db.Exec(ctx, sqlDeleteEntry, entryID.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeDelete, ledger.StoreFailure(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectEntry, errorCodeDelete, ledger.ErrEntryNotFound)
	}
	return nil
}

func (q queries) sealAccount(entryInput ledger.EntryInput) (string, error) {
	token, err := q.cipher.EncryptAtRest(entryInput.Account().Plaintext())
	if err != nil {
		return "", wrapStoreError(errorSubjectEntry, errorCodeEncrypt, ledger.EncryptionFailure(err))
	}
	return token, nil
}

// scanEntry returns pgx.ErrNoRows unwrapped so callers can map it.
func (q queries) scanEntry(row pgx.Row) (ledger.Entry, error) {
	var (
		idValue       int64
		correlationID string
		token         string
		debitValue    string
		creditValue   string
		postedAt      time.Time
	)
	if err := row.Scan(&idValue, &correlationID, &token, &debitValue, &creditValue, &postedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Entry{}, err
		}
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.StoreFailure(err))
	}
	plaintext, err := q.cipher.DecryptAtRest(token)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeDecrypt, ledger.EncryptionFailure(err))
	}
	entry, err := mapEntry(idValue, correlationID, plaintext, debitValue, creditValue, postedAt)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, ledger.StoreFailure(err))
	}
	return entry, nil
}

func mapEntry(idValue int64, correlationValue string, accountValue string, debitValue string, creditValue string, postedAt time.Time) (ledger.Entry, error) {
	entryID, err := ledger.NewEntryID(idValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	correlationID, err := ledger.NewCorrelationID(correlationValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	account, err := ledger.NewAccountNumber(accountValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	debitDecimal, err := decimal.NewFromString(debitValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	debitAmount, err := ledger.NewAmount(debitDecimal)
	if err != nil {
		return ledger.Entry{}, err
	}
	creditDecimal, err := decimal.NewFromString(creditValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	creditAmount, err := ledger.NewAmount(creditDecimal)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		ID:            entryID,
		CorrelationID: correlationID,
		Account:       account,
		DebitAmount:   debitAmount,
		CreditAmount:  creditAmount,
		PostedAt:      postedAt.UTC(),
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func classifyWriteError(err error, fallback string) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == pgIntegrityViolationClass {
		return errorCodeConstraint
	}
	return fallback
}
