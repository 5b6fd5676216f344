package ledger

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryID is the store-assigned surrogate key of an entry. The zero value
// means no id.
type EntryID int64

// NewEntryID validates a stored identifier.
func NewEntryID(raw int64) (EntryID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidEntryID)
	}
	return EntryID(raw), nil
}

// ParseEntryID parses a decimal identifier such as a URL path segment.
func ParseEntryID(raw string) (EntryID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, ErrMissingEntryID
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a number", ErrInvalidEntryID)
	}
	return NewEntryID(value)
}

// Int64 returns the raw identifier.
func (id EntryID) Int64() int64 {
	return int64(id)
}

// IsZero reports whether no id is set.
func (id EntryID) IsZero() bool {
	return id == 0
}

// String returns the decimal form.
func (id EntryID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// CorrelationID ties related postings together. It is not unique.
type CorrelationID struct {
	value string
}

// NewCorrelationID validates a correlation id.
func NewCorrelationID(raw string) (CorrelationID, error) {
	if strings.TrimSpace(raw) == "" {
		return CorrelationID{}, fmt.Errorf("%w: empty value", ErrInvalidCorrelationID)
	}
	return CorrelationID{value: raw}, nil
}

// String returns the correlation id.
func (id CorrelationID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id CorrelationID) IsZero() bool {
	return id.value == ""
}

// AccountNumber is a plaintext account identifier. Formatting it with fmt
// renders a redacted form; Plaintext must be called explicitly.
type AccountNumber struct {
	value string
}

// NewAccountNumber validates an account identifier.
func NewAccountNumber(raw string) (AccountNumber, error) {
	if strings.TrimSpace(raw) == "" {
		return AccountNumber{}, fmt.Errorf("%w: empty value", ErrInvalidAccount)
	}
	return AccountNumber{value: raw}, nil
}

// Plaintext returns the account identifier in the clear.
func (account AccountNumber) Plaintext() string {
	return account.value
}

// String returns a redacted form safe for logs.
func (account AccountNumber) String() string {
	if account.value == "" {
		return ""
	}
	return redactedAccount
}

// GoString returns a redacted form safe for logs.
func (account AccountNumber) GoString() string {
	return account.String()
}

// IsZero reports whether the account is unset.
func (account AccountNumber) IsZero() bool {
	return account.value == ""
}

// Amount is a non-negative fixed-point monetary amount.
type Amount struct {
	value decimal.Decimal
}

// NewAmount validates a non-negative amount.
func NewAmount(value decimal.Decimal) (Amount, error) {
	if value.IsNegative() {
		return Amount{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Amount{value: value}, nil
}

// ParseAmount parses a decimal string such as "50" or "50.25".
func ParseAmount(raw string) (Amount, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Amount{}, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: not a decimal number", ErrInvalidAmount)
	}
	return NewAmount(value)
}

// ZeroAmount returns an amount of zero.
func ZeroAmount() Amount {
	return Amount{value: decimal.Zero}
}

// Decimal returns the underlying decimal value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// String returns the canonical decimal representation.
func (amount Amount) String() string {
	return amount.value.String()
}

// IsZero reports whether the amount equals zero.
func (amount Amount) IsZero() bool {
	return amount.value.IsZero()
}

// IsPositive reports whether the amount is strictly greater than zero.
func (amount Amount) IsPositive() bool {
	return amount.value.IsPositive()
}

// Equal compares amounts numerically so 50 equals 50.00.
func (amount Amount) Equal(other Amount) bool {
	return amount.value.Equal(other.value)
}

// Entry is the decrypted view of one stored posting.
type Entry struct {
	ID            EntryID
	CorrelationID CorrelationID
	Account       AccountNumber
	DebitAmount   Amount
	CreditAmount  Amount
	PostedAt      time.Time
}

// EntryInput is a validated set of fields destined for the store.
type EntryInput struct {
	correlationID CorrelationID
	account       AccountNumber
	debitAmount   Amount
	creditAmount  Amount
	postedAt      time.Time
}

// NewEntryInput validates the fields of a write.
func NewEntryInput(correlationID CorrelationID, account AccountNumber, debitAmount Amount, creditAmount Amount, postedAt time.Time) (EntryInput, error) {
	if correlationID.IsZero() {
		return EntryInput{}, fmt.Errorf("%w: correlation id is required", ErrInvalidCorrelationID)
	}
	if account.IsZero() {
		return EntryInput{}, fmt.Errorf("%w: account is required", ErrInvalidAccount)
	}
	if debitAmount.value.IsNegative() || creditAmount.value.IsNegative() {
		return EntryInput{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	if postedAt.IsZero() {
		return EntryInput{}, fmt.Errorf("%w: posting time is required", ErrInvalidPostedAt)
	}
	return EntryInput{
		correlationID: correlationID,
		account:       account,
		debitAmount:   debitAmount,
		creditAmount:  creditAmount,
		postedAt:      postedAt,
	}, nil
}

// CorrelationID returns the correlation id.
func (input EntryInput) CorrelationID() CorrelationID { return input.correlationID }

// Account returns the plaintext account.
func (input EntryInput) Account() AccountNumber { return input.account }

// DebitAmount returns the debit amount.
func (input EntryInput) DebitAmount() Amount { return input.debitAmount }

// CreditAmount returns the credit amount.
func (input EntryInput) CreditAmount() Amount { return input.creditAmount }

// PostedAt returns the posting time.
func (input EntryInput) PostedAt() time.Time { return input.postedAt }

// ToEntry returns the view the store holds after assigning id.
func (input EntryInput) ToEntry(id EntryID) Entry {
	return Entry{
		ID:            id,
		CorrelationID: input.correlationID,
		Account:       input.account,
		DebitAmount:   input.debitAmount,
		CreditAmount:  input.creditAmount,
		PostedAt:      input.postedAt,
	}
}

// EntryRequest carries caller-supplied plaintext fields for create and update.
// Nil pointers are missing fields.
type EntryRequest struct {
	CorrelationID *string
	Account       *string
	DebitAmount   *decimal.Decimal
	CreditAmount  *decimal.Decimal
	PostedAt      *time.Time
}

// SealedEntryRequest is an EntryRequest whose CorrelationID and Account are
// still transport cipher-text.
type SealedEntryRequest struct {
	CorrelationID *string
	Account       *string
	DebitAmount   *decimal.Decimal
	CreditAmount  *decimal.Decimal
	PostedAt      *time.Time
}

// TransferRequest carries the arguments of a double-entry transfer. The
// correlation id and both accounts are transport cipher-text; Amount is a
// plaintext decimal string.
type TransferRequest struct {
	CorrelationID      *string
	SourceAccount      *string
	DestinationAccount *string
	Amount             *string
}

// Transfer is the linked debit/credit pair written by ProcessTransfer.
type Transfer struct {
	CorrelationID CorrelationID
	Debit         Entry
	Credit        Entry
}

// PageRequest selects one page of entries ordered by id.
type PageRequest struct {
	number int
	size   int
}

// NewPageRequest validates pagination bounds.
func NewPageRequest(number int, size int) (PageRequest, error) {
	var violations []FieldViolation
	sizeValid := size > 0 && size <= MaxPageSize
	// The row offset number*size must fit in an int64.
	if number < 0 || (sizeValid && int64(number) > math.MaxInt64/int64(size)) {
		violations = append(violations, FieldViolation{Field: FieldPage, Err: ErrInvalidPageNumber})
	}
	if !sizeValid {
		violations = append(violations, FieldViolation{Field: FieldSize, Err: ErrInvalidPageSize})
	}
	if len(violations) > 0 {
		return PageRequest{}, NewValidationError(violations...)
	}
	return PageRequest{number: number, size: size}, nil
}

// DefaultPageRequest returns the first page at the default size.
func DefaultPageRequest() PageRequest {
	return PageRequest{number: DefaultPageNumber, size: DefaultPageSize}
}

// Number returns the zero-based page number.
func (request PageRequest) Number() int { return request.number }

// Size returns the page size.
func (request PageRequest) Size() int { return request.size }

// Offset returns the number of rows preceding the page.
func (request PageRequest) Offset() int64 {
	return int64(request.number) * int64(request.size)
}

// Page is one page of decrypted entries.
type Page struct {
	Entries       []Entry
	Number        int
	Size          int
	TotalElements int64
}

// TotalPages returns the number of pages at the current size.
func (page Page) TotalPages() int64 {
	if page.Size <= 0 {
		return 0
	}
	size := int64(page.Size)
	return (page.TotalElements + size - 1) / size
}

// Store is the persistence contract used by Service. Implementations apply
// at-rest encryption to the account field.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	ListEntries(ctx context.Context, pageRequest PageRequest) ([]Entry, int64, error)
	GetEntry(ctx context.Context, entryID EntryID) (Entry, error)
	InsertEntry(ctx context.Context, entryInput EntryInput) (Entry, error)
	ReplaceEntry(ctx context.Context, entryID EntryID, entryInput EntryInput) (Entry, error)
	DeleteEntry(ctx context.Context, entryID EntryID) error
}

// TransportCipher opens values callers sealed to the service public key.
type TransportCipher interface {
	DecryptInbound(ciphertext string) (string, error)
	PublicKey() string
}

// FieldCipher seals single column values before they reach storage.
type FieldCipher interface {
	EncryptAtRest(plaintext string) (string, error)
	DecryptAtRest(token string) (string, error)
}
