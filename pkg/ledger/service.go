package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service contains the domain logic over a Store.
type Service struct {
	store     Store
	transport TransportCipher
	nowFn     func() time.Time
	logger    OperationLogger
}

// NewService wires a Service.
func NewService(store Store, transport TransportCipher, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: transport cipher dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, transport: transport, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// TransportPublicKey returns the key callers seal inbound fields to.
func (service *Service) TransportPublicKey() string {
	return service.transport.PublicKey()
}

// FindAll returns one page of decrypted entries ordered by id.
func (service *Service) FindAll(ctx context.Context, pageRequest PageRequest) (Page, error) {
	if pageRequest.size <= 0 {
		return Page{}, NewValidationError(FieldViolation{Field: FieldSize, Err: ErrInvalidPageSize})
	}
	entries, total, err := service.store.ListEntries(ctx, pageRequest)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Entries:       entries,
		Number:        pageRequest.number,
		Size:          pageRequest.size,
		TotalElements: total,
	}, nil
}

// Get returns the decrypted entry stored under entryID.
func (service *Service) Get(ctx context.Context, entryID EntryID) (Entry, error) {
	if entryID.IsZero() {
		return Entry{}, NewValidationError(FieldViolation{Field: FieldID, Err: ErrMissingEntryID})
	}
	entry, err := service.store.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, translateLookupError(entryID, err)
	}
	return entry, nil
}

// Create validates request and stores a new entry, returning its id.
func (service *Service) Create(ctx context.Context, request EntryRequest) (EntryID, error) {
	entryInput, err := service.buildEntryInput(request)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationCreate, Error: err})
		return 0, err
	}
	var created Entry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		inserted, err := transactionStore.InsertEntry(ctx, entryInput)
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCreate,
		EntryIDs:  entryIDs(operationError, created.ID),
		Error:     operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return created.ID, nil
}

// Update fully replaces the mutable fields of an existing entry and returns
// the decrypted result. An unknown id fails with NotFoundError before the
// request body is validated.
func (service *Service) Update(ctx context.Context, entryID EntryID, request EntryRequest) (Entry, error) {
	return service.update(ctx, entryID, func() (EntryRequest, error) { return request, nil })
}

// UpdateSealed is Update for a request whose sensitive fields are still
// transport cipher-text. The fields are opened only after the entry is found,
// so an unknown id fails with NotFoundError whatever the cipher-text holds.
func (service *Service) UpdateSealed(ctx context.Context, entryID EntryID, sealed SealedEntryRequest) (Entry, error) {
	return service.update(ctx, entryID, func() (EntryRequest, error) { return service.OpenEntryRequest(sealed) })
}

func (service *Service) update(ctx context.Context, entryID EntryID, resolveRequest func() (EntryRequest, error)) (Entry, error) {
	if entryID.IsZero() {
		return Entry{}, NewValidationError(FieldViolation{Field: FieldID, Err: ErrMissingEntryID})
	}
	var updated Entry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetEntry(ctx, entryID); err != nil {
			return translateLookupError(entryID, err)
		}
		request, err := resolveRequest()
		if err != nil {
			return err
		}
		entryInput, err := service.buildEntryInput(request)
		if err != nil {
			return err
		}
		replaced, err := transactionStore.ReplaceEntry(ctx, entryID, entryInput)
		if err != nil {
			return translateLookupError(entryID, err)
		}
		updated = replaced
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationUpdate,
		EntryIDs:  []EntryID{entryID},
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return updated, nil
}

// Delete removes an existing entry.
func (service *Service) Delete(ctx context.Context, entryID EntryID) error {
	if entryID.IsZero() {
		return NewValidationError(FieldViolation{Field: FieldID, Err: ErrMissingEntryID})
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetEntry(ctx, entryID); err != nil {
			return translateLookupError(entryID, err)
		}
		if err := transactionStore.DeleteEntry(ctx, entryID); err != nil {
			return translateLookupError(entryID, err)
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDelete,
		EntryIDs:  []EntryID{entryID},
		Error:     operationError,
	})
	return operationError
}

// OpenEntryRequest decrypts the transport-sealed fields of sealed. Missing
// fields stay missing so validation can report them.
func (service *Service) OpenEntryRequest(sealed SealedEntryRequest) (EntryRequest, error) {
	request := EntryRequest{
		DebitAmount:  sealed.DebitAmount,
		CreditAmount: sealed.CreditAmount,
		PostedAt:     sealed.PostedAt,
	}
	correlationID, err := service.openOptional(FieldCorrelationID, sealed.CorrelationID)
	if err != nil {
		return EntryRequest{}, err
	}
	account, err := service.openOptional(FieldAccount, sealed.Account)
	if err != nil {
		return EntryRequest{}, err
	}
	request.CorrelationID = correlationID
	request.Account = account
	return request, nil
}

func (service *Service) openOptional(field string, ciphertext *string) (*string, error) {
	if ciphertext == nil {
		return nil, nil
	}
	plaintext, err := service.transport.DecryptInbound(*ciphertext)
	if err != nil {
		return nil, WrapError(errorOperationService, errorSubjectEntry, errorCodeDecrypt, DecryptionFailure(field, err))
	}
	return &plaintext, nil
}

func (service *Service) buildEntryInput(request EntryRequest) (EntryInput, error) {
	var violations []FieldViolation
	if request.CorrelationID == nil {
		violations = append(violations, FieldViolation{Field: FieldCorrelationID, Err: ErrMissingCorrelationID})
	}
	if request.Account == nil {
		violations = append(violations, FieldViolation{Field: FieldAccount, Err: ErrMissingAccount})
	}
	if request.DebitAmount == nil {
		violations = append(violations, FieldViolation{Field: FieldDebitAmount, Err: ErrMissingDebitAmount})
	}
	if request.CreditAmount == nil {
		violations = append(violations, FieldViolation{Field: FieldCreditAmount, Err: ErrMissingCreditAmount})
	}
	if len(violations) > 0 {
		return EntryInput{}, NewValidationError(violations...)
	}

	correlationID, err := NewCorrelationID(*request.CorrelationID)
	if err != nil {
		violations = append(violations, FieldViolation{Field: FieldCorrelationID, Err: err})
	}
	account, err := NewAccountNumber(*request.Account)
	if err != nil {
		violations = append(violations, FieldViolation{Field: FieldAccount, Err: err})
	}
	debitAmount, err := NewAmount(*request.DebitAmount)
	if err != nil {
		violations = append(violations, FieldViolation{Field: FieldDebitAmount, Err: err})
	}
	creditAmount, err := NewAmount(*request.CreditAmount)
	if err != nil {
		violations = append(violations, FieldViolation{Field: FieldCreditAmount, Err: err})
	}
	if len(violations) > 0 {
		return EntryInput{}, NewValidationError(violations...)
	}

	postedAt := service.nowFn()
	if request.PostedAt != nil && !request.PostedAt.IsZero() {
		postedAt = *request.PostedAt
	}
	entryInput, err := NewEntryInput(correlationID, account, debitAmount, creditAmount, postedAt)
	if err != nil {
		return EntryInput{}, NewValidationError(FieldViolation{Field: FieldPostedAt, Err: err})
	}
	return entryInput, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func translateLookupError(entryID EntryID, err error) error {
	if errors.Is(err, ErrEntryNotFound) && !errors.Is(err, ErrNotFound) {
		return NotFoundError{ID: entryID}
	}
	return err
}

func entryIDs(operationError error, ids ...EntryID) []EntryID {
	if operationError != nil {
		return nil
	}
	return ids
}
