package ledger

import "context"

// ProcessTransfer records a double-entry transfer: a debit on the source
// account and a credit on the destination account, sharing one correlation
// id and one posting time. Both legs are written in one transaction or not
// at all.
func (service *Service) ProcessTransfer(ctx context.Context, request TransferRequest) (Transfer, error) {
	var violations []FieldViolation
	if request.CorrelationID == nil {
		violations = append(violations, FieldViolation{Field: FieldCorrelationID, Err: ErrMissingCorrelationID})
	}
	if request.SourceAccount == nil {
		violations = append(violations, FieldViolation{Field: FieldSourceAccount, Err: ErrMissingSourceAccount})
	}
	if request.DestinationAccount == nil {
		violations = append(violations, FieldViolation{Field: FieldDestinationAccount, Err: ErrMissingDestinationAccount})
	}
	if request.Amount == nil {
		violations = append(violations, FieldViolation{Field: FieldAmount, Err: ErrMissingAmount})
	}
	if len(violations) > 0 {
		err := NewValidationError(violations...)
		service.logOperation(ctx, OperationLog{Operation: operationTransfer, Error: err})
		return Transfer{}, err
	}

	debitInput, creditInput, err := service.buildTransferLegs(request)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationTransfer, Error: err})
		return Transfer{}, err
	}

	var transfer Transfer
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		debit, err := transactionStore.InsertEntry(ctx, debitInput)
		if err != nil {
			return err
		}
		credit, err := transactionStore.InsertEntry(ctx, creditInput)
		if err != nil {
			return err
		}
		transfer = Transfer{CorrelationID: debitInput.CorrelationID(), Debit: debit, Credit: credit}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationTransfer,
		EntryIDs:  entryIDs(operationError, transfer.Debit.ID, transfer.Credit.ID),
		Error:     operationError,
	})
	if operationError != nil {
		return Transfer{}, operationError
	}
	return transfer, nil
}

func (service *Service) buildTransferLegs(request TransferRequest) (EntryInput, EntryInput, error) {
	rawCorrelationID, err := service.openTransferField(FieldCorrelationID, *request.CorrelationID)
	if err != nil {
		return EntryInput{}, EntryInput{}, err
	}
	rawSource, err := service.openTransferField(FieldSourceAccount, *request.SourceAccount)
	if err != nil {
		return EntryInput{}, EntryInput{}, err
	}
	rawDestination, err := service.openTransferField(FieldDestinationAccount, *request.DestinationAccount)
	if err != nil {
		return EntryInput{}, EntryInput{}, err
	}

	var violations []FieldViolation
	correlationID, err := NewCorrelationID(rawCorrelationID)
	if err != nil {
		violations = append(violations, FieldViolation{Field: FieldCorrelationID, Err: err})
	}
	source, err := NewAccountNumber(rawSource)
	if err != nil {
		violations = append(violations, FieldViolation{Field: FieldSourceAccount, Err: err})
	}
	destination, err := NewAccountNumber(rawDestination)
	if err != nil {
		violations = append(violations, FieldViolation{Field: FieldDestinationAccount, Err: err})
	}
	amount, err := ParseAmount(*request.Amount)
	if err == nil && !amount.IsPositive() {
		err = ErrInvalidAmount
	}
	if err != nil {
		violations = append(violations, FieldViolation{Field: FieldAmount, Err: err})
	}
	if len(violations) > 0 {
		return EntryInput{}, EntryInput{}, NewValidationError(violations...)
	}

	postedAt := service.nowFn()
	debitInput, err := NewEntryInput(correlationID, source, amount, ZeroAmount(), postedAt)
	if err != nil {
		return EntryInput{}, EntryInput{}, NewValidationError(FieldViolation{Field: FieldPostedAt, Err: err})
	}
	creditInput, err := NewEntryInput(correlationID, destination, ZeroAmount(), amount, postedAt)
	if err != nil {
		return EntryInput{}, EntryInput{}, NewValidationError(FieldViolation{Field: FieldPostedAt, Err: err})
	}
	return debitInput, creditInput, nil
}

func (service *Service) openTransferField(field string, ciphertext string) (string, error) {
	plaintext, err := service.transport.DecryptInbound(ciphertext)
	if err != nil {
		return "", WrapError(errorOperationService, errorSubjectTransfer, errorCodeDecrypt, DecryptionFailure(field, err))
	}
	return plaintext, nil
}
