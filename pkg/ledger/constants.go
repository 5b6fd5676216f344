package ledger

const (
	operationCreate   = "create"
	operationUpdate   = "update"
	operationDelete   = "delete"
	operationTransfer = "transfer"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorOperationService = "service"
	errorSubjectEntry     = "entry"
	errorSubjectTransfer  = "transfer"
	errorCodeDecrypt      = "decrypt"

	redactedAccount = "[redacted]"
)

// TimeLayout renders posting times and response timestamps as
// day-month-year hour:minute:second.
const TimeLayout = "02-01-2006 15:04:05"

// Pagination defaults and bounds.
const (
	DefaultPageNumber = 0
	DefaultPageSize   = 10
	MaxPageSize       = 500
)

// Field names reported in validation failures. They match the wire names.
const (
	FieldID                 = "id"
	FieldCorrelationID      = "transactionId"
	FieldAccount            = "account"
	FieldDebitAmount        = "inDebt"
	FieldCreditAmount       = "have"
	FieldPostedAt           = "time"
	FieldSourceAccount      = "sourceAccount"
	FieldDestinationAccount = "destinationAccount"
	FieldAmount             = "amount"
	FieldPage               = "page"
	FieldSize               = "size"
)
