// Package faults classifies ledger errors into caller-visible outcomes and
// keeps field values out of the log sink.
package faults

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cipherledger/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Outcome is the caller-visible class of a failure.
type Outcome int

const (
	OutcomeServerError Outcome = iota
	OutcomeBadRequest
	OutcomeNotFound
)

// HTTPStatus returns the status code for the outcome.
func (outcome Outcome) HTTPStatus() int {
	switch outcome {
	case OutcomeBadRequest:
		return http.StatusBadRequest
	case OutcomeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// String returns the outcome name.
func (outcome Outcome) String() string {
	switch outcome {
	case OutcomeBadRequest:
		return "bad_request"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "server_error"
	}
}

const (
	messageValidation     = "validation failed"
	messageCipher         = "unable to process encrypted field"
	messageStore          = "data access failure"
	messageInternal       = "internal error"
	prefixStore           = "Data access exception occurred: "
	prefixNotFound        = "Resource not found occurred: "
	prefixUnexpected      = "Exception occurred: "
	logSeparator          = " - "
	maskPlaceholder       = "?"
	logFieldOutcome       = "outcome"
	logFieldStatus        = "status"
	validationDetailsOpen = "["
	validationDetailsEnd  = "]"
)

// ErrorDetails is the error record returned to callers.
type ErrorDetails struct {
	Timestamp time.Time
	Message   string
	Details   string
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithMaskedStoreFailures renders store failures as a not-found outcome.
func WithMaskedStoreFailures() MapperOption {
	return func(mapper *Mapper) {
		mapper.maskStoreFailures = true
	}
}

// WithLogger logs every mapped failure with masked text.
func WithLogger(logger *zap.Logger) MapperOption {
	return func(mapper *Mapper) {
		if logger != nil {
			mapper.logger = logger
		}
	}
}

// Mapper translates errors into outcomes and error records.
type Mapper struct {
	nowFn             func() time.Time
	logger            *zap.Logger
	maskStoreFailures bool
}

// NewMapper builds a Mapper. A nil clock falls back to time.Now.
func NewMapper(now func() time.Time, options ...MapperOption) *Mapper {
	if now == nil {
		now = time.Now
	}
	mapper := &Mapper{nowFn: now, logger: zap.NewNop()}
	for _, option := range options {
		if option != nil {
			option(mapper)
		}
	}
	return mapper
}

// Map classifies err and builds the caller-visible record. requestDescription
// identifies the request, for example "uri=/transactions/5".
func (mapper *Mapper) Map(err error, requestDescription string) (Outcome, ErrorDetails) {
	details := ErrorDetails{Timestamp: mapper.nowFn(), Details: requestDescription}
	maskedError := Mask(errorText(err))
	maskedDescription := Mask(requestDescription)

	var validationError ledger.ValidationError
	var notFoundError ledger.NotFoundError
	switch {
	case errors.As(err, &validationError):
		details.Message = messageValidation
		details.Details = validationDetailsOpen + strings.Join(validationError.Fields(), ", ") + validationDetailsEnd
		mapper.log(zapcore.WarnLevel, OutcomeBadRequest, prefixUnexpected, maskedError, maskedDescription)
		return OutcomeBadRequest, details
	case errors.Is(err, ledger.ErrValidationFailed):
		details.Message = messageValidation
		details.Details = validationDetailsOpen + validationDetailsEnd
		mapper.log(zapcore.WarnLevel, OutcomeBadRequest, prefixUnexpected, maskedError, maskedDescription)
		return OutcomeBadRequest, details
	case errors.As(err, &notFoundError):
		details.Message = notFoundError.Error()
		mapper.log(zapcore.WarnLevel, OutcomeNotFound, prefixNotFound, maskedError, maskedDescription)
		return OutcomeNotFound, details
	case errors.Is(err, ledger.ErrNotFound):
		details.Message = ledger.ErrNotFound.Error()
		mapper.log(zapcore.WarnLevel, OutcomeNotFound, prefixNotFound, maskedError, maskedDescription)
		return OutcomeNotFound, details
	case errors.Is(err, ledger.ErrDecryptionFailed), errors.Is(err, ledger.ErrEncryptionFailed):
		details.Message = messageCipher
		mapper.log(zapcore.ErrorLevel, OutcomeServerError, prefixUnexpected, maskedError, maskedDescription)
		return OutcomeServerError, details
	case errors.Is(err, ledger.ErrStoreFailure):
		details.Message = messageStore
		outcome := OutcomeServerError
		if mapper.maskStoreFailures {
			outcome = OutcomeNotFound
		}
		mapper.log(zapcore.ErrorLevel, outcome, prefixStore, maskedError, maskedDescription)
		return outcome, details
	default:
		details.Message = messageInternal
		mapper.log(zapcore.ErrorLevel, OutcomeServerError, prefixUnexpected, maskedError, maskedDescription)
		return OutcomeServerError, details
	}
}

func (mapper *Mapper) log(level zapcore.Level, outcome Outcome, prefix string, maskedError string, maskedDescription string) {
	if checked := mapper.logger.Check(level, prefix+maskedError+logSeparator+maskedDescription); checked != nil {
		checked.Write(
			zap.String(logFieldOutcome, outcome.String()),
			zap.Int(logFieldStatus, outcome.HTTPStatus()),
		)
	}
}

func errorText(err error) string {
	if err == nil {
		return messageInternal
	}
	return err.Error()
}

var (
	isoDateTimePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	ledgerDateTimePattern = regexp.MustCompile(`\d{2}-\d{2}-\d{4} \d{2}:\d{2}:\d{2}`)
	decimalPattern        = regexp.MustCompile(`\d+\.\d+`)
	digitsPattern         = regexp.MustCompile(`\d+`)
)

// Mask replaces datetime-shaped substrings, decimal numbers, and remaining
// digit runs with a placeholder.
func Mask(message string) string {
	masked := isoDateTimePattern.ReplaceAllString(message, maskPlaceholder)
	masked = ledgerDateTimePattern.ReplaceAllString(masked, maskPlaceholder)
	masked = decimalPattern.ReplaceAllString(masked, maskPlaceholder)
	return digitsPattern.ReplaceAllString(masked, maskPlaceholder)
}
