package faults

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/cipherledger/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const requestDescription = "uri=/transactions/42"

var mapperNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time {
	return mapperNow
}

func TestMapClassifiesFailures(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name        string
		err         error
		options     []MapperOption
		wantOutcome Outcome
		wantStatus  int
		wantMessage string
		wantDetails string
	}{
		{
			name: "validation",
			err: ledger.WrapError("service", "transfer", "invalid", ledger.NewValidationError(
				ledger.FieldViolation{Field: ledger.FieldCorrelationID, Err: ledger.ErrMissingCorrelationID},
				ledger.FieldViolation{Field: ledger.FieldAmount, Err: ledger.ErrMissingAmount},
			)),
			wantOutcome: OutcomeBadRequest,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "validation failed",
			wantDetails: "[transactionId, amount]",
		},
		{
			name:        "bare validation sentinel",
			err:         fmt.Errorf("%w: page", ledger.ErrValidationFailed),
			wantOutcome: OutcomeBadRequest,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "validation failed",
			wantDetails: "[]",
		},
		{
			name:        "not found",
			err:         ledger.NotFoundError{ID: 42},
			wantOutcome: OutcomeNotFound,
			wantStatus:  http.StatusNotFound,
			wantMessage: "transaction not found: 42",
			wantDetails: requestDescription,
		},
		{
			name:        "decryption",
			err:         ledger.DecryptionFailure(ledger.FieldAccount, errors.New("bad tag on ACC-1")),
			wantOutcome: OutcomeServerError,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "unable to process encrypted field",
			wantDetails: requestDescription,
		},
		{
			name:        "encryption",
			err:         ledger.EncryptionFailure(errors.New("cipher init")),
			wantOutcome: OutcomeServerError,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "unable to process encrypted field",
			wantDetails: requestDescription,
		},
		{
			name:        "store",
			err:         ledger.StoreFailure(errors.New("connection refused")),
			wantOutcome: OutcomeServerError,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "data access failure",
			wantDetails: requestDescription,
		},
		{
			name:        "masked store",
			err:         ledger.StoreFailure(errors.New("connection refused")),
			options:     []MapperOption{WithMaskedStoreFailures()},
			wantOutcome: OutcomeNotFound,
			wantStatus:  http.StatusNotFound,
			wantMessage: "data access failure",
			wantDetails: requestDescription,
		},
		{
			name:        "unexpected",
			err:         errors.New("nil map"),
			wantOutcome: OutcomeServerError,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "internal error",
			wantDetails: requestDescription,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			mapper := NewMapper(fixedClock, testCase.options...)
			outcome, details := mapper.Map(testCase.err, requestDescription)
			if outcome != testCase.wantOutcome || outcome.HTTPStatus() != testCase.wantStatus {
				test.Fatalf("expected %v/%d, got %v/%d", testCase.wantOutcome, testCase.wantStatus, outcome, outcome.HTTPStatus())
			}
			if details.Message != testCase.wantMessage || details.Details != testCase.wantDetails {
				test.Fatalf("unexpected details %+v", details)
			}
			if !details.Timestamp.Equal(mapperNow) {
				test.Fatalf("expected timestamp %v, got %v", mapperNow, details.Timestamp)
			}
		})
	}
}

func TestMapNeverEchoesCipherErrorText(test *testing.T) {
	test.Parallel()
	mapper := NewMapper(fixedClock)
	_, details := mapper.Map(ledger.DecryptionFailure(ledger.FieldAccount, errors.New("ACC-SECRET")), requestDescription)
	if strings.Contains(details.Message, "ACC-SECRET") || strings.Contains(details.Details, "ACC-SECRET") {
		test.Fatalf("cipher error text leaked: %+v", details)
	}
}

func TestMapLogsMaskedLines(test *testing.T) {
	test.Parallel()
	core, recorded := observer.New(zapcore.DebugLevel)
	mapper := NewMapper(fixedClock, WithLogger(zap.New(core)))

	mapper.Map(ledger.StoreFailure(errors.New("row 17 amount 50.25 at 2024-03-15 10:30:00")), "uri=/transactions/17")
	mapper.Map(ledger.NotFoundError{ID: 99}, "uri=/transactions/99")
	mapper.Map(errors.New("boom 3"), "uri=/transactions")

	entries := recorded.All()
	if len(entries) != 3 {
		test.Fatalf("expected three log lines, got %d", len(entries))
	}
	expected := []string{
		"Data access exception occurred: store failure: row ? amount ? at ? - uri=/transactions/?",
		"Resource not found occurred: transaction not found: ? - uri=/transactions/?",
		"Exception occurred: boom ? - uri=/transactions",
	}
	for index, entry := range entries {
		if entry.Message != expected[index] {
			test.Fatalf("line %d: expected %q, got %q", index, expected[index], entry.Message)
		}
	}
	if entries[0].Level != zapcore.ErrorLevel || entries[1].Level != zapcore.WarnLevel {
		test.Fatalf("unexpected levels %v/%v", entries[0].Level, entries[1].Level)
	}
	if entries[0].ContextMap()[logFieldStatus] != int64(http.StatusInternalServerError) {
		test.Fatalf("unexpected status field %v", entries[0].ContextMap())
	}
}

func TestMask(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		input string
		want  string
	}{
		{input: "account 12345 not found", want: "account ? not found"},
		{input: "amount 50.25 rejected", want: "amount ? rejected"},
		{input: "posted 2024-03-15T10:30:00Z", want: "posted ?"},
		{input: "posted 2024-03-15 10:30:00.123+02:00 ok", want: "posted ? ok"},
		{input: "posted 15-03-2024 10:30:00", want: "posted ?"},
		{input: "ids 1, 2 and 3.5", want: "ids ?, ? and ?"},
		{input: "no numbers here", want: "no numbers here"},
		{input: "", want: ""},
	}
	for _, testCase := range testCases {
		if got := Mask(testCase.input); got != testCase.want {
			test.Fatalf("Mask(%q): expected %q, got %q", testCase.input, testCase.want, got)
		}
	}
}

func TestNewMapperDefaultsClock(test *testing.T) {
	test.Parallel()
	mapper := NewMapper(nil)
	before := time.Now()
	_, details := mapper.Map(errors.New("x"), requestDescription)
	if details.Timestamp.Before(before) {
		test.Fatalf("expected current time, got %v", details.Timestamp)
	}
}
