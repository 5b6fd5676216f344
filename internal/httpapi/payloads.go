package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cipherledger/pkg/ledger"
	"github.com/shopspring/decimal"
)

// ledgerTime renders and parses the dd-MM-yyyy HH:mm:ss pattern.
type ledgerTime time.Time

func (value ledgerTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(value).UTC().Format(ledger.TimeLayout))
}

func (value *ledgerTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	parsed, err := time.ParseInLocation(ledger.TimeLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return fmt.Errorf("time must match %s: %w", ledger.TimeLayout, err)
	}
	*value = ledgerTime(parsed)
	return nil
}

// entryRequestBody is the create/update payload. transactionId and account
// carry transport cipher-text.
type entryRequestBody struct {
	TransactionID *string          `json:"transactionId"`
	Account       *string          `json:"account"`
	InDebt        *decimal.Decimal `json:"inDebt"`
	Have          *decimal.Decimal `json:"have"`
	Time          *ledgerTime      `json:"time"`
}

func (body entryRequestBody) toSealed() ledger.SealedEntryRequest {
	sealed := ledger.SealedEntryRequest{
		CorrelationID: body.TransactionID,
		Account:       body.Account,
		DebitAmount:   body.InDebt,
		CreditAmount:  body.Have,
	}
	if body.Time != nil {
		postedAt := time.Time(*body.Time)
		sealed.PostedAt = &postedAt
	}
	return sealed
}

type entryResponse struct {
	ID            int64       `json:"id"`
	TransactionID string      `json:"transactionId"`
	Account       string      `json:"account"`
	InDebt        json.Number `json:"inDebt"`
	Have          json.Number `json:"have"`
	Time          ledgerTime  `json:"time"`
}

func newEntryResponse(entry ledger.Entry) entryResponse {
	return entryResponse{
		ID:            entry.ID.Int64(),
		TransactionID: entry.CorrelationID.String(),
		Account:       entry.Account.Plaintext(),
		InDebt:        json.Number(entry.DebitAmount.String()),
		Have:          json.Number(entry.CreditAmount.String()),
		Time:          ledgerTime(entry.PostedAt),
	}
}

type pageResponse struct {
	Content       []entryResponse `json:"content"`
	Page          int             `json:"page"`
	Size          int             `json:"size"`
	TotalElements int64           `json:"totalElements"`
	TotalPages    int64           `json:"totalPages"`
}

func newPageResponse(page ledger.Page) pageResponse {
	content := make([]entryResponse, 0, len(page.Entries))
	for _, entry := range page.Entries {
		content = append(content, newEntryResponse(entry))
	}
	return pageResponse{
		Content:       content,
		Page:          page.Number,
		Size:          page.Size,
		TotalElements: page.TotalElements,
		TotalPages:    page.TotalPages(),
	}
}

type createdResponse struct {
	ID int64 `json:"id"`
}

type transferResponse struct {
	TransactionID string        `json:"transactionId"`
	Debit         entryResponse `json:"debit"`
	Credit        entryResponse `json:"credit"`
}

func newTransferResponse(transfer ledger.Transfer) transferResponse {
	return transferResponse{
		TransactionID: transfer.CorrelationID.String(),
		Debit:         newEntryResponse(transfer.Debit),
		Credit:        newEntryResponse(transfer.Credit),
	}
}

type errorResponse struct {
	Timestamp ledgerTime `json:"timestamp"`
	Message   string     `json:"message"`
	Details   string     `json:"details"`
}

type publicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}
