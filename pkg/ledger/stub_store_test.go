package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const sealedPrefix = "sealed:"

// stubStore keeps entries in memory. WithTx runs fn against a copy and
// commits it only when fn returns nil.
type stubStore struct {
	entries        map[EntryID]Entry
	nextID         EntryID
	insertCalls    int
	failInsertCall int
	insertError    error
	listError      error
	getError       error
	replaceError   error
	deleteError    error
	txCalls        int
}

func newStubStore() *stubStore {
	return &stubStore{entries: map[EntryID]Entry{}, nextID: 1}
}

func (store *stubStore) clone() *stubStore {
	copied := *store
	copied.entries = make(map[EntryID]Entry, len(store.entries))
	for id, entry := range store.entries {
		copied.entries[id] = entry
	}
	return &copied
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txCalls++
	working := store.clone()
	if err := fn(ctx, working); err != nil {
		store.insertCalls = working.insertCalls
		return err
	}
	store.entries = working.entries
	store.nextID = working.nextID
	store.insertCalls = working.insertCalls
	return nil
}

func (store *stubStore) ListEntries(_ context.Context, pageRequest PageRequest) ([]Entry, int64, error) {
	if store.listError != nil {
		return nil, 0, store.listError
	}
	ids := make([]EntryID, 0, len(store.entries))
	for id := range store.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(left, right int) bool { return ids[left] < ids[right] })
	start := int(pageRequest.Offset())
	if start > len(ids) {
		start = len(ids)
	}
	end := start + pageRequest.Size()
	if end > len(ids) {
		end = len(ids)
	}
	entries := make([]Entry, 0, end-start)
	for _, id := range ids[start:end] {
		entries = append(entries, store.entries[id])
	}
	return entries, int64(len(ids)), nil
}

func (store *stubStore) GetEntry(_ context.Context, entryID EntryID) (Entry, error) {
	if store.getError != nil {
		return Entry{}, store.getError
	}
	entry, ok := store.entries[entryID]
	if !ok {
		return Entry{}, WrapError("store", "entry", "not_found", ErrEntryNotFound)
	}
	return entry, nil
}

func (store *stubStore) InsertEntry(_ context.Context, entryInput EntryInput) (Entry, error) {
	store.insertCalls++
	if store.insertError != nil && (store.failInsertCall == 0 || store.failInsertCall == store.insertCalls) {
		return Entry{}, store.insertError
	}
	entry := entryInput.ToEntry(store.nextID)
	store.entries[entry.ID] = entry
	store.nextID++
	return entry, nil
}

func (store *stubStore) ReplaceEntry(_ context.Context, entryID EntryID, entryInput EntryInput) (Entry, error) {
	if store.replaceError != nil {
		return Entry{}, store.replaceError
	}
	if _, ok := store.entries[entryID]; !ok {
		return Entry{}, ErrEntryNotFound
	}
	entry := entryInput.ToEntry(entryID)
	store.entries[entryID] = entry
	return entry, nil
}

func (store *stubStore) DeleteEntry(_ context.Context, entryID EntryID) error {
	if store.deleteError != nil {
		return store.deleteError
	}
	if _, ok := store.entries[entryID]; !ok {
		return ErrEntryNotFound
	}
	delete(store.entries, entryID)
	return nil
}

// prefixTransport opens values of the form "sealed:<plaintext>".
type prefixTransport struct{}

func (prefixTransport) DecryptInbound(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, sealedPrefix) {
		return "", errors.New("not sealed")
	}
	return strings.TrimPrefix(ciphertext, sealedPrefix), nil
}

func (prefixTransport) PublicKey() string {
	return "age1stub"
}

var fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time {
	return fixedNow
}

func newTestService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, prefixTransport{}, fixedClock, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func sealed(value string) *string {
	wrapped := sealedPrefix + value
	return &wrapped
}

func stringPointer(value string) *string {
	return &value
}

func decimalPointer(test *testing.T, raw string) *decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return &value
}

func mustAmount(test *testing.T, raw string) Amount {
	test.Helper()
	amount, err := ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}

func validEntryRequest(test *testing.T, correlationID string, account string) EntryRequest {
	test.Helper()
	return EntryRequest{
		CorrelationID: stringPointer(correlationID),
		Account:       stringPointer(account),
		DebitAmount:   decimalPointer(test, "100.0"),
		CreditAmount:  decimalPointer(test, "0"),
	}
}
