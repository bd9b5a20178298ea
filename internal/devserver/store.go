package devserver

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/alessandrolsdev/ledgersync/internal/model"
)

// account is a seeded dev user: the identity record the /api/me endpoint
// returns, plus a bcrypt hash of the password.
type account struct {
	Identity     model.Identity
	PasswordHash string
}

// Transaction is a committed ledger entry as the dev server stores it.
type Transaction struct {
	ID             string
	Owner          string
	Draft          model.TransactionDraft
	IdempotencyKey string
	ReceivedAt     time.Time
}

// memStore is the dev server's in-memory state: accounts, committed
// transactions, and the set of idempotency keys already seen. It is not
// durable — the whole point of the client-side outbox is that the server
// may be restarted or unreachable at any time.
type memStore struct {
	mu           sync.Mutex
	accounts     map[string]account
	transactions []Transaction
	seenKeys     map[string]string // idempotency key → transaction ID
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]account),
		seenKeys: make(map[string]string),
	}
}

func (m *memStore) addAccount(ident model.Identity, passwordHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[ident.Username] = account{Identity: ident, PasswordHash: passwordHash}
}

func (m *memStore) account(username string) (account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	return a, ok
}

// createTransaction commits a transaction unless its idempotency key was
// already seen, in which case the original transaction ID is returned and
// created is false. Keys are scoped per submission, not per owner: the
// client generates them with xid, so cross-user collisions do not happen
// in practice.
func (m *memStore) createTransaction(owner, idempotencyKey string, draft model.TransactionDraft) (id string, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idempotencyKey != "" {
		if existing, ok := m.seenKeys[idempotencyKey]; ok {
			return existing, false
		}
	}

	tx := Transaction{
		ID:             xid.New().String(),
		Owner:          owner,
		Draft:          draft,
		IdempotencyKey: idempotencyKey,
		ReceivedAt:     time.Now().UTC(),
	}
	m.transactions = append(m.transactions, tx)
	if idempotencyKey != "" {
		m.seenKeys[idempotencyKey] = tx.ID
	}
	return tx.ID, true
}

// list returns a copy of all committed transactions in arrival order.
func (m *memStore) list() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transaction{}, m.transactions...)
}
