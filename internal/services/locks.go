package services

import (
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TxRunner is the slice of *gorm.DB the services need to open transactions;
// tests substitute a runner that invokes the closure directly.
type TxRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// itemLocks serializes circulation mutations per item inside this process, on
// top of the database row locks. It is what guarantees a freed copy is handed
// to the queue head before any walk-in issue attempt on the same item can
// observe it as available.
type itemLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newItemLocks() *itemLocks {
	return &itemLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// lock acquires the mutex for itemID and returns its unlock func.
func (l *itemLocks) lock(itemID uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[itemID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[itemID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
