package services

// In-memory fakes for the repository interfaces. The store applies writes
// directly (no rollback); tests only assert state after operations whose
// failing paths mutate nothing. Transaction holds the store lock so the
// per-item mutexes plus the fake transaction serialize the same way the real
// row locks do.

import (
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jaypawar90171/LMS-sub001/internal/clock"
	"github.com/jaypawar90171/LMS-sub001/internal/config"
	"github.com/jaypawar90171/LMS-sub001/internal/models"
)

type memStore struct {
	mu sync.Mutex

	users    map[uuid.UUID]*models.User
	items    map[uuid.UUID]*models.Item
	copies   map[uuid.UUID]*models.Copy
	loans    map[uuid.UUID]*models.Loan
	queue    map[uuid.UUID]*models.QueueEntry
	fines    map[uuid.UUID]*models.Fine
	payments map[uuid.UUID]*models.Payment
	renewals map[uuid.UUID]*models.RenewalRequest
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uuid.UUID]*models.User),
		items:    make(map[uuid.UUID]*models.Item),
		copies:   make(map[uuid.UUID]*models.Copy),
		loans:    make(map[uuid.UUID]*models.Loan),
		queue:    make(map[uuid.UUID]*models.QueueEntry),
		fines:    make(map[uuid.UUID]*models.Fine),
		payments: make(map[uuid.UUID]*models.Payment),
		renewals: make(map[uuid.UUID]*models.RenewalRequest),
	}
}

func (s *memStore) Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fc(nil)
}

// seeding helpers

func (s *memStore) seedUser(active bool) uuid.UUID {
	id := uuid.New()
	s.users[id] = &models.User{ID: id, Name: "user-" + id.String()[:8], Active: active}
	return id
}

func (s *memStore) seedItem(copies, returnPeriodDays int) uuid.UUID {
	id := uuid.New()
	s.items[id] = &models.Item{
		ID:                      id,
		Title:                   "item-" + id.String()[:8],
		Quantity:                copies,
		AvailableCopies:         copies,
		DefaultReturnPeriodDays: returnPeriodDays,
	}
	for i := 1; i <= copies; i++ {
		cid := uuid.New()
		s.copies[cid] = &models.Copy{
			ID:         cid,
			ItemID:     id,
			CopyNumber: i,
			Status:     models.CopyStatusAvailable,
			Condition:  models.CopyConditionGood,
		}
	}
	return id
}

func (s *memStore) seedLoan(itemID, userID uuid.UUID, due time.Time) *models.Loan {
	var copyID uuid.UUID
	for _, c := range s.copies {
		if c.ItemID == itemID && c.Status == models.CopyStatusAvailable {
			c.Status = models.CopyStatusIssued
			s.items[itemID].AvailableCopies--
			copyID = c.ID
			break
		}
	}
	id := uuid.New()
	loan := &models.Loan{
		ID:                   id,
		ItemID:               itemID,
		CopyID:               copyID,
		UserID:               userID,
		Status:               models.LoanStatusIssued,
		IssuedDate:           due.AddDate(0, 0, -14),
		DueDate:              due,
		MaxExtensionsAllowed: 2,
	}
	s.loans[id] = loan
	return loan
}

func (s *memStore) seedQueueEntry(itemID, userID uuid.UUID, position int, joined time.Time) *models.QueueEntry {
	id := uuid.New()
	e := &models.QueueEntry{ID: id, ItemID: itemID, UserID: userID, Position: position, DateJoined: joined}
	s.queue[id] = e
	return e
}

func (s *memStore) seedFine(userID, itemID uuid.UUID, amount float64) *models.Fine {
	id := uuid.New()
	f := &models.Fine{
		ID:                id,
		UserID:            userID,
		ItemID:            itemID,
		Reason:            models.FineReasonManual,
		AmountIncurred:    amount,
		OutstandingAmount: amount,
		Status:            models.FineStatusOutstanding,
	}
	s.fines[id] = f
	return f
}

// UserRepository

func (s *memStore) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

// ItemRepository (wrapped to avoid method-name clashes across interfaces)

type memItems struct{ s *memStore }

func (r memItems) Create(db *gorm.DB, item *models.Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	cp := *item
	r.s.items[item.ID] = &cp
	return nil
}

func (r memItems) GetByID(db *gorm.DB, id uuid.UUID) (*models.Item, error) {
	it, ok := r.s.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *it
	return &cp, nil
}

func (r memItems) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Item, error) {
	return r.GetByID(db, id)
}

func (r memItems) List(db *gorm.DB) ([]models.Item, error) {
	var out []models.Item
	for _, it := range r.s.items {
		out = append(out, *it)
	}
	return out, nil
}

func (r memItems) AdjustCounts(db *gorm.DB, itemID uuid.UUID, quantityDelta, availableDelta int) error {
	it, ok := r.s.items[itemID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	it.Quantity += quantityDelta
	it.AvailableCopies += availableDelta
	return nil
}

func (r memItems) SetAvailableCopies(db *gorm.DB, itemID uuid.UUID, available int) error {
	it, ok := r.s.items[itemID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	it.AvailableCopies = available
	return nil
}

// CopyRepository

type memCopies struct{ s *memStore }

func (r memCopies) Create(db *gorm.DB, copy *models.Copy) error {
	if copy.ID == uuid.Nil {
		copy.ID = uuid.New()
	}
	cp := *copy
	r.s.copies[copy.ID] = &cp
	return nil
}

func (r memCopies) GetByID(db *gorm.DB, id uuid.UUID) (*models.Copy, error) {
	c, ok := r.s.copies[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memCopies) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Copy, error) {
	return r.GetByID(db, id)
}

func (r memCopies) FindAvailableForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.Copy, error) {
	var best *models.Copy
	for _, c := range r.s.copies {
		if c.ItemID != itemID || c.Status != models.CopyStatusAvailable {
			continue
		}
		if best == nil || c.CopyNumber < best.CopyNumber {
			best = c
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (r memCopies) UpdateStatus(db *gorm.DB, id uuid.UUID, status models.CopyStatus) error {
	c, ok := r.s.copies[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Status = status
	return nil
}

func (r memCopies) UpdateCondition(db *gorm.DB, id uuid.UUID, condition models.CopyCondition) error {
	c, ok := r.s.copies[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Condition = condition
	return nil
}

func (r memCopies) CountByStatus(db *gorm.DB, itemID uuid.UUID, status models.CopyStatus) (int, error) {
	n := 0
	for _, c := range r.s.copies {
		if c.ItemID == itemID && c.Status == status {
			n++
		}
	}
	return n, nil
}

func (r memCopies) MaxCopyNumber(db *gorm.DB, itemID uuid.UUID) (int, error) {
	max := 0
	for _, c := range r.s.copies {
		if c.ItemID == itemID && c.CopyNumber > max {
			max = c.CopyNumber
		}
	}
	return max, nil
}

func (r memCopies) BulkUpdateStatus(db *gorm.DB, itemID uuid.UUID, from []models.CopyStatus, to models.CopyStatus) (int64, error) {
	var n int64
	for _, c := range r.s.copies {
		if c.ItemID != itemID {
			continue
		}
		for _, f := range from {
			if c.Status == f {
				c.Status = to
				n++
				break
			}
		}
	}
	return n, nil
}

func (r memCopies) ListByItem(db *gorm.DB, itemID uuid.UUID) ([]models.Copy, error) {
	var out []models.Copy
	for _, c := range r.s.copies {
		if c.ItemID == itemID {
			out = append(out, *c)
		}
	}
	return out, nil
}

// LoanRepository

type memLoans struct{ s *memStore }

func (r memLoans) Create(db *gorm.DB, loan *models.Loan) error {
	if loan.ID == uuid.Nil {
		loan.ID = uuid.New()
	}
	cp := *loan
	r.s.loans[loan.ID] = &cp
	return nil
}

func (r memLoans) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	l, ok := r.s.loans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *l
	return &cp, nil
}

func (r memLoans) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	return r.GetByID(db, id)
}

func (r memLoans) FindOpenByUserAndItem(db *gorm.DB, userID, itemID uuid.UUID) (*models.Loan, error) {
	for _, l := range r.s.loans {
		if l.UserID == userID && l.ItemID == itemID && l.Status == models.LoanStatusIssued {
			cp := *l
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memLoans) CountOpenByUser(db *gorm.DB, userID uuid.UUID) (int, error) {
	n := 0
	for _, l := range r.s.loans {
		if l.UserID == userID && l.Status == models.LoanStatusIssued {
			n++
		}
	}
	return n, nil
}

func (r memLoans) MarkReturned(db *gorm.DB, loanID uuid.UUID, returnedAt time.Time) error {
	l, ok := r.s.loans[loanID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	l.Status = models.LoanStatusReturned
	at := returnedAt
	l.ReturnDate = &at
	return nil
}

func (r memLoans) SetDueDate(db *gorm.DB, loanID uuid.UUID, dueDate time.Time, extensionCount int) error {
	l, ok := r.s.loans[loanID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	l.DueDate = dueDate
	l.ExtensionCount = extensionCount
	return nil
}

func (r memLoans) SetLastReminded(db *gorm.DB, loanID uuid.UUID, at time.Time) error {
	l, ok := r.s.loans[loanID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t := at
	l.LastRemindedAt = &t
	return nil
}

func (r memLoans) ListOpenDueBefore(db *gorm.DB, cutoff time.Time) ([]models.Loan, error) {
	var out []models.Loan
	for _, l := range r.s.loans {
		if l.Status == models.LoanStatusIssued && l.DueDate.Before(cutoff) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r memLoans) ListOpenDueBetween(db *gorm.DB, from, to time.Time) ([]models.Loan, error) {
	var out []models.Loan
	for _, l := range r.s.loans {
		if l.Status != models.LoanStatusIssued {
			continue
		}
		if !l.DueDate.Before(from) && !l.DueDate.After(to) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r memLoans) ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Loan, error) {
	var out []models.Loan
	for _, l := range r.s.loans {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	return out, nil
}

// QueueRepository

type memQueue struct{ s *memStore }

func (r memQueue) Create(db *gorm.DB, entry *models.QueueEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	cp := *entry
	r.s.queue[entry.ID] = &cp
	return nil
}

func (r memQueue) GetByItemAndUser(db *gorm.DB, itemID, userID uuid.UUID) (*models.QueueEntry, error) {
	for _, e := range r.s.queue {
		if e.ItemID == itemID && e.UserID == userID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memQueue) GetHeadForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.QueueEntry, error) {
	var head *models.QueueEntry
	for _, e := range r.s.queue {
		if e.ItemID != itemID {
			continue
		}
		if head == nil || e.Position < head.Position {
			head = e
		}
	}
	if head == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *head
	return &cp, nil
}

func (r memQueue) Delete(db *gorm.DB, id uuid.UUID) error {
	delete(r.s.queue, id)
	return nil
}

func (r memQueue) CompactAfter(db *gorm.DB, itemID uuid.UUID, removedPosition int) error {
	for _, e := range r.s.queue {
		if e.ItemID == itemID && e.Position > removedPosition {
			e.Position--
		}
	}
	return nil
}

func (r memQueue) NextPosition(db *gorm.DB, itemID uuid.UUID) (int, error) {
	max := 0
	for _, e := range r.s.queue {
		if e.ItemID == itemID && e.Position > max {
			max = e.Position
		}
	}
	return max + 1, nil
}

func (r memQueue) ListByItem(db *gorm.DB, itemID uuid.UUID) ([]models.QueueEntry, error) {
	var out []models.QueueEntry
	for _, e := range r.s.queue {
		if e.ItemID == itemID {
			out = append(out, *e)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Position < out[i].Position {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// FineRepository

type memFines struct{ s *memStore }

func (r memFines) Create(db *gorm.DB, fine *models.Fine) error {
	if fine.ID == uuid.Nil {
		fine.ID = uuid.New()
	}
	cp := *fine
	r.s.fines[fine.ID] = &cp
	return nil
}

func (r memFines) GetByID(db *gorm.DB, id uuid.UUID) (*models.Fine, error) {
	f, ok := r.s.fines[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *f
	return &cp, nil
}

func (r memFines) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Fine, error) {
	return r.GetByID(db, id)
}

func (r memFines) FindOpenOverdueByLoan(db *gorm.DB, loanID uuid.UUID) (*models.Fine, error) {
	for _, f := range r.s.fines {
		if f.LoanID == nil || *f.LoanID != loanID {
			continue
		}
		if f.Reason != models.FineReasonOverdue {
			continue
		}
		if f.Status == models.FineStatusOutstanding || f.Status == models.FineStatusPartialPaid {
			cp := *f
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memFines) UpdateAmounts(db *gorm.DB, fine *models.Fine) error {
	f, ok := r.s.fines[fine.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.AmountIncurred = fine.AmountIncurred
	f.AmountPaid = fine.AmountPaid
	f.OutstandingAmount = fine.OutstandingAmount
	f.Status = fine.Status
	f.Note = fine.Note
	f.DateSettled = fine.DateSettled
	return nil
}

func (r memFines) SumOutstandingByUser(db *gorm.DB, userID uuid.UUID) (float64, error) {
	var total float64
	for _, f := range r.s.fines {
		if f.UserID != userID {
			continue
		}
		if f.Status == models.FineStatusOutstanding || f.Status == models.FineStatusPartialPaid {
			total += f.OutstandingAmount
		}
	}
	return total, nil
}

func (r memFines) ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Fine, error) {
	var out []models.Fine
	for _, f := range r.s.fines {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

// PaymentRepository

type memPayments struct{ s *memStore }

func (r memPayments) Create(db *gorm.DB, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	cp := *payment
	r.s.payments[payment.ID] = &cp
	return nil
}

func (r memPayments) ListByFine(db *gorm.DB, fineID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.s.payments {
		if p.FineID == fineID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// RenewalRepository

type memRenewals struct{ s *memStore }

func (r memRenewals) Create(db *gorm.DB, req *models.RenewalRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	cp := *req
	r.s.renewals[req.ID] = &cp
	return nil
}

func (r memRenewals) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.RenewalRequest, error) {
	req, ok := r.s.renewals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *req
	return &cp, nil
}

func (r memRenewals) FindPendingByLoan(db *gorm.DB, loanID uuid.UUID) (*models.RenewalRequest, error) {
	for _, req := range r.s.renewals {
		if req.LoanID == loanID && req.Status == models.RenewalStatusPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memRenewals) SetStatus(db *gorm.DB, id uuid.UUID, status models.RenewalStatus, decidedAt time.Time) error {
	req, ok := r.s.renewals[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	req.Status = status
	at := decidedAt
	req.DecidedAt = &at
	return nil
}

func (r memRenewals) ListPending(db *gorm.DB) ([]models.RenewalRequest, error) {
	var out []models.RenewalRequest
	for _, req := range r.s.renewals {
		if req.Status == models.RenewalStatusPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

// fakeNotifier records sends and can be told to fail.

type fakeNotifier struct {
	mu    sync.Mutex
	sends []fakeSend
	err   error
}

type fakeSend struct {
	Recipient uuid.UUID
	Template  TemplateKind
}

func (n *fakeNotifier) Send(recipientID uuid.UUID, template TemplateKind, payload map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sends = append(n.sends, fakeSend{Recipient: recipientID, Template: template})
	return nil
}

func (n *fakeNotifier) sent() []fakeSend {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]fakeSend, len(n.sends))
	copy(out, n.sends)
	return out
}

// testEnv wires the full service graph over one memStore.

type testEnv struct {
	store    *memStore
	clk      *clock.Fixed
	notifier *fakeNotifier
	cfg      config.Config

	ledger   *CopyLedger
	fines    *FineService
	circ     *CirculationService
	waitlist *WaitlistService
	catalog  *CatalogService
}

func defaultTestConfig() config.Config {
	return config.Config{
		DefaultReturnPeriodDays: 14,
		MaxConcurrentItems:      5,
		MaxPeriodExtensions:     2,
		ExtensionPeriodDays:     7,
		GracePeriodDays:         2,
		DailyFineRate:           5,
		DamagedBaseFine:         50,
		LostBaseFine:            200,
		ReminderLookAheadDays:   2,
	}
}

func newTestEnv(cfg config.Config, at time.Time) *testEnv {
	store := newMemStore()
	clk := clock.NewFixed(at)
	notifier := &fakeNotifier{}

	items := memItems{s: store}
	copies := memCopies{s: store}
	loans := memLoans{s: store}
	queue := memQueue{s: store}
	fines := memFines{s: store}
	payments := memPayments{s: store}
	renewals := memRenewals{s: store}

	ledger := NewCopyLedger(store, items, copies)
	fineSvc := NewFineService(store, cfg, clk, store, items, loans, fines, payments, notifier)
	circ := NewCirculationService(store, cfg, clk, store, items, copies, loans, queue, renewals, ledger, fineSvc, notifier)
	waitlist := NewWaitlistService(store, clk, store, items, loans, queue, circ)
	catalog := NewCatalogService(store, cfg, clk, items, copies)

	return &testEnv{
		store:    store,
		clk:      clk,
		notifier: notifier,
		cfg:      cfg,
		ledger:   ledger,
		fines:    fineSvc,
		circ:     circ,
		waitlist: waitlist,
		catalog:  catalog,
	}
}
