package bot

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/billing"
	"gitlab.com/yelinaung/mess-bot/internal/bot/mocks"
	"gitlab.com/yelinaung/mess-bot/internal/cache"
	"gitlab.com/yelinaung/mess-bot/internal/config"
	"gitlab.com/yelinaung/mess-bot/internal/gemini"
	"gitlab.com/yelinaung/mess-bot/internal/meal"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/payment"
	"gitlab.com/yelinaung/mess-bot/internal/push"
	"gitlab.com/yelinaung/mess-bot/internal/reminder"
	"gitlab.com/yelinaung/mess-bot/internal/repository"
)

// Test users. The manager and staff IDs are configured; everyone else
// has no role.
const (
	testManagerID int64 = 100
	testStaffID   int64 = 200
	testBoarderID int64 = 300
	testChatID    int64 = 300
)

var _ TelegramAPI = (*mocks.MockBot)(nil)

var testLoc = time.FixedZone("IST", 5*3600+1800)

func testTime(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, testLoc)
}

// fakeBoarders is an in-memory boarder store that also keeps advances.
type fakeBoarders struct {
	mu       sync.Mutex
	boarders map[uuid.UUID]*models.Boarder
	err      error
}

func newFakeBoarders() *fakeBoarders {
	return &fakeBoarders{boarders: make(map[uuid.UUID]*models.Boarder)}
}

func (f *fakeBoarders) Create(_ context.Context, b *models.Boarder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, existing := range f.boarders {
		if existing.Active && strings.EqualFold(existing.Room, b.Room) {
			return repository.ErrDuplicate
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Active = true
	cp := *b
	f.boarders[b.ID] = &cp
	return nil
}

func (f *fakeBoarders) find(match func(*models.Boarder) bool) (*models.Boarder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, b := range f.boarders {
		if match(b) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeBoarders) GetByID(_ context.Context, id uuid.UUID) (*models.Boarder, error) {
	return f.find(func(b *models.Boarder) bool { return b.ID == id })
}

func (f *fakeBoarders) GetByTelegramID(_ context.Context, userID int64) (*models.Boarder, error) {
	return f.find(func(b *models.Boarder) bool { return b.TelegramUserID != nil && *b.TelegramUserID == userID })
}

func (f *fakeBoarders) GetByRoom(_ context.Context, room string) (*models.Boarder, error) {
	return f.find(func(b *models.Boarder) bool { return b.Active && strings.EqualFold(b.Room, room) })
}

func (f *fakeBoarders) ListActive(context.Context) ([]models.Boarder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Boarder
	for _, b := range f.boarders {
		if b.Active {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out, nil
}

func (f *fakeBoarders) Deactivate(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boarders[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Active = false
	return nil
}

func (f *fakeBoarders) AdjustAdvance(_ context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boarders[id]
	if !ok {
		return decimal.Zero, repository.ErrNotFound
	}
	b.Advance = b.Advance.Add(delta)
	return b.Advance, nil
}

func (f *fakeBoarders) SetAdvance(_ context.Context, id uuid.UUID, value decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boarders[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Advance = value
	return nil
}

// add stores an active boarder directly, linked to userID when non-zero.
func (f *fakeBoarders) add(room, name string, pref models.Preference, userID int64) *models.Boarder {
	b := &models.Boarder{ID: uuid.New(), Room: room, Name: name, Preference: pref, Active: true}
	if userID != 0 {
		b.TelegramUserID = &userID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	f.boarders[b.ID] = &cp
	return b
}

func (f *fakeBoarders) get(id uuid.UUID) models.Boarder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.boarders[id]
}

type recordKey struct {
	boarder uuid.UUID
	day     time.Time
	slot    models.Slot
}

// fakeMeals is an in-memory meal.Repository.
type fakeMeals struct {
	mu      sync.Mutex
	records map[recordKey]*models.MealRecord
	nextID  int64
}

func newFakeMeals() *fakeMeals {
	return &fakeMeals{records: make(map[recordKey]*models.MealRecord)}
}

func (f *fakeMeals) Get(_ context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot) (*models.MealRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordKey{boarderID, day, slot}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeMeals) CreateIfMissing(_ context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot, status models.MealStatus) (*models.MealRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := recordKey{boarderID, day, slot}
	if rec, ok := f.records[k]; ok {
		cp := *rec
		return &cp, nil
	}
	f.nextID++
	rec := &models.MealRecord{ID: f.nextID, BoarderID: boarderID, Date: day, Slot: slot, Status: status}
	f.records[k] = rec
	cp := *rec
	return &cp, nil
}

func (f *fakeMeals) SetStatus(_ context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot, status models.MealStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordKey{boarderID, day, slot}]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Status = status
	return nil
}

func (f *fakeMeals) MarkServed(_ context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot, servedBy string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordKey{boarderID, day, slot}]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.ServedBy == "" {
		rec.ServedBy = servedBy
		rec.ServedAt = &at
	}
	return nil
}

func (f *fakeMeals) list(match func(*models.MealRecord) bool) []models.MealRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MealRecord
	for _, rec := range f.records {
		if match(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeMeals) ListForBoarder(_ context.Context, boarderID uuid.UUID, from, to time.Time) ([]models.MealRecord, error) {
	return f.list(func(r *models.MealRecord) bool {
		return r.BoarderID == boarderID && !r.Date.Before(from) && !r.Date.After(to)
	}), nil
}

func (f *fakeMeals) ListForDay(_ context.Context, day time.Time, slot models.Slot) ([]models.MealRecord, error) {
	return f.list(func(r *models.MealRecord) bool { return r.Date.Equal(day) && r.Slot == slot }), nil
}

func (f *fakeMeals) ListForPeriod(_ context.Context, from, to time.Time) ([]models.MealRecord, error) {
	return f.list(func(r *models.MealRecord) bool { return !r.Date.Before(from) && !r.Date.After(to) }), nil
}

func (f *fakeMeals) status(boarderID uuid.UUID, day time.Time, slot models.Slot) (models.MealStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordKey{boarderID, day, slot}]
	if !ok {
		return "", false
	}
	return rec.Status, true
}

// fakeStaff is an in-memory StaffStore.
type fakeStaff struct {
	mu      sync.Mutex
	members []models.StaffMember
}

func (f *fakeStaff) Grant(_ context.Context, userID int64, username string, role models.StaffRole, grantedBy int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.members {
		if f.members[i].UserID == userID {
			f.members[i].Role = role
			return nil
		}
	}
	f.members = append(f.members, models.StaffMember{UserID: userID, Username: username, Role: role, GrantedBy: grantedBy})
	return nil
}

func (f *fakeStaff) GrantByUsername(_ context.Context, username string, role models.StaffRole, grantedBy int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.members {
		if strings.EqualFold(f.members[i].Username, username) {
			f.members[i].Role = role
			return nil
		}
	}
	f.members = append(f.members, models.StaffMember{Username: username, Role: role, GrantedBy: grantedBy})
	return nil
}

func (f *fakeStaff) RoleOf(_ context.Context, userID int64, username string) (models.StaffRole, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.UserID != 0 && m.UserID == userID {
			return m.Role, false, nil
		}
	}
	for _, m := range f.members {
		if username != "" && m.UserID == 0 && strings.EqualFold(m.Username, username) {
			return m.Role, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeStaff) Revoke(_ context.Context, userID int64) error {
	return f.remove(func(m models.StaffMember) bool { return m.UserID == userID })
}

func (f *fakeStaff) RevokeByUsername(_ context.Context, username string) error {
	return f.remove(func(m models.StaffMember) bool { return strings.EqualFold(m.Username, username) })
}

func (f *fakeStaff) remove(match func(models.StaffMember) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.members[:0]
	for _, m := range f.members {
		if !match(m) {
			kept = append(kept, m)
		}
	}
	f.members = kept
	return nil
}

func (f *fakeStaff) UpdateUserID(_ context.Context, username string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.members {
		if f.members[i].UserID == 0 && strings.EqualFold(f.members[i].Username, username) {
			f.members[i].UserID = userID
		}
	}
	return nil
}

func (f *fakeStaff) GetAll(context.Context) ([]models.StaffMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.StaffMember(nil), f.members...), nil
}

// fakeTokens stores push tokens for both the bot and the reminder job.
type fakeTokens struct {
	mu     sync.Mutex
	tokens map[uuid.UUID][]string
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: make(map[uuid.UUID][]string)}
}

func (f *fakeTokens) Register(_ context.Context, boarderID uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[boarderID] = append(f.tokens[boarderID], token)
	return nil
}

func (f *fakeTokens) TokensByBoarder(context.Context) (map[uuid.UUID][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID][]string, len(f.tokens))
	for k, v := range f.tokens {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (f *fakeTokens) Delete(_ context.Context, tokens []string) (int, error) {
	return 0, nil
}

// fakePayments is an in-memory payment.Repository and billing.PaymentTotaler.
type fakePayments struct {
	mu       sync.Mutex
	payments map[int]*models.Payment
	nextID   int
	now      func() time.Time
}

func newFakePayments(now func() time.Time) *fakePayments {
	return &fakePayments{payments: make(map[int]*models.Payment), now: now}
}

func (f *fakePayments) Create(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = f.now()
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakePayments) GetByID(_ context.Context, id int) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) ListPending(context.Context) ([]models.Payment, error) {
	return f.list(func(p *models.Payment) bool { return p.Status == models.PaymentPending }, 0), nil
}

func (f *fakePayments) ListForBoarder(_ context.Context, boarderID uuid.UUID, limit int) ([]models.Payment, error) {
	return f.list(func(p *models.Payment) bool { return p.BoarderID == boarderID }, limit), nil
}

func (f *fakePayments) list(match func(*models.Payment) bool, limit int) []models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for id := 1; id <= f.nextID; id++ {
		if p, ok := f.payments[id]; ok && match(p) {
			out = append(out, *p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakePayments) TransitionStatus(_ context.Context, id int, from, to models.PaymentStatus, reviewer *int64) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Status != from {
		return nil, repository.ErrConflict
	}
	p.Status = to
	p.ReviewedBy = reviewer
	cp := *p
	return &cp, nil
}

func (f *fakePayments) TotalApproved(_ context.Context, start, end time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range f.list(func(p *models.Payment) bool { return p.Status == models.PaymentApproved }, 0) {
		if !p.CreatedAt.Before(start) && p.CreatedAt.Before(end) {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

// fakeExpenses is an in-memory billing.ExpenseStore.
type fakeExpenses struct {
	mu       sync.Mutex
	expenses []models.Expense
	err      error
}

func (f *fakeExpenses) Create(_ context.Context, e *models.Expense) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	e.ID = len(f.expenses) + 1
	f.expenses = append(f.expenses, *e)
	return nil
}

func (f *fakeExpenses) ListForPeriod(_ context.Context, start, end time.Time) ([]models.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Expense
	for _, e := range f.expenses {
		if !e.Date.Before(start) && e.Date.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExpenses) all() []models.Expense {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Expense(nil), f.expenses...)
}

// fakeReceipts returns a fixed parse result.
type fakeReceipts struct {
	data *gemini.ReceiptData
	err  error
}

func (f *fakeReceipts) ParseReceipt(context.Context, []byte, string) (*gemini.ReceiptData, error) {
	return f.data, f.err
}

// fakePush records every batch it is asked to send.
type fakePush struct {
	mu      sync.Mutex
	batches [][]push.Message
	err     error
}

func (f *fakePush) Send(_ context.Context, messages []push.Message) (*push.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, messages)
	return &push.Result{}, nil
}

func (f *fakePush) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

// testClock is a settable time source shared by every service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// testEnv exposes the fakes behind a test Bot.
type testEnv struct {
	clock    *testClock
	boarders *fakeBoarders
	meals    *fakeMeals
	staff    *fakeStaff
	tokens   *fakeTokens
	payments *fakePayments
	expenses *fakeExpenses
	push     *fakePush
}

var errStoreDown = errors.New("store unavailable")

// setupTestBot builds a Bot on real services over in-memory stores, with
// the clock fixed at now.
func setupTestBot(t *testing.T, now time.Time) (*Bot, *testEnv) {
	t.Helper()

	env := &testEnv{
		clock:    &testClock{now: now},
		boarders: newFakeBoarders(),
		meals:    newFakeMeals(),
		staff:    &fakeStaff{},
		tokens:   newFakeTokens(),
		expenses: &fakeExpenses{},
		push:     &fakePush{},
	}
	env.payments = newFakePayments(env.clock.Now)

	cfg := &config.Config{
		TelegramBotToken: "test-token",
		DatabaseURL:      "test-url",
		ManagerUserIDs:   []int64{testManagerID},
		StaffUserIDs:     []int64{testStaffID},
		Timezone:         "Asia/Kolkata",
		RemindersEnabled: true,
	}

	c := cache.New(cache.NewMemoryStore())
	meals := meal.NewService(env.meals, env.boarders, meal.DefaultPolicy, testLoc).WithClock(env.clock.Now)
	billingSvc := billing.NewService(env.expenses, env.payments, env.boarders, meals, c, testLoc).WithClock(env.clock.Now)
	payments := payment.NewService(env.payments, env.boarders, c)
	job := reminder.NewJob(meal.DefaultPolicy, testLoc, env.boarders, env.meals, env.tokens, env.push)

	b := newBot(cfg, Deps{
		Boarders:  env.boarders,
		Staff:     env.staff,
		Tokens:    env.tokens,
		Meals:     meals,
		Billing:   billingSvc,
		Payments:  payments,
		Reminders: job,
		Cache:     c,
	})
	return b, env
}

// mustParseDecimal parses a decimal string or panics (for test data).
func mustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("invalid decimal in test: " + s)
	}
	return d
}
