package meal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"gitlab.com/yelinaung/mess-bot/internal/repository"
)

type recordKey struct {
	boarder uuid.UUID
	day     time.Time
	slot    models.Slot
}

// fakeMeals is an in-memory Repository with optional failure injection.
type fakeMeals struct {
	mu      sync.Mutex
	records map[recordKey]*models.MealRecord
	nextID  int64

	// failOn makes SetStatus fail for the given day.
	failOn map[time.Time]bool
	// onGet runs before every lookup, used to move the clock.
	onGet   func()
	listErr error
}

func newFakeMeals() *fakeMeals {
	return &fakeMeals{records: make(map[recordKey]*models.MealRecord), failOn: make(map[time.Time]bool)}
}

func (f *fakeMeals) Get(_ context.Context, boarderID uuid.UUID, day time.Time, slot models.Slot) (*models.MealRecord, error) {
	if f.onGet != nil {
		f.onGet()
	}
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
	if f.failOn[day] {
		return errors.New("write failed")
	}
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

func (f *fakeMeals) list(match func(*models.MealRecord) bool) ([]models.MealRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.MealRecord
	for _, rec := range f.records {
		if match(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMeals) ListForBoarder(_ context.Context, boarderID uuid.UUID, from, to time.Time) ([]models.MealRecord, error) {
	return f.list(func(r *models.MealRecord) bool {
		return r.BoarderID == boarderID && !r.Date.Before(from) && !r.Date.After(to)
	})
}

func (f *fakeMeals) ListForDay(_ context.Context, day time.Time, slot models.Slot) ([]models.MealRecord, error) {
	return f.list(func(r *models.MealRecord) bool {
		return r.Date.Equal(day) && r.Slot == slot
	})
}

func (f *fakeMeals) ListForPeriod(_ context.Context, from, to time.Time) ([]models.MealRecord, error) {
	return f.list(func(r *models.MealRecord) bool {
		return !r.Date.Before(from) && !r.Date.After(to)
	})
}

type fakeRoster struct {
	boarders []models.Boarder
	err      error
}

func (f *fakeRoster) ListActive(context.Context) ([]models.Boarder, error) {
	return f.boarders, f.err
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var messLoc = time.FixedZone("IST", 5*3600+1800)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, messLoc)
}

func newTestService(now time.Time, boarders ...models.Boarder) (*Service, *fakeMeals, *clock) {
	meals := newFakeMeals()
	c := &clock{now: now}
	svc := NewService(meals, &fakeRoster{boarders: boarders}, DefaultPolicy, messLoc).WithClock(c.Now)
	return svc, meals, c
}

func boarder(room, name string, pref models.Preference) models.Boarder {
	return models.Boarder{ID: uuid.New(), Name: name, Room: room, Preference: pref, Active: true}
}
