package meal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

// CountOn counts the records whose status is ON. Day-slots without a
// record are not counted.
func CountOn(records []models.MealRecord) int {
	n := 0
	for i := range records {
		if records[i].Status == models.MealOn {
			n++
		}
	}
	return n
}

// CountsByBoarder counts ON records per boarder.
func CountsByBoarder(records []models.MealRecord) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for i := range records {
		if records[i].Status == models.MealOn {
			counts[records[i].BoarderID]++
		}
	}
	return counts
}

// PreferenceGroup is the headcount of one meal preference.
type PreferenceGroup struct {
	Preference models.Preference
	Count      int
	Names      []string
}

// Headcount is the kitchen view of one slot on one day.
type Headcount struct {
	Date   time.Time
	Slot   models.Slot
	Groups []PreferenceGroup
	Total  int
}

// GroupByPreference joins the roster with one slot's records and groups
// the ON records by the boarder's preference. Records whose boarder is not
// in the roster are skipped. Every preference is present in the result,
// in models.Preferences order, with names sorted.
func GroupByPreference(boarders []models.Boarder, records []models.MealRecord) []PreferenceGroup {
	roster := make(map[uuid.UUID]models.Boarder, len(boarders))
	for _, b := range boarders {
		roster[b.ID] = b
	}

	byPref := make(map[models.Preference]*PreferenceGroup, len(models.Preferences))
	groups := make([]PreferenceGroup, len(models.Preferences))
	for i, p := range models.Preferences {
		groups[i] = PreferenceGroup{Preference: p, Names: []string{}}
		byPref[p] = &groups[i]
	}

	for i := range records {
		if records[i].Status != models.MealOn {
			continue
		}
		b, ok := roster[records[i].BoarderID]
		if !ok {
			continue
		}
		g, ok := byPref[b.Preference]
		if !ok {
			continue
		}
		g.Count++
		g.Names = append(g.Names, b.Name)
	}

	for i := range groups {
		sort.Strings(groups[i].Names)
	}
	return groups
}

// ProjectedHeadcount is Headcount for a day whose records were not
// materialized yet. Active boarders without a record count under
// ResolveStatus. Nothing is written.
func (s *Service) ProjectedHeadcount(ctx context.Context, day time.Time, slot models.Slot) (*Headcount, error) {
	day = dates.Day(day)
	boarders, err := s.boarders.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list boarders: %w", err)
	}
	records, err := s.meals.ListForDay(ctx, day, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal records: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(records))
	for i := range records {
		seen[records[i].BoarderID] = true
	}
	for _, b := range boarders {
		if !seen[b.ID] {
			records = append(records, models.MealRecord{BoarderID: b.ID, Date: day, Slot: slot, Status: ResolveStatus(nil)})
		}
	}

	hc := &Headcount{Date: day, Slot: slot, Groups: GroupByPreference(boarders, records)}
	for _, g := range hc.Groups {
		hc.Total += g.Count
	}
	return hc, nil
}

// CountForBoarder counts a boarder's ON meals from start to end inclusive.
func (s *Service) CountForBoarder(ctx context.Context, boarderID uuid.UUID, start, end time.Time) (int, error) {
	start, end = dates.Day(start), dates.Day(end)
	if end.Before(start) {
		return 0, ErrInvalidRange
	}
	records, err := s.meals.ListForBoarder(ctx, boarderID, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to list meal records: %w", err)
	}
	return CountOn(records), nil
}

// CountsForPeriod counts ON meals per boarder from start to end inclusive.
func (s *Service) CountsForPeriod(ctx context.Context, start, end time.Time) (map[uuid.UUID]int, error) {
	start, end = dates.Day(start), dates.Day(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	records, err := s.meals.ListForPeriod(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal records: %w", err)
	}
	return CountsByBoarder(records), nil
}

// Headcount groups the active roster's ON meals for slot on day.
func (s *Service) Headcount(ctx context.Context, day time.Time, slot models.Slot) (*Headcount, error) {
	day = dates.Day(day)
	boarders, err := s.boarders.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list boarders: %w", err)
	}
	records, err := s.meals.ListForDay(ctx, day, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal records: %w", err)
	}

	hc := &Headcount{Date: day, Slot: slot, Groups: GroupByPreference(boarders, records)}
	for _, g := range hc.Groups {
		hc.Total += g.Count
	}
	return hc, nil
}
