package meal

import (
	"strings"

	"gitlab.com/yelinaung/mess-bot/internal/models"
)

// ResolveStatus is the one place the default-open rule lives: a slot with
// no record is ON, otherwise the record decides.
func ResolveStatus(rec *models.MealRecord) models.MealStatus {
	if rec == nil || rec.Status == "" {
		return models.MealOn
	}
	return rec.Status
}

// Selection picks the slots a bulk change applies to.
type Selection struct {
	Brunch bool
	Dinner bool
}

// Both selects every slot.
var Both = Selection{Brunch: true, Dinner: true}

// ParseSelection parses "brunch", "dinner" or "both". Empty means both.
func ParseSelection(s string) (Selection, error) {
	if v := strings.ToLower(strings.TrimSpace(s)); v == "" || v == "both" {
		return Both, nil
	}
	slot, err := models.ParseSlot(s)
	if err != nil {
		return Selection{}, err
	}
	return SelectionOf(slot), nil
}

// SelectionOf selects a single slot.
func SelectionOf(slot models.Slot) Selection {
	return Selection{Brunch: slot == models.SlotBrunch, Dinner: slot == models.SlotDinner}
}

// Slots returns the selected slots in serving order.
func (s Selection) Slots() []models.Slot {
	var slots []models.Slot
	if s.Brunch {
		slots = append(slots, models.SlotBrunch)
	}
	if s.Dinner {
		slots = append(slots, models.SlotDinner)
	}
	return slots
}
