// Package meal implements meal-status rules, toggling, serving and counting.
package meal

import (
	"errors"
	"fmt"
	"time"

	"gitlab.com/yelinaung/mess-bot/internal/dates"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

var (
	// ErrToggleLocked is returned when a slot can no longer be turned off today.
	ErrToggleLocked = errors.New("meal can no longer be turned off for today")
	// ErrDateInPast is returned for changes to days that already ended.
	ErrDateInPast = errors.New("date is in the past")
	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("end date is before start date")
	// ErrRangeTooLong is returned when a range exceeds MaxRangeDays.
	ErrRangeTooLong = errors.New("date range is too long")
	// ErrNoSlotSelected is returned when a bulk change selects no slot.
	ErrNoSlotSelected = errors.New("no meal slot selected")
	// ErrServingClosed is returned outside a slot's serving window.
	ErrServingClosed = errors.New("serving window is closed")
	// ErrMealOff is returned when serving a boarder whose meal is off.
	ErrMealOff = errors.New("meal is turned off")
)

// MaxRangeDays bounds a single bulk range change.
const MaxRangeDays = 62

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

// String renders the time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// SlotPolicy holds the time rules of one meal slot.
type SlotPolicy struct {
	// LockAt is the time of day after which the slot cannot be turned off
	// for the current day.
	LockAt ClockTime
	// ServeFrom and ServeUntil bound the serving window, start inclusive,
	// end exclusive.
	ServeFrom  ClockTime
	ServeUntil ClockTime
}

// ReminderRule maps a reminder run hour to the slot and day it is about.
type ReminderRule struct {
	Hour      int
	Slot      models.Slot
	DayOffset int
}

// Policy is the single source of the mess time rules. The bot, the meal
// service and the reminder job all read the same value so the cutoffs
// cannot drift apart.
type Policy struct {
	Version   string
	Slots     map[models.Slot]SlotPolicy
	Reminders []ReminderRule
}

// DefaultPolicy is the policy the mess runs with.
var DefaultPolicy = Policy{
	Version: "2024.1",
	Slots: map[models.Slot]SlotPolicy{
		models.SlotBrunch: {
			LockAt:     ClockTime{Hour: 5},
			ServeFrom:  ClockTime{Hour: 10},
			ServeUntil: ClockTime{Hour: 14, Minute: 10},
		},
		models.SlotDinner: {
			LockAt:     ClockTime{Hour: 17},
			ServeFrom:  ClockTime{Hour: 20},
			ServeUntil: ClockTime{Hour: 22, Minute: 10},
		},
	},
	Reminders: []ReminderRule{
		{Hour: 15, Slot: models.SlotDinner, DayOffset: 0},
		{Hour: 23, Slot: models.SlotBrunch, DayOffset: 1},
	},
}

// Slot returns the rules of a slot.
func (p Policy) Slot(slot models.Slot) (SlotPolicy, error) {
	sp, ok := p.Slots[slot]
	if !ok {
		return SlotPolicy{}, fmt.Errorf("no policy for slot %q", slot)
	}
	return sp, nil
}

// LockTime returns the instant on day after which slot is locked, in now's location.
func (p Policy) LockTime(day time.Time, slot models.Slot, loc *time.Location) (time.Time, error) {
	sp, err := p.Slot(slot)
	if err != nil {
		return time.Time{}, err
	}
	return dates.At(day, sp.LockAt.Hour, sp.LockAt.Minute, loc), nil
}

// CheckToggle reports whether setting slot on day to status is allowed at
// now. Only turning a meal off is restricted, and only on the current day
// at or after the slot's lock time. now must be in the mess location.
func (p Policy) CheckToggle(now, day time.Time, slot models.Slot, status models.MealStatus) error {
	today := dates.Day(now)
	day = dates.Day(day)
	if day.Before(today) {
		return ErrDateInPast
	}
	sp, err := p.Slot(slot)
	if err != nil {
		return err
	}
	if status == models.MealOn || day.After(today) {
		return nil
	}
	if now.Hour()*60+now.Minute() >= sp.LockAt.minutes() {
		return fmt.Errorf("%w: %s locks at %s", ErrToggleLocked, slot.Label(), sp.LockAt)
	}
	return nil
}

// ServingOpen reports whether slot is inside its serving window at now.
func (p Policy) ServingOpen(now time.Time, slot models.Slot) bool {
	sp, err := p.Slot(slot)
	if err != nil {
		return false
	}
	m := now.Hour()*60 + now.Minute()
	return m >= sp.ServeFrom.minutes() && m < sp.ServeUntil.minutes()
}

// ServingSlot returns the slot whose serving window is open at now, if any.
func (p Policy) ServingSlot(now time.Time) (models.Slot, bool) {
	for _, slot := range models.Slots {
		if p.ServingOpen(now, slot) {
			return slot, true
		}
	}
	return "", false
}

// ReminderFor returns the reminder rule scheduled for hour.
func (p Policy) ReminderFor(hour int) (ReminderRule, bool) {
	for _, r := range p.Reminders {
		if r.Hour == hour {
			return r, true
		}
	}
	return ReminderRule{}, false
}
