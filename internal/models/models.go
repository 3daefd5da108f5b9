// Package models defines the domain entities for the mess manager.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrencySymbol is the symbol used when rendering amounts.
const CurrencySymbol = "₹"

// MaxRoomLength is the maximum allowed length for room numbers.
const MaxRoomLength = 10

// Slot is one of the two daily meal periods.
type Slot string

// Meal slots.
const (
	SlotBrunch Slot = "brunch"
	SlotDinner Slot = "dinner"
)

// Slots lists the meal slots in serving order.
var Slots = []Slot{SlotBrunch, SlotDinner}

// ParseSlot parses a slot name case-insensitively.
func ParseSlot(s string) (Slot, error) {
	switch Slot(strings.ToLower(strings.TrimSpace(s))) {
	case SlotBrunch:
		return SlotBrunch, nil
	case SlotDinner:
		return SlotDinner, nil
	}
	return "", fmt.Errorf("unknown meal slot %q", s)
}

// Label returns a human-readable slot name.
func (s Slot) Label() string {
	switch s {
	case SlotBrunch:
		return "Brunch"
	case SlotDinner:
		return "Dinner"
	}
	return string(s)
}

// MealStatus is a boarder's opt-in state for a slot on a date.
type MealStatus string

// Meal statuses.
const (
	MealOn  MealStatus = "ON"
	MealOff MealStatus = "OFF"
)

// ParseMealStatus parses "on"/"off" case-insensitively.
func ParseMealStatus(s string) (MealStatus, error) {
	switch MealStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case MealOn:
		return MealOn, nil
	case MealOff:
		return MealOff, nil
	}
	return "", fmt.Errorf("unknown meal status %q", s)
}

// Preference is a boarder's meal preference.
type Preference string

// Meal preferences.
const (
	PreferenceVeg    Preference = "veg"
	PreferenceNonVeg Preference = "non-veg"
	PreferenceEgg    Preference = "egg"
	PreferenceFish   Preference = "fish"
)

// Preferences lists all meal preferences in display order.
var Preferences = []Preference{PreferenceVeg, PreferenceNonVeg, PreferenceEgg, PreferenceFish}

// ParsePreference parses a preference, accepting "nonveg" as an alias.
func ParsePreference(s string) (Preference, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "nonveg" {
		v = string(PreferenceNonVeg)
	}
	for _, p := range Preferences {
		if string(p) == v {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown meal preference %q", s)
}

// PaymentStatus is the review state of a payment.
type PaymentStatus string

// Payment statuses.
const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// ExpenseCategory is one of the fixed mess expense categories.
type ExpenseCategory string

// Expense categories.
const (
	CategoryFish          ExpenseCategory = "fish"
	CategoryRicePotato    ExpenseCategory = "rice_potato"
	CategoryVegetables    ExpenseCategory = "vegetables"
	CategoryChicken       ExpenseCategory = "chicken"
	CategoryPaneer        ExpenseCategory = "paneer"
	CategoryEggs          ExpenseCategory = "eggs"
	CategoryGrocery       ExpenseCategory = "grocery"
	CategoryGas           ExpenseCategory = "gas"
	CategoryGrand         ExpenseCategory = "grand"
	CategoryMisc          ExpenseCategory = "misc"
	CategoryPreviousMonth ExpenseCategory = "previous_month"
	CategoryStaff         ExpenseCategory = "staff"
)

// ExpenseCategories lists the fixed category set.
var ExpenseCategories = []ExpenseCategory{
	CategoryFish,
	CategoryRicePotato,
	CategoryVegetables,
	CategoryChicken,
	CategoryPaneer,
	CategoryEggs,
	CategoryGrocery,
	CategoryGas,
	CategoryGrand,
	CategoryMisc,
	CategoryPreviousMonth,
	CategoryStaff,
}

// ParseExpenseCategory parses a category name. Runs of spaces, dashes,
// slashes and underscores collapse to a single underscore, so the bucket
// label "Rice / Potato" and "previous month" both work.
func ParseExpenseCategory(s string) (ExpenseCategory, error) {
	v := strings.Join(strings.FieldsFunc(strings.ToLower(s), isCategorySep), "_")
	for _, c := range ExpenseCategories {
		if string(c) == v {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown expense category %q", s)
}

func isCategorySep(r rune) bool {
	switch r {
	case ' ', '\t', '-', '/', '_':
		return true
	}
	return false
}

// StaffRole is the role granted to a non-boarder Telegram user.
type StaffRole string

// Staff roles.
const (
	RoleStaff   StaffRole = "staff"
	RoleManager StaffRole = "manager"
)

// Boarder is a resident subscriber to the meal service.
type Boarder struct {
	ID             uuid.UUID
	TelegramUserID *int64
	Name           string
	Room           string
	Preference     Preference
	Advance        decimal.Decimal
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MealRecord is a boarder's status for one slot on one calendar date.
// Date is the civil date stored as midnight UTC.
type MealRecord struct {
	ID        int64
	BoarderID uuid.UUID
	Date      time.Time
	Slot      Slot
	Status    MealStatus
	ServedBy  string
	ServedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsServed reports whether staff marked the meal as served.
func (r *MealRecord) IsServed() bool {
	return r.ServedBy != ""
}

// Expense is a single mess expenditure.
type Expense struct {
	ID            int
	Date          time.Time
	Category      ExpenseCategory
	Amount        decimal.Decimal
	Description   string
	ReceiptFileID string
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Payment is money handed in by a boarder, pending manager review.
type Payment struct {
	ID         int
	BoarderID  uuid.UUID
	Amount     decimal.Decimal
	ProofRef   string
	Status     PaymentStatus
	ReviewedBy *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PushToken is an Expo device token registered by a boarder.
type PushToken struct {
	ID        int
	BoarderID uuid.UUID
	Token     string
	CreatedAt time.Time
}

// StaffMember is a Telegram user granted a staff or manager role.
type StaffMember struct {
	ID        int
	UserID    int64
	Username  string
	Role      StaffRole
	GrantedBy int64
	CreatedAt time.Time
}
