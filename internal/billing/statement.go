// Package billing computes the month-end mess statement.
package billing

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

// MealRate is the fixed charge per ON meal.
const MealRate = 30

// Bucket is a reported expenditure line. Some categories share a bucket.
type Bucket struct {
	Name       string
	Categories []models.ExpenseCategory
}

// Buckets are the expenditure lines of a statement, in report order.
var Buckets = []Bucket{
	{Name: "Fish", Categories: []models.ExpenseCategory{models.CategoryFish}},
	{Name: "Rice / Potato", Categories: []models.ExpenseCategory{models.CategoryRicePotato}},
	{Name: "Vegetables", Categories: []models.ExpenseCategory{models.CategoryVegetables}},
	{Name: "Chicken / Paneer", Categories: []models.ExpenseCategory{models.CategoryChicken, models.CategoryPaneer}},
	{Name: "Eggs", Categories: []models.ExpenseCategory{models.CategoryEggs}},
	{Name: "Grocery", Categories: []models.ExpenseCategory{models.CategoryGrocery}},
	{Name: "Gas", Categories: []models.ExpenseCategory{models.CategoryGas}},
	{Name: "Grand", Categories: []models.ExpenseCategory{models.CategoryGrand}},
	{Name: "Misc", Categories: []models.ExpenseCategory{models.CategoryMisc}},
	{Name: "Previous Month", Categories: []models.ExpenseCategory{models.CategoryPreviousMonth}},
	{Name: "Staff", Categories: []models.ExpenseCategory{models.CategoryStaff}},
}

var bucketIndex = func() map[models.ExpenseCategory]int {
	idx := make(map[models.ExpenseCategory]int)
	for i, b := range Buckets {
		for _, c := range b.Categories {
			idx[c] = i
		}
	}
	return idx
}()

// BucketTotal is the sum of one bucket.
type BucketTotal struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// SumByBucket accumulates expenses into Buckets. Expenses whose category
// belongs to no bucket are ignored.
func SumByBucket(expenses []models.Expense) []BucketTotal {
	totals := make([]BucketTotal, len(Buckets))
	for i, b := range Buckets {
		totals[i] = BucketTotal{Name: b.Name, Amount: decimal.Zero}
	}
	for i := range expenses {
		j, ok := bucketIndex[expenses[i].Category]
		if !ok {
			continue
		}
		totals[j].Amount = totals[j].Amount.Add(expenses[i].Amount)
	}
	return totals
}

// Input holds the four independent inputs of a statement.
type Input struct {
	Month            time.Time
	Expenses         []models.Expense
	ApprovedPayments decimal.Decimal
	Boarders         []models.Boarder
	MealCounts       map[uuid.UUID]int
}

// Row is the bill of one boarder.
type Row struct {
	BoarderID   uuid.UUID
	Room        string
	Name        string
	Meals       int
	MealCost    decimal.Decimal
	EST         decimal.Decimal
	GuestMealC  decimal.Decimal
	GuestMealN  decimal.Decimal
	PreviousDue decimal.Decimal
	Deposit     decimal.Decimal
	Due         decimal.Decimal
}

// Statement is the computed month-end statement.
type Statement struct {
	Month            time.Time
	Buckets          []BucketTotal
	TotalExpenditure decimal.Decimal
	TotalIncoming    decimal.Decimal
	Deficit          decimal.Decimal
	ActiveBoarders   int
	EST              decimal.Decimal
	TotalMeals       int
	Rows             []Row
}

// ComputeStatement derives the statement from its inputs. EST is the
// deficit shared flat across active boarders, rounded to two places, and
// is the same on every row. Inactive boarders are left out.
func ComputeStatement(in Input) *Statement {
	st := &Statement{
		Month:            in.Month,
		Buckets:          SumByBucket(in.Expenses),
		TotalExpenditure: decimal.Zero,
		TotalIncoming:    in.ApprovedPayments,
		EST:              decimal.Zero,
	}
	for _, b := range st.Buckets {
		st.TotalExpenditure = st.TotalExpenditure.Add(b.Amount)
	}
	st.Deficit = st.TotalExpenditure.Sub(st.TotalIncoming)

	var active []models.Boarder
	for _, b := range in.Boarders {
		if b.Active {
			active = append(active, b)
		}
	}
	st.ActiveBoarders = len(active)
	if st.ActiveBoarders > 0 {
		st.EST = st.Deficit.DivRound(decimal.NewFromInt(int64(st.ActiveBoarders)), 2)
	}

	rate := decimal.NewFromInt(MealRate)
	st.Rows = make([]Row, 0, len(active))
	for _, b := range active {
		meals := in.MealCounts[b.ID]
		cost := rate.Mul(decimal.NewFromInt(int64(meals)))
		st.TotalMeals += meals
		st.Rows = append(st.Rows, Row{
			BoarderID:   b.ID,
			Room:        b.Room,
			Name:        b.Name,
			Meals:       meals,
			MealCost:    cost,
			EST:         st.EST,
			GuestMealC:  decimal.Zero,
			GuestMealN:  decimal.Zero,
			PreviousDue: decimal.Zero,
			Deposit:     b.Advance,
			Due:         cost.Add(st.EST).Sub(b.Advance),
		})
	}
	sort.SliceStable(st.Rows, func(i, j int) bool {
		return lessRoom(st.Rows[i].Room, st.Rows[j].Room)
	})
	return st
}

// lessRoom orders numeric room numbers numerically and everything else
// lexically after them.
func lessRoom(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
