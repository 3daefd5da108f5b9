package billing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Literal section headers of the statement export.
var (
	HeaderExpenditure = []string{"EXPENDITURE (₹)", "AMOUNT", "SOURCE (₹) (incoming)", "AMOUNT"}
	HeaderSummary     = []string{"ITEM / DESCRIPTION", "VALUE / REMARK"}
	HeaderRooms       = []string{
		"ROOM NO.", "MEAL COUNT", "MEAL * 30", "EST",
		"GUEST MEAL (C) *50", "GUEST MEAL (N) *40",
		"Previous Month Due (+/-)", "Total Deposit", "Final Due (+/-)",
	}
)

// WriteCSV writes the statement as three comma-separated sections
// separated by blank lines: expenditure against incoming money, the
// derived summary values, and one billing row per room.
func WriteCSV(w io.Writer, st *Statement) error {
	cw := csv.NewWriter(w)

	records := [][]string{HeaderExpenditure}
	for i, b := range st.Buckets {
		source, amount := "", ""
		if i == 0 {
			source, amount = "Approved Payments", st.TotalIncoming.StringFixed(2)
		}
		records = append(records, []string{b.Name, b.Amount.StringFixed(2), source, amount})
	}
	records = append(records,
		[]string{"TOTAL", st.TotalExpenditure.StringFixed(2), "TOTAL", st.TotalIncoming.StringFixed(2)},
		nil,
		HeaderSummary,
		[]string{"Month", st.Month.Format("2006-01")},
		[]string{"Total Expenditure", st.TotalExpenditure.StringFixed(2)},
		[]string{"Total Incoming", st.TotalIncoming.StringFixed(2)},
		[]string{"Deficit (Expenditure - Incoming)", st.Deficit.StringFixed(2)},
		[]string{"Active Boarders", strconv.Itoa(st.ActiveBoarders)},
		[]string{"EST (Deficit / Active Boarders)", st.EST.StringFixed(2)},
		[]string{"Meal Rate", strconv.Itoa(MealRate)},
		[]string{"Total Meals", strconv.Itoa(st.TotalMeals)},
		nil,
		HeaderRooms,
	)
	for _, r := range st.Rows {
		records = append(records, []string{
			r.Room,
			strconv.Itoa(r.Meals),
			r.MealCost.StringFixed(2),
			r.EST.StringFixed(2),
			r.GuestMealC.StringFixed(2),
			r.GuestMealN.StringFixed(2),
			r.PreviousDue.StringFixed(2),
			r.Deposit.StringFixed(2),
			r.Due.StringFixed(2),
		})
	}

	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// GenerateStatementCSV renders the statement export into memory.
func GenerateStatementCSV(st *Statement) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StatementFilename names the export of a month, e.g. "statement_2026-03.csv".
func StatementFilename(st *Statement) string {
	return fmt.Sprintf("statement_%s.csv", st.Month.Format("2006-01"))
}
