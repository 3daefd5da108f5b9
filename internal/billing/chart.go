package billing

import (
	"errors"
	"fmt"

	"github.com/go-analyze/charts"
)

// ErrNothingToChart is returned when every bucket is zero.
var ErrNothingToChart = errors.New("no expenses to chart")

// GenerateExpenseChart renders a pie chart of the non-zero bucket totals
// and returns it as PNG bytes.
func GenerateExpenseChart(buckets []BucketTotal, title string) ([]byte, error) {
	var values []float64
	var names []string
	for _, b := range buckets {
		if !b.Amount.IsPositive() {
			continue
		}
		names = append(names, b.Name)
		values = append(values, b.Amount.InexactFloat64())
	}
	if len(values) == 0 {
		return nil, ErrNothingToChart
	}

	p, err := charts.PieRender(
		values,
		charts.TitleOptionFunc(charts.TitleOption{
			Text: title,
		}),
		charts.LegendLabelsOptionFunc(names),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf, nil
}

// ChartFilename names the chart of a statement, e.g. "expenses_2026-03.png".
func ChartFilename(st *Statement) string {
	return fmt.Sprintf("expenses_%s.png", st.Month.Format("2006-01"))
}
