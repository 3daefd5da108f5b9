//go:build ignore
// +build ignore

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/billing"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

func main() {
	expenses := []models.Expense{
		{Amount: decimal.NewFromFloat(4200), Category: models.CategoryFish},
		{Amount: decimal.NewFromFloat(3150.50), Category: models.CategoryRicePotato},
		{Amount: decimal.NewFromFloat(2600), Category: models.CategoryVegetables},
		{Amount: decimal.NewFromFloat(1800), Category: models.CategoryChicken},
		{Amount: decimal.NewFromFloat(650), Category: models.CategoryPaneer},
		{Amount: decimal.NewFromFloat(1100), Category: models.CategoryGas},
		{Amount: decimal.NewFromFloat(5000), Category: models.CategoryStaff},
	}

	st := billing.ComputeStatement(billing.Input{
		Month:    time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		Expenses: expenses,
	})

	chartData, err := billing.GenerateExpenseChart(st.Buckets, "Mess expenses (March 2026)")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	filename := billing.ChartFilename(st)
	if err := os.WriteFile(filename, chartData, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Created %s - Example mess expense chart\n", filename)
}
