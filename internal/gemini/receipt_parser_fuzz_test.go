package gemini

import (
	"testing"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/models"
)

func FuzzParseReceiptResponse(f *testing.F) {
	for _, seed := range []string{
		`{"amount": "1250.00", "vendor": "Sharma Vegetables", "date": "2026-03-04", "category": "vegetables", "items": ["tomato"], "confidence": 0.9}`,
		`{"amount": "1,850", "vendor": "Indane", "category": "gas"}`,
		`{"amount": "0", "vendor": "", "items": []}`,
		"```json\n{\"amount\": \"640\", \"category\": \"Rice / Potato\"}\n```",
		`{"amount": "₹500"}`,
		`{"amount": "-80.00", "category": "eggs"}`,
		`{"amount": "999999999999.999", "category": "grand"}`,
		`{"date": "04/03/2026", "category": "unknown"}`,
		`{"items": [null, "", "  dal  "]}`,
		`{"vendor": "মাছের বাজার", "category": "fish"}`,
		`{"vendor": "<b>Kirana</b>\"; DROP TABLE expenses;--"}`,
		`[]`,
		`not json`,
		``,
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		result, err := parseReceiptResponse(input)
		if err != nil || result == nil {
			return
		}
		if result.Amount.LessThan(decimal.Zero) {
			t.Errorf("parseReceiptResponse(%q) returned negative amount %v", input, result.Amount)
		}
		if !result.Amount.Equal(result.Amount.Round(2)) {
			t.Errorf("parseReceiptResponse(%q) kept more than two decimals: %v", input, result.Amount)
		}
		if _, err := models.ParseExpenseCategory(string(result.Category)); err != nil {
			t.Errorf("parseReceiptResponse(%q) returned unknown category %q", input, result.Category)
		}
		for _, item := range result.Items {
			if item == "" {
				t.Errorf("parseReceiptResponse(%q) kept an empty item", input)
			}
		}
	})
}
