package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/mess-bot/internal/models"
	"google.golang.org/genai"
)

// ParseReceiptTimeout is the default timeout for a receipt request.
const ParseReceiptTimeout = 30 * time.Second

// ErrParseTimeout indicates the Gemini API call timed out.
var ErrParseTimeout = errors.New("receipt parsing timed out")

// ErrNoData indicates no usable data could be extracted from the receipt.
var ErrNoData = errors.New("no usable data extracted from receipt")

// categoryHints describes each mess category for the model.
var categoryHints = map[models.ExpenseCategory]string{
	models.CategoryFish:          "fresh or dried fish",
	models.CategoryRicePotato:    "rice, atta, potatoes, onions",
	models.CategoryVegetables:    "vegetables and fruit",
	models.CategoryChicken:       "chicken or mutton",
	models.CategoryPaneer:        "paneer and dairy",
	models.CategoryEggs:          "eggs",
	models.CategoryGrocery:       "oil, spices, pulses, packaged groceries",
	models.CategoryGas:           "LPG cylinders and fuel",
	models.CategoryGrand:         "feast or special meal purchases",
	models.CategoryMisc:          "anything else",
	models.CategoryPreviousMonth: "dues carried over from the previous month",
	models.CategoryStaff:         "cook and helper wages",
}

// ReceiptData contains the extracted data from a receipt image.
type ReceiptData struct {
	Amount     decimal.Decimal
	Vendor     string
	Date       time.Time
	Category   models.ExpenseCategory
	Items      []string
	Confidence float64
}

// HasAmount returns true if the amount was extracted.
func (r *ReceiptData) HasAmount() bool {
	return r.Amount.IsPositive()
}

// IsEmpty returns true if no usable data was extracted.
func (r *ReceiptData) IsEmpty() bool {
	return !r.HasAmount() && r.Vendor == "" && len(r.Items) == 0
}

// Description joins the vendor and the first few items for the expense row.
func (r *ReceiptData) Description() string {
	parts := make([]string, 0, 2)
	if r.Vendor != "" {
		parts = append(parts, r.Vendor)
	}
	if len(r.Items) > 0 {
		items := r.Items
		if len(items) > 5 {
			items = items[:5]
		}
		parts = append(parts, strings.Join(items, ", "))
	}
	return strings.Join(parts, ": ")
}

// receiptResponse is the JSON structure returned by Gemini.
type receiptResponse struct {
	Amount     string   `json:"amount"`
	Vendor     string   `json:"vendor"`
	Date       string   `json:"date"`
	Category   string   `json:"category"`
	Items      []string `json:"items"`
	Confidence float64  `json:"confidence"`
}

// ParseReceipt extracts a mess expense from a receipt image using Gemini.
func (c *Client) ParseReceipt(ctx context.Context, imageBytes []byte, mimeType string) (*ReceiptData, error) {
	if len(imageBytes) == 0 {
		return nil, errors.New("image data is required")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.generator.GenerateContent(timeoutCtx, c.model, []*genai.Content{
		{
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageBytes}},
				{Text: buildReceiptPrompt(models.ExpenseCategories)},
			},
		},
	}, &genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrParseTimeout
		}
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("no response from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return nil, errors.New("empty response from Gemini")
	}

	data, err := parseReceiptResponse(text.String())
	if err != nil {
		return nil, err
	}
	if data.IsEmpty() {
		return nil, ErrNoData
	}
	return data, nil
}

func buildReceiptPrompt(categories []models.ExpenseCategory) string {
	var list strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&list, "  - %s: %s\n", c, categoryHints[c])
	}
	return fmt.Sprintf(`This is a purchase receipt for a hostel mess kitchen in India.
Return ONLY a JSON object with no additional text or markdown formatting.

Fields:
- amount: the total paid in rupees (numeric string, e.g. "1250.00")
- vendor: the shop or seller name
- date: the purchase date in YYYY-MM-DD format
- category: exactly one of these keys:
%s- items: up to 10 purchased item names
- confidence: your confidence in the extraction (0.0 to 1.0)

If a field cannot be determined, use an empty string, "0" for amount, [] for items or 0.0 for confidence.

Example response:
{"amount": "1250.00", "vendor": "Sharma Vegetables", "date": "2024-01-15", "category": "vegetables", "items": ["tomato", "onion"], "confidence": 0.9}`, list.String())
}

func parseReceiptResponse(response string) (*ReceiptData, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var rr receiptResponse
	if err := json.Unmarshal([]byte(response), &rr); err != nil {
		return nil, fmt.Errorf("failed to parse receipt response: %w", err)
	}

	data := &ReceiptData{
		Vendor:     strings.TrimSpace(rr.Vendor),
		Category:   models.CategoryMisc,
		Confidence: rr.Confidence,
	}

	if c, err := models.ParseExpenseCategory(rr.Category); err == nil {
		data.Category = c
	}

	for _, item := range rr.Items {
		if item = strings.TrimSpace(item); item != "" {
			data.Items = append(data.Items, item)
		}
	}

	amount := strings.ReplaceAll(strings.TrimSpace(rr.Amount), ",", "")
	if amount != "" && amount != "0" {
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", rr.Amount, err)
		}
		if v.IsNegative() {
			return nil, fmt.Errorf("receipt amount %s is negative", v)
		}
		data.Amount = v.Round(2)
	}

	if rr.Date != "" {
		if date, err := time.Parse("2006-01-02", rr.Date); err == nil {
			data.Date = date
		}
	}

	return data, nil
}
