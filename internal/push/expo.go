// Package push sends notifications through the Expo push service.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultURL is the Expo push endpoint.
const DefaultURL = "https://exp.host/--/api/v2/push/send"

// MaxBatch is the largest number of messages Expo accepts per request.
const MaxBatch = 100

// DeviceNotRegistered is the ticket error for a token that should be
// removed.
const DeviceNotRegistered = "DeviceNotRegistered"

// ErrBatchTooLarge is returned by Send for more than MaxBatch messages.
var ErrBatchTooLarge = fmt.Errorf("push batch exceeds %d messages", MaxBatch)

// Message is one push notification.
type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body"`
	Sound string            `json:"sound,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Ticket is Expo's per-message receipt.
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

// TicketDetails carries the machine-readable ticket error.
type TicketDetails struct {
	Error string `json:"error,omitempty"`
}

// TicketError is a message Expo refused.
type TicketError struct {
	Token   string
	Code    string
	Message string
}

// Result summarizes one Send.
type Result struct {
	Tickets []Ticket
	Errors  []TicketError
	// Unregistered holds tokens Expo reported as DeviceNotRegistered.
	Unregistered []string
}

// Sender sends one batch of at most MaxBatch messages.
type Sender interface {
	Send(ctx context.Context, messages []Message) (*Result, error)
}

type expoResponse struct {
	Data   []Ticket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ExpoClient posts messages to the Expo push API.
type ExpoClient struct {
	url         string
	accessToken string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
}

// NewExpoClient creates an Expo client. An empty url uses DefaultURL and
// accessToken may be empty.
func NewExpoClient(url, accessToken string, timeout time.Duration) *ExpoClient {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		trimmed = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExpoClient{
		url:         trimmed,
		accessToken: strings.TrimSpace(accessToken),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: newCircuitBreaker("expo-push", 30*time.Second),
	}
}

// Send posts one batch. Transport and HTTP failures are returned as errors
// and count against the circuit breaker. Per-message failures are reported
// in the Result.
func (c *ExpoClient) Send(ctx context.Context, messages []Message) (*Result, error) {
	if len(messages) == 0 {
		return &Result{}, nil
	}
	if len(messages) > MaxBatch {
		return nil, ErrBatchTooLarge
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, messages)
	})
	if err != nil {
		return nil, err
	}
	resp, ok := out.(*expoResponse)
	if !ok {
		return nil, errors.New("unexpected push response type")
	}

	result := &Result{Tickets: resp.Data}
	for i, t := range resp.Data {
		if t.Status == "ok" {
			continue
		}
		te := TicketError{Message: t.Message}
		if i < len(messages) {
			te.Token = messages[i].To
		}
		if t.Details != nil {
			te.Code = t.Details.Error
		}
		result.Errors = append(result.Errors, te)
		if te.Code == DeviceNotRegistered && te.Token != "" {
			result.Unregistered = append(result.Unregistered, te.Token)
		}
	}
	return result, nil
}

func (c *ExpoClient) post(ctx context.Context, messages []Message) (*expoResponse, error) {
	body, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send push request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("push API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode push response: %w", err)
	}
	if len(payload.Errors) > 0 {
		return nil, fmt.Errorf("push API error %s: %s", payload.Errors[0].Code, payload.Errors[0].Message)
	}
	return &payload, nil
}

// Batches splits messages into consecutive chunks of at most size.
func Batches(messages []Message, size int) [][]Message {
	if size <= 0 || size > MaxBatch {
		size = MaxBatch
	}
	var out [][]Message
	for start := 0; start < len(messages); start += size {
		end := min(start+size, len(messages))
		out = append(out, messages[start:end])
	}
	return out
}
