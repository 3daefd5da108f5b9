// Package mocks provides a recording Telegram client and update builders
// for handler tests.
package mocks

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// DefaultFileServer is the download base used when FileServerURL is unset.
const DefaultFileServer = "https://api.telegram.org/file/bottest"

// SentMessage is a message sent through MockBot.
type SentMessage struct {
	ChatID      int64
	Text        string
	ParseMode   models.ParseMode
	ReplyMarkup models.ReplyMarkup
}

// Buttons returns the callback data of every inline button, row by row.
func (s *SentMessage) Buttons() []string {
	return inlineButtons(s.ReplyMarkup)
}

// Button returns the callback data of the first inline button starting
// with prefix, or "" when there is none.
func (s *SentMessage) Button(prefix string) string {
	for _, data := range s.Buttons() {
		if strings.HasPrefix(data, prefix) {
			return data
		}
	}
	return ""
}

// EditedMessage is an in-place edit made through MockBot.
type EditedMessage struct {
	ChatID      int64
	MessageID   int
	Text        string
	ParseMode   models.ParseMode
	ReplyMarkup models.ReplyMarkup
}

// Buttons returns the callback data of every inline button, row by row.
func (e *EditedMessage) Buttons() []string {
	return inlineButtons(e.ReplyMarkup)
}

// AnsweredCallback is a callback query answer.
type AnsweredCallback struct {
	CallbackQueryID string
	Text            string
	ShowAlert       bool
}

// SentDocument is an uploaded document such as a chart or a statement.
type SentDocument struct {
	ChatID    int64
	Filename  string
	Caption   string
	ParseMode models.ParseMode
	Data      []byte
}

// MockBot records what handlers send to Telegram. The exported error
// fields make the matching call fail.
type MockBot struct {
	SendMessageError  error
	EditMessageError  error
	GetFileError      error
	SendDocumentError error

	// FileServerURL is the base of download links, so tests can point
	// photo downloads at an httptest server.
	FileServerURL string

	mu        sync.RWMutex
	messages  []SentMessage
	edits     []EditedMessage
	answers   []AnsweredCallback
	documents []SentDocument
	files     []string
	nextID    int
}

// NewMockBot creates an empty MockBot.
func NewMockBot() *MockBot {
	return &MockBot{nextID: 1000}
}

func (m *MockBot) newID() int {
	id := m.nextID
	m.nextID++
	return id
}

// SendMessage records a message.
func (m *MockBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendMessageError != nil {
		return nil, m.SendMessageError
	}
	chatID := chatIDOf(params.ChatID)
	m.messages = append(m.messages, SentMessage{
		ChatID:      chatID,
		Text:        params.Text,
		ParseMode:   params.ParseMode,
		ReplyMarkup: params.ReplyMarkup,
	})
	return &models.Message{ID: m.newID(), Chat: models.Chat{ID: chatID}, Text: params.Text}, nil
}

// EditMessageText records an edit.
func (m *MockBot) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.EditMessageError != nil {
		return nil, m.EditMessageError
	}
	chatID := chatIDOf(params.ChatID)
	m.edits = append(m.edits, EditedMessage{
		ChatID:      chatID,
		MessageID:   params.MessageID,
		Text:        params.Text,
		ParseMode:   params.ParseMode,
		ReplyMarkup: params.ReplyMarkup,
	})
	return &models.Message{ID: params.MessageID, Chat: models.Chat{ID: chatID}, Text: params.Text}, nil
}

// AnswerCallbackQuery records a callback answer.
func (m *MockBot) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.answers = append(m.answers, AnsweredCallback{
		CallbackQueryID: params.CallbackQueryID,
		Text:            params.Text,
		ShowAlert:       params.ShowAlert,
	})
	return true, nil
}

// GetFile resolves fileID to photos/<fileID>.jpg.
func (m *MockBot) GetFile(_ context.Context, params *bot.GetFileParams) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetFileError != nil {
		return nil, m.GetFileError
	}
	m.files = append(m.files, params.FileID)
	return &models.File{FileID: params.FileID, FilePath: "photos/" + params.FileID + ".jpg"}, nil
}

// FileDownloadLink joins FileServerURL and the file path.
func (m *MockBot) FileDownloadLink(f *models.File) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	base := m.FileServerURL
	if base == "" {
		base = DefaultFileServer
	}
	return strings.TrimSuffix(base, "/") + "/" + f.FilePath
}

// SendDocument records an uploaded document with its bytes.
func (m *MockBot) SendDocument(_ context.Context, params *bot.SendDocumentParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendDocumentError != nil {
		return nil, m.SendDocumentError
	}

	doc := SentDocument{
		ChatID:    chatIDOf(params.ChatID),
		Caption:   params.Caption,
		ParseMode: params.ParseMode,
	}
	if upload, ok := params.Document.(*models.InputFileUpload); ok {
		doc.Filename = upload.Filename
		if upload.Data != nil {
			doc.Data, _ = io.ReadAll(upload.Data)
		}
	}
	m.documents = append(m.documents, doc)

	return &models.Message{
		ID:       m.newID(),
		Chat:     models.Chat{ID: doc.ChatID},
		Caption:  doc.Caption,
		Document: &models.Document{FileID: "doc-" + doc.Filename, FileName: doc.Filename},
	}, nil
}

// Messages returns a copy of the sent messages, oldest first.
func (m *MockBot) Messages() []SentMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SentMessage(nil), m.messages...)
}

// Answers returns a copy of the callback answers, oldest first.
func (m *MockBot) Answers() []AnsweredCallback {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AnsweredCallback(nil), m.answers...)
}

// RequestedFiles returns the file IDs passed to GetFile.
func (m *MockBot) RequestedFiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.files...)
}

// LastSentMessage returns the latest message, or nil.
func (m *MockBot) LastSentMessage() *SentMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.messages) == 0 {
		return nil
	}
	msg := m.messages[len(m.messages)-1]
	return &msg
}

// LastEditedMessage returns the latest edit, or nil.
func (m *MockBot) LastEditedMessage() *EditedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.edits) == 0 {
		return nil
	}
	e := m.edits[len(m.edits)-1]
	return &e
}

// LastSentDocument returns the latest document, or nil.
func (m *MockBot) LastSentDocument() *SentDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.documents) == 0 {
		return nil
	}
	d := m.documents[len(m.documents)-1]
	return &d
}

// SentMessageCount returns the number of messages sent.
func (m *MockBot) SentMessageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// SentDocumentCount returns the number of documents sent.
func (m *MockBot) SentDocumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents)
}

// MessagesTo returns the texts sent to chatID, oldest first. Reminder
// tests use it to check what each boarder received.
func (m *MockBot) MessagesTo(chatID int64) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var texts []string
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

// AnySentContains reports whether any sent message contains substr.
func (m *MockBot) AnySentContains(substr string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.messages {
		if strings.Contains(msg.Text, substr) {
			return true
		}
	}
	return false
}

// Reset forgets everything recorded and clears injected errors.
func (m *MockBot) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages, m.edits, m.answers, m.documents, m.files = nil, nil, nil, nil, nil
	m.SendMessageError, m.EditMessageError, m.GetFileError, m.SendDocumentError = nil, nil, nil, nil
}

func inlineButtons(markup models.ReplyMarkup) []string {
	kb, ok := markup.(*models.InlineKeyboardMarkup)
	if !ok || kb == nil {
		return nil
	}
	var data []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			data = append(data, btn.CallbackData)
		}
	}
	return data
}

// chatIDOf returns numeric chat IDs; @channel names map to 0.
func chatIDOf(chatID any) int64 {
	switch v := chatID.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
