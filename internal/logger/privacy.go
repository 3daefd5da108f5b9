package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// minSaltLength is the shortest LOG_HASH_SALT accepted.
const minSaltLength = 32

var hashSalt string

// InitHashSalt loads the identifier hashing salt from LOG_HASH_SALT. It
// panics when the salt is missing or shorter than 32 characters, so a
// deployment cannot log guessable hashes.
func InitHashSalt() {
	salt := os.Getenv("LOG_HASH_SALT")
	if salt == "" {
		panic("LOG_HASH_SALT is required")
	}
	if len(salt) < minSaltLength {
		panic(fmt.Sprintf("LOG_HASH_SALT must be at least %d characters", minSaltLength))
	}
	hashSalt = salt
}

// InitHashSaltForTesting sets the salt without validation.
func InitHashSaltForTesting(salt string) {
	hashSalt = salt
}

func hash(value string) string {
	sum := sha256.Sum256([]byte(value + ":" + hashSalt))
	return hex.EncodeToString(sum[:])[:8]
}

// HashUserID creates a privacy-preserving hash of a Telegram user ID.
func HashUserID(userID int64) string {
	return hash(fmt.Sprintf("%d", userID))
}

// HashChatID creates a privacy-preserving hash of a chat ID.
func HashChatID(chatID int64) string {
	return hash(fmt.Sprintf("chat:%d", chatID))
}

// HashBoarderID hashes a boarder ID for log lines that leave the mess.
func HashBoarderID(id uuid.UUID) string {
	return hash("boarder:" + id.String())
}

// HashPushToken hashes an Expo push token. Tokens are bearer credentials
// for a device and never appear in logs.
func HashPushToken(token string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(token, "ExponentPushToken["), "ExpoPushToken["), "]")
	return hash("push:" + inner)
}

// SanitizeDescription redacts an expense note but keeps its size.
func SanitizeDescription(desc string) string {
	if desc == "" {
		return "<empty>"
	}
	return fmt.Sprintf("<redacted: %d words, %d chars>", len(strings.Fields(desc)), len(desc))
}

// SanitizeText keeps the command word of a message and redacts the rest,
// so room numbers and names in arguments stay out of logs.
func SanitizeText(text string) string {
	if text == "" {
		return "<empty>"
	}
	if strings.HasPrefix(text, "/") {
		cmd, rest, _ := strings.Cut(text, " ")
		if rest == "" {
			return cmd
		}
		return fmt.Sprintf("%s <%d chars>", cmd, len(rest))
	}
	return fmt.Sprintf("<%d chars>", len(text))
}
