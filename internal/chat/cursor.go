package chat

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"dm-service/internal/apperrors"
)

const cursorPrefix = "msg:"

// encodeCursor hides the message id behind an opaque token.
func encodeCursor(messageID int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(messageID)))
}

func decodeCursor(cursor string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || !strings.HasPrefix(string(raw), cursorPrefix) {
		return 0, fmt.Errorf("malformed cursor: %w", apperrors.ErrInvalidOperation)
	}
	id, err := strconv.Atoi(strings.TrimPrefix(string(raw), cursorPrefix))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("malformed cursor: %w", apperrors.ErrInvalidOperation)
	}
	return id, nil
}
