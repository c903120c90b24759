package relay

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxMessageLength   = 32000
	maxSessionIDLength = 128
)

var (
	ErrEmptySessionID  = errors.New("session_id cannot be empty")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = fmt.Errorf("message exceeds %d characters", maxMessageLength)
	ErrSessionTooLong  = fmt.Errorf("session_id exceeds %d characters", maxSessionIDLength)
	ErrSessionBusy     = errors.New("session already has an exchange in flight")
	ErrStreamTruncated = errors.New("upstream stream ended without completion")
)

// ValidateProcessMessageRequest проверяет запрос до захвата сессии
func ValidateProcessMessageRequest(req ProcessMessageRequest) error {
	if strings.TrimSpace(req.SessionID) == "" {
		return ErrEmptySessionID
	}
	if len(req.SessionID) > maxSessionIDLength {
		return ErrSessionTooLong
	}
	if strings.TrimSpace(req.Message) == "" {
		return ErrEmptyMessage
	}
	if len(req.Message) > maxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
