package nodes

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// maxMessageLen caps incoming text; longer messages are truncated, not
// rejected, so a pasted wall of text still gets an answer.
const maxMessageLen = 4096

func ValidateRequest(in GraphInput, now func() time.Time) (*GraphState, error) {
	if in.UserID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", contractx.ErrValidation)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", contractx.ErrValidation)
	}
	if len(text) > maxMessageLen {
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return &GraphState{
		UserID:  in.UserID,
		Text:    text,
		Now:     now(),
		TraceID: uuid.NewString(),
	}, nil
}
