package nodes

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// LoadHistory fills the transcript with the last window turns, excluding the
// message being handled. A history failure degrades to an empty transcript
// rather than failing the turn.
func LoadHistory(ctx context.Context, in *GraphState, history contractx.HistoryStore, window int) (*GraphState, error) {
	turns, err := history.Recent(ctx, in.UserID, window)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", in.TraceID).Msg("history unavailable, continuing without it")
		return in, nil
	}
	in.Transcript = turns
	return in, nil
}

// RecordUserTurn persists the incoming message after the transcript was
// loaded, so the transcript never contains the message being classified.
func RecordUserTurn(ctx context.Context, in *GraphState, history contractx.HistoryStore) (*GraphState, error) {
	if err := history.Append(ctx, in.UserID, contractx.RoleUser, in.Text); err != nil {
		log.Warn().Err(err).Str("trace_id", in.TraceID).Msg("user turn not persisted")
	}
	return in, nil
}

// RecordAssistantTurn persists the final reply.
func RecordAssistantTurn(ctx context.Context, in *GraphState, history contractx.HistoryStore) (*GraphState, error) {
	if in.Reply != "" {
		if err := history.Append(ctx, in.UserID, contractx.RoleAssistant, in.Reply); err != nil {
			log.Warn().Err(err).Str("trace_id", in.TraceID).Msg("assistant turn not persisted")
		}
	}
	return in, nil
}
