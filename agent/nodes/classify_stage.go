package nodes

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/salonlab/concierge/agent/contract"
	"github.com/salonlab/concierge/agent/stage"
)

// StageClassifier resolves a message to a stage id, or stage.Unresolved.
type StageClassifier interface {
	Stage(ctx context.Context, transcript []contractx.Turn, message string) string
}

// ClassifyStage sets the stage for the turn. Unresolved classifications map
// to the generic fallback stage so the turn always proceeds.
func ClassifyStage(ctx context.Context, in *GraphState, classifier StageClassifier) (*GraphState, error) {
	id := classifier.Stage(ctx, in.Transcript, in.Text)
	if id == stage.Unresolved {
		id = stage.Fallback
	}
	in.StageID = id
	log.Info().Str("trace_id", in.TraceID).Str("stage", id).Int64("user_id", in.UserID).Msg("stage classified")
	return in, nil
}
