// Package pipeline assembles the message-handling graph and exposes the
// one-call-per-message entry point.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/salonlab/concierge/agent/contract"
	nodex "github.com/salonlab/concierge/agent/nodes"
	"github.com/salonlab/concierge/agent/prompt"
	"github.com/salonlab/concierge/agent/session"
	"github.com/salonlab/concierge/agent/stage"
	toolx "github.com/salonlab/concierge/agent/tool"
)

// DefaultHistoryWindow is how many persisted turns feed the prompts.
const DefaultHistoryWindow = 12

// Config tunes the pipeline.
type Config struct {
	HistoryWindow int
}

// Deps are the collaborators of the pipeline, all required unless noted.
type Deps struct {
	History    contractx.HistoryStore
	Backend    contractx.BookingBackend
	Focus      contractx.FocusFetcher
	Sessions   *session.Store
	Catalog    *stage.Catalog
	Registry   *toolx.Registry
	Classifier nodex.StageClassifier
	Loop       nodex.LoopRunner
	Responder  contractx.Generator
}

// Service handles client messages end to end: history, classification, the
// two tool phases and persistence of the reply.
type Service struct {
	deps    Deps
	builder *prompt.Builder

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	historyWindow int
	now           func() time.Time
}

func New(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.History == nil:
		return nil, errors.New("history store is required")
	case deps.Backend == nil:
		return nil, errors.New("booking backend is required")
	case deps.Focus == nil:
		return nil, errors.New("focus fetcher is required")
	case deps.Sessions == nil:
		return nil, errors.New("session store is required")
	case deps.Catalog == nil:
		return nil, errors.New("stage catalog is required")
	case deps.Registry == nil:
		return nil, errors.New("tool registry is required")
	case deps.Classifier == nil:
		return nil, errors.New("classifier is required")
	case deps.Loop == nil:
		return nil, errors.New("loop runner is required")
	case deps.Responder == nil:
		return nil, errors.New("responder is required")
	}

	window := cfg.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}

	s := &Service{
		deps:          deps,
		builder:       prompt.NewBuilder(),
		historyWindow: window,
		now:           time.Now,
	}

	graphRunner, err := s.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.graphRunner = graphRunner
	return s, nil
}

// apologyReply is the generic answer sent when the pipeline itself breaks.
// The conversation is never left without a reply.
const apologyReply = "I'm sorry, something went wrong on my side. Please try again in a moment."

// HandleMessage runs one client message through the graph. A panic or an
// unexpected error anywhere below degrades to a generic apology instead of
// surfacing to the transport; only rejected input comes back as an error.
func (s *Service) HandleMessage(ctx context.Context, userID int64, text string) (reply string, escalated bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int64("user_id", userID).Msg("message handling panicked")
			reply = apologyReply
			escalated = false
			err = nil
		}
	}()

	out, err := s.graphRunner.Invoke(ctx, nodex.GraphInput{UserID: userID, Text: text})
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			return "", false, err
		}
		log.Error().Err(err).Int64("user_id", userID).Msg("message handling failed")
		return apologyReply, false, nil
	}
	return out.Reply, out.Escalated, nil
}

// Reset drops the user's history and session, returning the number of
// deleted turns.
func (s *Service) Reset(ctx context.Context, userID int64) (int, error) {
	s.deps.Sessions.Reset(userID)
	return s.deps.History.Clear(ctx, userID)
}
