package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/salonlab/concierge/agent/contract"
	"github.com/salonlab/concierge/agent/orchestrator"
	"github.com/salonlab/concierge/agent/session"
	"github.com/salonlab/concierge/agent/stage"
	toolx "github.com/salonlab/concierge/agent/tool"
)

type memoryHistory struct {
	turns map[int64][]contractx.Turn
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{turns: map[int64][]contractx.Turn{}}
}

func (m *memoryHistory) Append(_ context.Context, userID int64, role contractx.Role, text string) error {
	m.turns[userID] = append(m.turns[userID], contractx.Turn{Role: role, Text: text})
	return nil
}

func (m *memoryHistory) Recent(_ context.Context, userID int64, limit int) ([]contractx.Turn, error) {
	turns := m.turns[userID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]contractx.Turn(nil), turns...), nil
}

func (m *memoryHistory) Clear(_ context.Context, userID int64) (int, error) {
	n := len(m.turns[userID])
	delete(m.turns, userID)
	return n, nil
}

type stubBackend struct {
	contractx.BookingBackend
	client contractx.Client
}

func (s *stubBackend) Client(_ context.Context, telegramID int64) (contractx.Client, error) {
	c := s.client
	c.TelegramID = telegramID
	return c, nil
}

type stubFocus struct {
	records []contractx.FocusRecord
	calls   int
}

func (s *stubFocus) Fetch(_ context.Context, _ int64) ([]contractx.FocusRecord, error) {
	s.calls++
	return s.records, nil
}

type stubClassifier struct {
	stage      string
	transcript []contractx.Turn
}

func (s *stubClassifier) Stage(_ context.Context, transcript []contractx.Turn, _ string) string {
	s.transcript = append([]contractx.Turn(nil), transcript...)
	return s.stage
}

// stubLoop replays one scripted result per invocation, for either phase.
type stubLoop struct {
	results []orchestrator.Result
	err     error
	prompts []string
	calls   int
}

func (s *stubLoop) next(stagePrompt string) (orchestrator.Result, error) {
	s.prompts = append(s.prompts, stagePrompt)
	if s.err != nil {
		return orchestrator.Result{}, s.err
	}
	res := orchestrator.Result{Reply: "fallback scripted reply"}
	if s.calls < len(s.results) {
		res = s.results[s.calls]
	}
	s.calls++
	return res, nil
}

func (s *stubLoop) Gather(_ context.Context, stagePrompt, _ string, _ int64, _ map[string]string, _ []*schema.ToolInfo) (orchestrator.Result, error) {
	return s.next(stagePrompt)
}

func (s *stubLoop) Run(_ context.Context, stagePrompt, _ string, _ int64, _ map[string]string, _ []*schema.ToolInfo, _ orchestrator.Summarizer) (orchestrator.Result, error) {
	return s.next(stagePrompt)
}

// stubGenerator answers the tool-free synthesis round.
type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (s *stubGenerator) Generate(_ context.Context, _ []contractx.Turn) (string, error) {
	s.calls++
	return s.reply, s.err
}

func noopHandler(_ context.Context, _ map[string]any) (string, error) { return "ok", nil }

func testRegistry(t *testing.T) *toolx.Registry {
	t.Helper()
	defs := []toolx.Definition{
		{Name: "list_services", Desc: "d", Kind: toolx.KindRead, Handler: noopHandler},
		{Name: "masters_for_service", Desc: "d", Kind: toolx.KindRead, Handler: noopHandler},
		{Name: "available_slots", Desc: "d", Kind: toolx.KindRead, Handler: noopHandler},
		{Name: "my_appointments", Desc: "d", Kind: toolx.KindRead, Identity: true, Handler: noopHandler},
		{Name: "create_appointment", Desc: "d", Kind: toolx.KindWrite, Identity: true, Handler: noopHandler},
		{Name: "cancel_appointment", Desc: "d", Kind: toolx.KindWrite, Identity: true, Handler: noopHandler},
		{Name: "reschedule_appointment", Desc: "d", Kind: toolx.KindWrite, Identity: true, Handler: noopHandler},
		{Name: "save_client_name", Desc: "d", Kind: toolx.KindWrite, Identity: true, Handler: noopHandler},
		{Name: "save_client_phone", Desc: "d", Kind: toolx.KindWrite, Identity: true, Handler: noopHandler},
		{Name: "escalate", Desc: "d", Kind: toolx.KindWrite, Handler: noopHandler},
	}
	r, err := toolx.NewRegistry(defs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

type fixture struct {
	service    *Service
	history    *memoryHistory
	classifier *stubClassifier
	loop       *stubLoop
	focus      *stubFocus
	responder  *stubGenerator
	sessions   *session.Store
}

func newFixture(t *testing.T, stageID string, loop *stubLoop) *fixture {
	t.Helper()
	catalog, err := stage.Load("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	f := &fixture{
		history:    newMemoryHistory(),
		classifier: &stubClassifier{stage: stageID},
		loop:       loop,
		focus:      &stubFocus{},
		responder:  &stubGenerator{reply: "Could you tell me a bit more?"},
		sessions:   session.NewStore(),
	}
	f.service, err = New(Deps{
		History:    f.history,
		Backend:    &stubBackend{client: contractx.Client{Name: "Ivan", Phone: "+79990001122"}},
		Focus:      f.focus,
		Sessions:   f.sessions,
		Catalog:    catalog,
		Registry:   testRegistry(t),
		Classifier: f.classifier,
		Loop:       f.loop,
		Responder:  f.responder,
	}, Config{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	f.service.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestHandleMessageHappyPath(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{
		{Results: []contractx.ToolResult{{Tool: "available_slots", OK: true, Output: "free all day"}}},
		{Reply: "You can come tomorrow at 14:00. Shall I book it?"},
	}}
	f := newFixture(t, "booking_request", loop)

	reply, escalated, err := f.service.HandleMessage(context.Background(), 7, "manicure tomorrow at 14:00")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if escalated {
		t.Fatal("unexpected escalation")
	}
	if reply != "You can come tomorrow at 14:00. Shall I book it?" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if loop.calls != 2 {
		t.Fatalf("expected think and act rounds, got %d", loop.calls)
	}
	if !strings.Contains(loop.prompts[1], "free all day") {
		t.Fatalf("act prompt missing gathered results:\n%s", loop.prompts[1])
	}

	turns := f.history.turns[7]
	if len(turns) != 2 {
		t.Fatalf("expected user and assistant turns, got %#v", turns)
	}
	if turns[0].Role != contractx.RoleUser || turns[1].Role != contractx.RoleAssistant {
		t.Fatalf("turn roles wrong: %#v", turns)
	}
}

func TestHandleMessageTranscriptExcludesCurrentMessage(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{{Reply: "hello"}}}
	f := newFixture(t, "greeting", loop)

	if _, _, err := f.service.HandleMessage(context.Background(), 7, "first message"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.classifier.transcript) != 0 {
		t.Fatalf("first turn should see empty transcript: %#v", f.classifier.transcript)
	}

	if _, _, err := f.service.HandleMessage(context.Background(), 7, "second message"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	for _, turn := range f.classifier.transcript {
		if turn.Text == "second message" {
			t.Fatal("current message leaked into the transcript")
		}
	}
}

func TestHandleMessageEscalationStageSkipsTools(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{}
	f := newFixture(t, stage.Escalation, loop)

	reply, escalated, err := f.service.HandleMessage(context.Background(), 7, "this is terrible, get me a human")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !escalated {
		t.Fatal("escalation flag not set")
	}
	if loop.calls != 0 {
		t.Fatalf("no model or tool rounds expected, got %d", loop.calls)
	}
	if !strings.Contains(reply, "manager") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestHandleMessageUnresolvedStageFallsBack(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{{Reply: "happy to help"}, {Reply: "happy to help"}}}
	f := newFixture(t, stage.Unresolved, loop)

	reply, _, err := f.service.HandleMessage(context.Background(), 7, "???")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply != "happy to help" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if loop.calls == 0 {
		t.Fatal("fallback stage should still answer via the loop")
	}
}

func TestHandleMessageFocusPrefetch(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{
		{Results: []contractx.ToolResult{{Tool: "my_appointments", OK: true, Output: "one booking"}}},
		{Reply: "You have one booking."},
	}}
	f := newFixture(t, "my_bookings", loop)
	f.focus.records = []contractx.FocusRecord{{ID: 12, Summary: "#12: Manicure with Anna on 2026-09-01 at 14:00"}}

	if _, _, err := f.service.HandleMessage(context.Background(), 7, "what am I booked for?"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.focus.calls != 1 {
		t.Fatalf("focus fetch expected once, got %d", f.focus.calls)
	}
	if !strings.Contains(loop.prompts[0], "#12: Manicure") {
		t.Fatalf("prompt missing focus records:\n%s", loop.prompts[0])
	}

	st, ok := f.sessions.Snapshot(7)
	if !ok || len(st.Focus) != 1 {
		t.Fatalf("focus not cached in session: %#v", st)
	}

	if _, _, err := f.service.HandleMessage(context.Background(), 7, "and when is it?"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.focus.calls != 1 {
		t.Fatalf("cached focus must be reused, got %d fetches", f.focus.calls)
	}
}

func TestHandleMessageThinkingTextIsTheFinalAnswer(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{
		{Reply: "We offer manicure and pedicure."},
	}}
	f := newFixture(t, "booking_request", loop)

	reply, _, err := f.service.HandleMessage(context.Background(), 7, "what do you offer?")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply != "We offer manicure and pedicure." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if loop.calls != 1 {
		t.Fatalf("a text answer in the gathering round must end the turn, got %d loop calls", loop.calls)
	}
}

func TestHandleMessageLoopErrorYieldsApology(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{err: errors.New("upstream 500")}
	f := newFixture(t, "booking_request", loop)

	reply, escalated, err := f.service.HandleMessage(context.Background(), 7, "book me in")
	if err != nil {
		t.Fatalf("backend failures must not reach the transport, got %v", err)
	}
	if escalated {
		t.Fatal("unexpected escalation")
	}
	if !strings.Contains(reply, "something went wrong") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestHandleMessageToolSlotsEnterSession(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{
		{
			Results: []contractx.ToolResult{{Tool: "available_slots", OK: true, Output: "free all day"}},
			Slots:   map[string]string{"service": "manicure", "date": "2026-09-01"},
		},
		{Reply: "Shall I book manicure for 2026-09-01?"},
	}}
	f := newFixture(t, "booking_request", loop)

	if _, _, err := f.service.HandleMessage(context.Background(), 7, "manicure please"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	st, ok := f.sessions.Snapshot(7)
	if !ok || st.Service != "manicure" || st.Date != "2026-09-01" {
		t.Fatalf("tool arguments not merged into the session: %#v", st)
	}
	if !strings.Contains(loop.prompts[1], "The client is interested in manicure.") {
		t.Fatalf("acting prompt missing the service slot:\n%s", loop.prompts[1])
	}
}

func TestHandleMessageSynthesizesWhenLoopIsSilent(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{{}, {}}}
	f := newFixture(t, "booking_request", loop)

	reply, _, err := f.service.HandleMessage(context.Background(), 7, "hmm")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply != "Could you tell me a bit more?" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.responder.calls != 1 {
		t.Fatalf("expected one synthesis round, got %d", f.responder.calls)
	}
}

func TestHandleMessageFallsBackWhenSynthesisFails(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{{}, {}}}
	f := newFixture(t, "booking_request", loop)
	f.responder.err = errors.New("upstream 500")

	reply, _, err := f.service.HandleMessage(context.Background(), 7, "hmm")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(reply, "something went wrong") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestHandleMessageRelaysWriteFailureVerbatim(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{
		{},
		{Results: []contractx.ToolResult{{Tool: "create_appointment", OK: false, Output: "Error: I need your name and phone number before booking"}}},
	}}
	f := newFixture(t, "booking_request", loop)

	reply, _, err := f.service.HandleMessage(context.Background(), 7, "book it")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(reply, "name and phone number") {
		t.Fatalf("failure not relayed: %q", reply)
	}
}

func TestHandleMessageRejectsEmptyText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "greeting", &stubLoop{})
	_, _, err := f.service.HandleMessage(context.Background(), 7, "   ")
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestResetClearsHistoryAndSession(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{results: []orchestrator.Result{{Reply: "hi"}}}
	f := newFixture(t, "greeting", loop)

	if _, _, err := f.service.HandleMessage(context.Background(), 7, "hello"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	n, err := f.service.Reset(context.Background(), 7)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cleared turns, got %d", n)
	}
	if _, ok := f.sessions.Snapshot(7); ok {
		t.Fatal("session survived reset")
	}
}
