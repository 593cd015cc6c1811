package nodes

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/salonlab/concierge/agent/contract"
	"github.com/salonlab/concierge/agent/session"
	"github.com/salonlab/concierge/agent/slots"
	"github.com/salonlab/concierge/agent/stage"
)

// ExtractSlots merges any date or time heard in the message into the session
// and mirrors the accumulated values onto the graph state.
func ExtractSlots(in *GraphState, sessions *session.Store) (*GraphState, error) {
	heard := slots.ExtractAt(in.Text, in.Now)
	st := sessions.Update(in.UserID, func(s *session.State) {
		merged := slots.Merge(slots.Slots{Date: s.Date, TimeOfDay: s.TimeOfDay}, heard)
		s.Date = merged.Date
		s.TimeOfDay = merged.TimeOfDay
	})
	in.SlotService = st.Service
	in.SlotMaster = st.Master
	in.SlotDate = st.Date
	in.SlotTime = st.TimeOfDay
	return in, nil
}

// LoadFocus fills the client's bookings for stages that resolve references
// like "my appointment". The list is fetched lazily the first time a stage
// needs it and then served from the session until a reset; it is not
// refreshed mid-conversation.
func LoadFocus(ctx context.Context, in *GraphState, catalog *stage.Catalog, fetcher contractx.FocusFetcher, sessions *session.Store) (*GraphState, error) {
	def, ok := catalog.Get(in.StageID)
	if !ok || !def.NeedsFocus {
		return in, nil
	}
	if st, cached := sessions.Snapshot(in.UserID); cached && len(st.Focus) > 0 {
		in.Focus = st.Focus
		return in, nil
	}
	records, err := fetcher.Fetch(ctx, in.UserID)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", in.TraceID).Msg("focus prefetch failed")
		return in, nil
	}
	st := sessions.Update(in.UserID, func(s *session.State) {
		s.Focus = records
	})
	in.Focus = st.Focus
	return in, nil
}

// LoadClient fetches the stored contact details for prompt context.
func LoadClient(ctx context.Context, in *GraphState, backend contractx.BookingBackend) (*GraphState, error) {
	client, err := backend.Client(ctx, in.UserID)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", in.TraceID).Msg("client record unavailable")
		return in, nil
	}
	in.ClientName = client.Name
	in.ClientPhone = client.Phone
	return in, nil
}
