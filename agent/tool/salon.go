package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// SalonService implements the booking tool set over a BookingBackend. All
// handler failures are phrased for the client, since failure outputs are
// relayed into the conversation.
type SalonService struct {
	backend contractx.BookingBackend
	loc     *time.Location
	now     func() time.Time
}

func NewSalonService(backend contractx.BookingBackend, loc *time.Location) *SalonService {
	if loc == nil {
		loc = time.Local
	}
	return &SalonService{backend: backend, loc: loc, now: time.Now}
}

var _ contractx.FocusFetcher = (*SalonService)(nil)

// Definitions declares the full tool set in the order it is presented to the
// reasoning backend.
func (s *SalonService) Definitions() []Definition {
	return []Definition{
		{
			Name: "list_services",
			Desc: "List the salon's services with prices and durations",
			Kind: KindRead,
			Handler: s.listServices,
		},
		{
			Name: "masters_for_service",
			Desc: "List the specialists who perform a service",
			Kind: KindRead,
			Params: []Param{
				{Name: "service", Type: TypeString, Desc: "service name or id", Required: true},
			},
			Handler: s.mastersForService,
		},
		{
			Name: "available_slots",
			Desc: "Find free times for a service on a date",
			Kind: KindRead,
			Params: []Param{
				{Name: "service", Type: TypeString, Desc: "service name or id", Required: true},
				{Name: "date", Type: TypeString, Desc: "date, e.g. 2026-09-01 or tomorrow", Required: true},
				{Name: "master", Type: TypeString, Desc: "preferred specialist", Required: false},
			},
			Handler: s.availableSlots,
		},
		{
			Name:     "my_appointments",
			Desc:     "List the client's upcoming appointments",
			Kind:     KindRead,
			Identity: true,
			Handler:  s.myAppointments,
		},
		{
			Name:     "create_appointment",
			Desc:     "Book an appointment for the client",
			Kind:     KindWrite,
			Identity: true,
			Params: []Param{
				{Name: "service", Type: TypeString, Desc: "service name or id", Required: true},
				{Name: "date", Type: TypeString, Desc: "date, e.g. 2026-09-01 or tomorrow", Required: true},
				{Name: "time", Type: TypeString, Desc: "time, e.g. 14:00", Required: true},
				{Name: "master", Type: TypeString, Desc: "preferred specialist", Required: false},
			},
			Handler: s.createAppointment,
		},
		{
			Name:     "cancel_appointment",
			Desc:     "Cancel one of the client's appointments",
			Kind:     KindWrite,
			Identity: true,
			Params: []Param{
				{Name: "appointment_id", Type: TypeInt, Desc: "booking number", Required: true},
			},
			Handler: s.cancelAppointment,
		},
		{
			Name:     "reschedule_appointment",
			Desc:     "Move one of the client's appointments to a new time",
			Kind:     KindWrite,
			Identity: true,
			Params: []Param{
				{Name: "appointment_id", Type: TypeInt, Desc: "booking number", Required: true},
				{Name: "date", Type: TypeString, Desc: "new date", Required: true},
				{Name: "time", Type: TypeString, Desc: "new time", Required: true},
			},
			Handler: s.rescheduleAppointment,
		},
		{
			Name:     "save_client_name",
			Desc:     "Save the client's name",
			Kind:     KindWrite,
			Identity: true,
			Params: []Param{
				{Name: "name", Type: TypeString, Desc: "the client's name", Required: true},
			},
			Handler: s.saveClientName,
		},
		{
			Name:     "save_client_phone",
			Desc:     "Save the client's phone number",
			Kind:     KindWrite,
			Identity: true,
			Params: []Param{
				{Name: "phone", Type: TypeString, Desc: "the client's phone number", Required: true},
			},
			Handler: s.saveClientPhone,
		},
		{
			Name: "escalate",
			Desc: "Hand the conversation over to a human manager",
			Kind: KindWrite,
			Params: []Param{
				{Name: "reason", Type: TypeString, Desc: "short reason", Required: false},
			},
			Handler: s.escalate,
		},
	}
}

// Fetch returns the client's upcoming appointments as focus records for
// stages that resolve references like "my booking".
func (s *SalonService) Fetch(ctx context.Context, userID int64) ([]contractx.FocusRecord, error) {
	appointments, err := s.backend.AppointmentsFor(ctx, userID, s.now().In(s.loc))
	if err != nil {
		return nil, err
	}
	records := make([]contractx.FocusRecord, len(appointments))
	for i, a := range appointments {
		records[i] = contractx.FocusRecord{ID: a.ID, Summary: describeAppointment(a)}
	}
	return records, nil
}

/* ------------------------------- handlers ------------------------------- */

func (s *SalonService) listServices(ctx context.Context, _ map[string]any) (string, error) {
	services, err := s.backend.Services(ctx)
	if err != nil {
		return "", fmt.Errorf("the service list is unavailable right now")
	}
	if len(services) == 0 {
		return "No services are configured yet.", nil
	}
	var b strings.Builder
	b.WriteString("Services:\n")
	for _, svc := range services {
		fmt.Fprintf(&b, "%d. %s — %d, %d min\n", svc.ID, svc.Name, svc.Price, svc.DurationMin)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *SalonService) mastersForService(ctx context.Context, args map[string]any) (string, error) {
	svc, err := s.resolveService(ctx, argString(args, "service"))
	if err != nil {
		return "", err
	}
	masters, err := s.backend.MastersForService(ctx, svc.ID)
	if err != nil {
		return "", fmt.Errorf("the specialist list is unavailable right now")
	}
	if len(masters) == 0 {
		return fmt.Sprintf("No specialist currently performs %s.", svc.Name), nil
	}
	names := make([]string, len(masters))
	for i, m := range masters {
		names[i] = m.Name
	}
	return fmt.Sprintf("%s is performed by: %s.", svc.Name, strings.Join(names, ", ")), nil
}

func (s *SalonService) availableSlots(ctx context.Context, args map[string]any) (string, error) {
	svc, err := s.resolveService(ctx, argString(args, "service"))
	if err != nil {
		return "", err
	}
	day, err := s.parseDay(argString(args, "date"))
	if err != nil {
		return "", err
	}

	masters, err := s.backend.MastersForService(ctx, svc.ID)
	if err != nil {
		return "", fmt.Errorf("the schedule is unavailable right now")
	}
	if name := argString(args, "master"); name != "" {
		master, ferr := findMaster(masters, name)
		if ferr != nil {
			return "", ferr
		}
		masters = []contractx.Master{master}
	}
	if len(masters) == 0 {
		return fmt.Sprintf("No specialist currently performs %s.", svc.Name), nil
	}

	window := adjustForToday(workWindow(day), s.now().In(s.loc))
	if !window.Start.Before(window.End) {
		return fmt.Sprintf("There are no free times left for %s on %s.", svc.Name, day.Format("2006-01-02")), nil
	}

	ids := make([]int64, len(masters))
	for i, m := range masters {
		ids[i] = m.ID
	}
	busy, err := s.backend.BusyIntervals(ctx, ids, dayInterval(day))
	if err != nil {
		return "", fmt.Errorf("the schedule is unavailable right now")
	}

	free := freeIntervals(busy, window, len(masters), time.Duration(svc.DurationMin)*time.Minute)
	if len(free) == 0 {
		return fmt.Sprintf("There are no free times for %s on %s.", svc.Name, day.Format("2006-01-02")), nil
	}
	return fmt.Sprintf("Free times for %s on %s: %s.", svc.Name, day.Format("2006-01-02"), formatIntervals(free)), nil
}

func (s *SalonService) myAppointments(ctx context.Context, args map[string]any) (string, error) {
	callerID, _ := args["caller_id"].(int64)
	appointments, err := s.backend.AppointmentsFor(ctx, callerID, s.now().In(s.loc))
	if err != nil {
		return "", fmt.Errorf("your bookings are unavailable right now")
	}
	if len(appointments) == 0 {
		return "You have no upcoming appointments.", nil
	}
	var b strings.Builder
	b.WriteString("Your upcoming appointments:\n")
	for _, a := range appointments {
		b.WriteString(describeAppointment(a))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *SalonService) createAppointment(ctx context.Context, args map[string]any) (string, error) {
	callerID, _ := args["caller_id"].(int64)

	client, err := s.backend.Client(ctx, callerID)
	if err != nil {
		return "", fmt.Errorf("your profile is unavailable right now")
	}
	if missing := missingContact(client); missing != "" {
		return "", fmt.Errorf("I need your %s before booking. Please share it first", missing)
	}

	svc, err := s.resolveService(ctx, argString(args, "service"))
	if err != nil {
		return "", err
	}
	start, err := s.parseMoment(argString(args, "date"), argString(args, "time"))
	if err != nil {
		return "", err
	}
	slot := contractx.Interval{Start: start, End: start.Add(time.Duration(svc.DurationMin) * time.Minute)}
	if err := s.checkBookable(slot); err != nil {
		return "", err
	}

	masters, err := s.backend.MastersForService(ctx, svc.ID)
	if err != nil {
		return "", fmt.Errorf("the schedule is unavailable right now")
	}
	if name := argString(args, "master"); name != "" {
		master, ferr := findMaster(masters, name)
		if ferr != nil {
			return "", ferr
		}
		masters = []contractx.Master{master}
	}
	if len(masters) == 0 {
		return "", fmt.Errorf("no specialist currently performs %s", svc.Name)
	}

	master, err := s.pickFreeMaster(ctx, masters, slot, contractx.Interval{})
	if err != nil {
		return "", err
	}

	id, err := s.backend.CreateAppointment(ctx, contractx.Appointment{
		ClientID:  callerID,
		ServiceID: svc.ID,
		MasterID:  master.ID,
		Start:     slot.Start,
		End:       slot.End,
	})
	if err != nil {
		return "", fmt.Errorf("the booking could not be saved, please try again")
	}
	return fmt.Sprintf("Booked: %s with %s on %s at %s (booking #%d).",
		svc.Name, master.Name, slot.Start.Format("2006-01-02"), slot.Start.Format("15:04"), id), nil
}

func (s *SalonService) cancelAppointment(ctx context.Context, args map[string]any) (string, error) {
	callerID, _ := args["caller_id"].(int64)
	id, _ := args["appointment_id"].(int64)

	appointment, found, err := s.backend.AppointmentByID(ctx, callerID, id)
	if err != nil {
		return "", fmt.Errorf("your bookings are unavailable right now")
	}
	if !found {
		return "", fmt.Errorf("booking #%d was not found among your appointments", id)
	}
	ok, err := s.backend.CancelAppointment(ctx, callerID, id)
	if err != nil || !ok {
		return "", fmt.Errorf("booking #%d could not be cancelled, please try again", id)
	}
	return fmt.Sprintf("Cancelled: %s.", describeAppointment(appointment)), nil
}

func (s *SalonService) rescheduleAppointment(ctx context.Context, args map[string]any) (string, error) {
	callerID, _ := args["caller_id"].(int64)
	id, _ := args["appointment_id"].(int64)

	appointment, found, err := s.backend.AppointmentByID(ctx, callerID, id)
	if err != nil {
		return "", fmt.Errorf("your bookings are unavailable right now")
	}
	if !found {
		return "", fmt.Errorf("booking #%d was not found among your appointments", id)
	}

	start, err := s.parseMoment(argString(args, "date"), argString(args, "time"))
	if err != nil {
		return "", err
	}
	duration := appointment.End.Sub(appointment.Start)
	slot := contractx.Interval{Start: start, End: start.Add(duration)}
	if err := s.checkBookable(slot); err != nil {
		return "", err
	}

	old := contractx.Interval{Start: appointment.Start, End: appointment.End}
	master := contractx.Master{ID: appointment.MasterID, Name: appointment.MasterName}
	if _, err := s.pickFreeMaster(ctx, []contractx.Master{master}, slot, old); err != nil {
		return "", err
	}

	if err := s.backend.RescheduleAppointment(ctx, callerID, id, slot); err != nil {
		return "", fmt.Errorf("booking #%d could not be moved, please try again", id)
	}
	return fmt.Sprintf("Moved booking #%d to %s at %s.", id, slot.Start.Format("2006-01-02"), slot.Start.Format("15:04")), nil
}

func (s *SalonService) saveClientName(ctx context.Context, args map[string]any) (string, error) {
	callerID, _ := args["caller_id"].(int64)
	name := argString(args, "name")
	if name == "" {
		return "", fmt.Errorf("the name is empty")
	}
	if err := s.backend.SaveClientName(ctx, callerID, name); err != nil {
		return "", fmt.Errorf("your name could not be saved, please try again")
	}
	return s.contactProgress(ctx, callerID, fmt.Sprintf("Saved your name: %s.", name))
}

func (s *SalonService) saveClientPhone(ctx context.Context, args map[string]any) (string, error) {
	callerID, _ := args["caller_id"].(int64)
	phone := normalizePhone(argString(args, "phone"))
	if phone == "" {
		return "", fmt.Errorf("that does not look like a phone number")
	}
	if err := s.backend.SaveClientPhone(ctx, callerID, phone); err != nil {
		return "", fmt.Errorf("your phone number could not be saved, please try again")
	}
	return s.contactProgress(ctx, callerID, fmt.Sprintf("Saved your phone number: %s.", phone))
}

func (s *SalonService) escalate(_ context.Context, _ map[string]any) (string, error) {
	return "A manager has been notified and will join this chat shortly.", nil
}

/* ------------------------------- helpers -------------------------------- */

func (s *SalonService) contactProgress(ctx context.Context, callerID int64, saved string) (string, error) {
	client, err := s.backend.Client(ctx, callerID)
	if err != nil {
		return saved, nil
	}
	if missing := missingContact(client); missing != "" {
		return saved + " I still need your " + missing + ".", nil
	}
	return saved, nil
}

// pickFreeMaster returns the first candidate with no conflicting appointment
// in slot. ignore excludes the booking being moved from its own conflict
// check.
func (s *SalonService) pickFreeMaster(ctx context.Context, candidates []contractx.Master, slot, ignore contractx.Interval) (contractx.Master, error) {
	for _, master := range candidates {
		busy, err := s.backend.BusyIntervals(ctx, []int64{master.ID}, dayInterval(slot.Start))
		if err != nil {
			return contractx.Master{}, fmt.Errorf("the schedule is unavailable right now")
		}
		conflict := false
		for _, b := range busy {
			if b.Start.Equal(ignore.Start) && b.End.Equal(ignore.End) {
				continue
			}
			if overlaps(b, slot) {
				conflict = true
				break
			}
		}
		if !conflict {
			return master, nil
		}
	}
	return contractx.Master{}, fmt.Errorf("no specialist is free on %s at %s, please pick another time",
		slot.Start.Format("2006-01-02"), slot.Start.Format("15:04"))
}

func (s *SalonService) checkBookable(slot contractx.Interval) error {
	window := workWindow(slot.Start)
	if slot.Start.Before(window.Start) || slot.End.After(window.End) {
		return fmt.Errorf("the salon works from %02d:00 to %02d:00", workStartHour, workEndHour)
	}
	if slot.Start.Before(s.now().In(s.loc)) {
		return fmt.Errorf("that time is already in the past")
	}
	return nil
}

func (s *SalonService) resolveService(ctx context.Context, query string) (contractx.Service, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return contractx.Service{}, fmt.Errorf("which service do you mean?")
	}
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		svc, found, berr := s.backend.ServiceByID(ctx, id)
		if berr != nil {
			return contractx.Service{}, fmt.Errorf("the service list is unavailable right now")
		}
		if !found {
			return contractx.Service{}, fmt.Errorf("there is no service with number %d", id)
		}
		return svc, nil
	}

	services, err := s.backend.Services(ctx)
	if err != nil {
		return contractx.Service{}, fmt.Errorf("the service list is unavailable right now")
	}
	var matches []contractx.Service
	needle := strings.ToLower(query)
	for _, svc := range services {
		name := strings.ToLower(svc.Name)
		if name == needle {
			return svc, nil
		}
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			matches = append(matches, svc)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		names := make([]string, len(services))
		for i, svc := range services {
			names[i] = svc.Name
		}
		return contractx.Service{}, fmt.Errorf("I don't know a service called %q. We offer: %s", query, strings.Join(names, ", "))
	default:
		names := make([]string, len(matches))
		for i, svc := range matches {
			names[i] = svc.Name
		}
		return contractx.Service{}, fmt.Errorf("%q matches several services: %s. Which one do you mean?", query, strings.Join(names, ", "))
	}
}

func findMaster(masters []contractx.Master, name string) (contractx.Master, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, m := range masters {
		if strings.Contains(strings.ToLower(m.Name), needle) {
			return m, nil
		}
	}
	return contractx.Master{}, fmt.Errorf("%s does not perform this service", name)
}

func (s *SalonService) parseDay(raw string) (time.Time, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	switch raw {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}
	for _, layout := range []string{"2006-01-02", "02.01.2006", "02.01"} {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			if layout == "02.01" {
				t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("I could not understand the date %q, please use a form like 2026-09-01", raw)
}

func (s *SalonService) parseMoment(rawDay, rawClock string) (time.Time, error) {
	day, err := s.parseDay(rawDay)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := time.Parse("15:04", strings.TrimSpace(rawClock))
	if err != nil {
		return time.Time{}, fmt.Errorf("I could not understand the time %q, please use a form like 14:00", rawClock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, s.loc), nil
}

func dayInterval(day time.Time) contractx.Interval {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return contractx.Interval{Start: start, End: start.AddDate(0, 0, 1)}
}

func describeAppointment(a contractx.Appointment) string {
	return fmt.Sprintf("#%d: %s with %s on %s at %s",
		a.ID, a.ServiceName, a.MasterName, a.Start.Format("2006-01-02"), a.Start.Format("15:04"))
}

func missingContact(c contractx.Client) string {
	switch {
	case c.Name == "" && c.Phone == "":
		return "name and phone number"
	case c.Name == "":
		return "name"
	case c.Phone == "":
		return "phone number"
	}
	return ""
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	return b.String()
}

func argString(args map[string]any, name string) string {
	v, ok := args[name]
	if !ok {
		return ""
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
