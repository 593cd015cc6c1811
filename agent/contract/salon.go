package contract

import (
	"context"
	"time"
)

// Service is one salon service as offered on the price list.
type Service struct {
	ID          int64
	Name        string
	Price       int
	DurationMin int
}

// Master is one specialist.
type Master struct {
	ID   int64
	Name string
}

// Appointment is a booked visit, denormalized with the names needed for
// user-facing summaries.
type Appointment struct {
	ID          int64
	ClientID    int64
	ServiceID   int64
	MasterID    int64
	ServiceName string
	MasterName  string
	Start       time.Time
	End         time.Time
}

// Client is the per-user contact record keyed by messenger identity.
type Client struct {
	TelegramID int64
	Name       string
	Phone      string
}

// Interval is a half-open [Start, End) time span.
type Interval struct {
	Start time.Time
	End   time.Time
}

// BookingBackend is the persistence surface the booking tools run against.
// Appointment lookups are always scoped to the owning client so one user can
// never touch another user's bookings.
type BookingBackend interface {
	Services(ctx context.Context) ([]Service, error)
	ServiceByID(ctx context.Context, id int64) (Service, bool, error)
	MastersForService(ctx context.Context, serviceID int64) ([]Master, error)
	BusyIntervals(ctx context.Context, masterIDs []int64, day Interval) ([]Interval, error)

	CreateAppointment(ctx context.Context, a Appointment) (int64, error)
	AppointmentsFor(ctx context.Context, clientID int64, from time.Time) ([]Appointment, error)
	AppointmentByID(ctx context.Context, clientID, id int64) (Appointment, bool, error)
	CancelAppointment(ctx context.Context, clientID, id int64) (bool, error)
	RescheduleAppointment(ctx context.Context, clientID, id int64, slot Interval) error

	Client(ctx context.Context, telegramID int64) (Client, error)
	SaveClientName(ctx context.Context, telegramID int64, name string) error
	SaveClientPhone(ctx context.Context, telegramID int64, phone string) error
}
