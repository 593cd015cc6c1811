package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// BookingRepo implements the booking persistence surface over Postgres.
type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

var _ contractx.BookingBackend = (*BookingRepo)(nil)

func (r *BookingRepo) Services(ctx context.Context) ([]contractx.Service, error) {
	var rows []serviceRow
	if err := r.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	services := make([]contractx.Service, 0, len(rows))
	for _, row := range rows {
		services = append(services, contractx.Service{
			ID:          row.ID,
			Name:        row.Name,
			Price:       row.Price,
			DurationMin: row.DurationMin,
		})
	}
	return services, nil
}

func (r *BookingRepo) ServiceByID(ctx context.Context, id int64) (contractx.Service, bool, error) {
	var row serviceRow
	err := r.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Service{}, false, nil
	}
	if err != nil {
		return contractx.Service{}, false, fmt.Errorf("select service %d: %w", id, err)
	}
	return contractx.Service{ID: row.ID, Name: row.Name, Price: row.Price, DurationMin: row.DurationMin}, true, nil
}

func (r *BookingRepo) MastersForService(ctx context.Context, serviceID int64) ([]contractx.Master, error) {
	var rows []masterRow
	err := r.db.NewSelect().
		Model(&rows).
		Join("JOIN master_services AS ms ON ms.master_id = m.id").
		Where("ms.service_id = ?", serviceID).
		Order("m.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select masters for service %d: %w", serviceID, err)
	}
	masters := make([]contractx.Master, 0, len(rows))
	for _, row := range rows {
		masters = append(masters, contractx.Master{ID: row.ID, Name: row.Name})
	}
	return masters, nil
}

func (r *BookingRepo) BusyIntervals(ctx context.Context, masterIDs []int64, day contractx.Interval) ([]contractx.Interval, error) {
	if len(masterIDs) == 0 {
		return nil, nil
	}
	var rows []appointmentRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("master_id IN (?)", bun.In(masterIDs)).
		Where("start_time < ?", day.End).
		Where("end_time > ?", day.Start).
		Order("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select busy intervals: %w", err)
	}
	intervals := make([]contractx.Interval, 0, len(rows))
	for _, row := range rows {
		intervals = append(intervals, contractx.Interval{Start: row.StartTime, End: row.EndTime})
	}
	return intervals, nil
}

func (r *BookingRepo) CreateAppointment(ctx context.Context, a contractx.Appointment) (int64, error) {
	row := appointmentRow{
		ClientID:  a.ClientID,
		ServiceID: a.ServiceID,
		MasterID:  a.MasterID,
		StartTime: a.Start,
		EndTime:   a.End,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("insert appointment: %w", err)
	}
	return row.ID, nil
}

func (r *BookingRepo) AppointmentsFor(ctx context.Context, clientID int64, from time.Time) ([]contractx.Appointment, error) {
	var rows []appointmentRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("client_id = ?", clientID).
		Where("end_time > ?", from).
		Order("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select appointments for client %d: %w", clientID, err)
	}
	return r.decorate(ctx, rows)
}

func (r *BookingRepo) AppointmentByID(ctx context.Context, clientID, id int64) (contractx.Appointment, bool, error) {
	var row appointmentRow
	err := r.db.NewSelect().
		Model(&row).
		Where("id = ?", id).
		Where("client_id = ?", clientID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Appointment{}, false, nil
	}
	if err != nil {
		return contractx.Appointment{}, false, fmt.Errorf("select appointment %d: %w", id, err)
	}
	decorated, err := r.decorate(ctx, []appointmentRow{row})
	if err != nil {
		return contractx.Appointment{}, false, err
	}
	return decorated[0], true, nil
}

func (r *BookingRepo) CancelAppointment(ctx context.Context, clientID, id int64) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*appointmentRow)(nil)).
		Where("id = ?", id).
		Where("client_id = ?", clientID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("delete appointment %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete appointment %d: %w", id, err)
	}
	return affected > 0, nil
}

func (r *BookingRepo) RescheduleAppointment(ctx context.Context, clientID, id int64, slot contractx.Interval) error {
	res, err := r.db.NewUpdate().
		Model((*appointmentRow)(nil)).
		Set("start_time = ?", slot.Start).
		Set("end_time = ?", slot.End).
		Where("id = ?", id).
		Where("client_id = ?", clientID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update appointment %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update appointment %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("appointment %d not found for client %d", id, clientID)
	}
	return nil
}

func (r *BookingRepo) Client(ctx context.Context, telegramID int64) (contractx.Client, error) {
	var row clientRow
	err := r.db.NewSelect().Model(&row).Where("telegram_id = ?", telegramID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Client{TelegramID: telegramID}, nil
	}
	if err != nil {
		return contractx.Client{}, fmt.Errorf("select client %d: %w", telegramID, err)
	}
	return contractx.Client{TelegramID: row.TelegramID, Name: row.Name, Phone: row.Phone}, nil
}

func (r *BookingRepo) SaveClientName(ctx context.Context, telegramID int64, name string) error {
	return r.upsertClient(ctx, telegramID, "name", strings.TrimSpace(name))
}

func (r *BookingRepo) SaveClientPhone(ctx context.Context, telegramID int64, phone string) error {
	return r.upsertClient(ctx, telegramID, "phone", strings.TrimSpace(phone))
}

func (r *BookingRepo) upsertClient(ctx context.Context, telegramID int64, column, value string) error {
	row := clientRow{TelegramID: telegramID, UpdatedAt: time.Now().UTC()}
	switch column {
	case "name":
		row.Name = value
	case "phone":
		row.Phone = value
	}
	_, err := r.db.NewInsert().
		Model(&row).
		On("CONFLICT (telegram_id) DO UPDATE").
		Set(column+" = EXCLUDED."+column).
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert client %d: %w", telegramID, err)
	}
	return nil
}

// decorate resolves service and master names for user-facing summaries.
func (r *BookingRepo) decorate(ctx context.Context, rows []appointmentRow) ([]contractx.Appointment, error) {
	appointments := make([]contractx.Appointment, 0, len(rows))
	for _, row := range rows {
		a := contractx.Appointment{
			ID:        row.ID,
			ClientID:  row.ClientID,
			ServiceID: row.ServiceID,
			MasterID:  row.MasterID,
			Start:     row.StartTime,
			End:       row.EndTime,
		}
		if svc, ok, err := r.ServiceByID(ctx, row.ServiceID); err != nil {
			return nil, err
		} else if ok {
			a.ServiceName = svc.Name
		}
		var master masterRow
		if err := r.db.NewSelect().Model(&master).Where("id = ?", row.MasterID).Scan(ctx); err == nil {
			a.MasterName = master.Name
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("select master %d: %w", row.MasterID, err)
		}
		appointments = append(appointments, a)
	}
	return appointments, nil
}
