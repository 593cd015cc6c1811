package storage

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*serviceRow)(nil),
		(*masterRow)(nil),
		(*masterServiceRow)(nil),
		(*clientRow)(nil),
		(*appointmentRow)(nil),
		(*historyRow)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// SeedDemo loads a small catalog of services and masters when the services
// table is empty. Intended for local development only.
func SeedDemo(ctx context.Context, db *bun.DB) error {
	count, err := db.NewSelect().Model((*serviceRow)(nil)).Count(ctx)
	if err != nil {
		return fmt.Errorf("count services: %w", err)
	}
	if count > 0 {
		return nil
	}

	services := []serviceRow{
		{Name: "Manicure", Price: 1500, DurationMin: 60},
		{Name: "Pedicure", Price: 2000, DurationMin: 90},
		{Name: "Haircut", Price: 1800, DurationMin: 60},
		{Name: "Hair coloring", Price: 4500, DurationMin: 150},
		{Name: "Eyebrow shaping", Price: 900, DurationMin: 30},
	}
	if _, err := db.NewInsert().Model(&services).Exec(ctx); err != nil {
		return fmt.Errorf("seed services: %w", err)
	}

	masters := []masterRow{
		{Name: "Anna"},
		{Name: "Maria"},
		{Name: "Elena"},
	}
	if _, err := db.NewInsert().Model(&masters).Exec(ctx); err != nil {
		return fmt.Errorf("seed masters: %w", err)
	}

	links := []masterServiceRow{
		{MasterID: masters[0].ID, ServiceID: services[0].ID},
		{MasterID: masters[0].ID, ServiceID: services[1].ID},
		{MasterID: masters[1].ID, ServiceID: services[2].ID},
		{MasterID: masters[1].ID, ServiceID: services[3].ID},
		{MasterID: masters[2].ID, ServiceID: services[0].ID},
		{MasterID: masters[2].ID, ServiceID: services[4].ID},
	}
	if _, err := db.NewInsert().Model(&links).Exec(ctx); err != nil {
		return fmt.Errorf("seed master services: %w", err)
	}
	return nil
}
