package storage

import (
	"time"

	"github.com/uptrace/bun"
)

type serviceRow struct {
	bun.BaseModel `bun:"table:services"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Name        string `bun:"name,notnull"`
	Price       int    `bun:"price,notnull"`
	DurationMin int    `bun:"duration_min,notnull"`
}

type masterRow struct {
	bun.BaseModel `bun:"table:masters,alias:m"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

// masterServiceRow links a specialist to the services they perform.
type masterServiceRow struct {
	bun.BaseModel `bun:"table:master_services"`

	MasterID  int64 `bun:"master_id,pk"`
	ServiceID int64 `bun:"service_id,pk"`
}

type clientRow struct {
	bun.BaseModel `bun:"table:clients"`

	TelegramID int64     `bun:"telegram_id,pk"`
	Name       string    `bun:"name"`
	Phone      string    `bun:"phone"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

type appointmentRow struct {
	bun.BaseModel `bun:"table:appointments"`

	ID        int64     `bun:"id,pk,autoincrement"`
	ClientID  int64     `bun:"client_id,notnull"`
	ServiceID int64     `bun:"service_id,notnull"`
	MasterID  int64     `bun:"master_id,notnull"`
	StartTime time.Time `bun:"start_time,notnull"`
	EndTime   time.Time `bun:"end_time,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// historyRow is one persisted conversation turn.
type historyRow struct {
	bun.BaseModel `bun:"table:history_turns"`

	ID        int64     `bun:"id,pk,autoincrement"`
	ClientID  int64     `bun:"client_id,notnull"`
	Role      string    `bun:"role,notnull"`
	Text      string    `bun:"text,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
