package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// HistoryRepo persists conversation turns per client.
type HistoryRepo struct {
	db *bun.DB
}

func NewHistoryRepo(db *bun.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

var _ contractx.HistoryStore = (*HistoryRepo)(nil)

func (r *HistoryRepo) Append(ctx context.Context, userID int64, role contractx.Role, text string) error {
	row := historyRow{
		ClientID:  userID,
		Role:      string(role),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert history turn: %w", err)
	}
	return nil
}

// Recent returns the last limit turns in chronological order.
func (r *HistoryRepo) Recent(ctx context.Context, userID int64, limit int) ([]contractx.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []historyRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("client_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select history for client %d: %w", userID, err)
	}
	turns := make([]contractx.Turn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = contractx.Turn{Role: contractx.Role(row.Role), Text: row.Text}
	}
	return turns, nil
}

func (r *HistoryRepo) Clear(ctx context.Context, userID int64) (int, error) {
	res, err := r.db.NewDelete().
		Model((*historyRow)(nil)).
		Where("client_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear history for client %d: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear history for client %d: %w", userID, err)
	}
	return int(affected), nil
}
