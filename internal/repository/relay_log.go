package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ghabxph/dnd-relay/internal/database"
)

// RelayRecord is one relayed message and how its delivery went.
type RelayRecord struct {
	ID        int64     `db:"id" json:"id"`
	RequestID string    `db:"request_id" json:"request_id"`
	Command   string    `db:"command" json:"command"`
	ChannelID string    `db:"channel_id" json:"channel_id"`
	UserName  string    `db:"user_name" json:"user_name"`
	Character string    `db:"character_name" json:"character"`
	Text      string    `db:"message_text" json:"text"`
	Delivered bool      `db:"delivered" json:"delivered"`
	Error     *string   `db:"error" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type RelayRepository struct {
	db     *database.Database
	logger *zap.Logger
}

func NewRelayRepository(db *database.Database, logger *zap.Logger) *RelayRepository {
	return &RelayRepository{
		db:     db,
		logger: logger,
	}
}

// Record inserts rec and fills in its ID and CreatedAt.
func (r *RelayRepository) Record(ctx context.Context, rec *RelayRecord) error {
	query := `
		INSERT INTO relay_log (request_id, command, channel_id, user_name, character_name, message_text, delivered, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.db.GetDB().QueryRowContext(ctx, query,
		rec.RequestID, rec.Command, rec.ChannelID, rec.UserName,
		rec.Character, rec.Text, rec.Delivered, rec.Error,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record relay: %w", err)
	}

	r.logger.Debug("Relay recorded",
		zap.String("request_id", rec.RequestID),
		zap.Int64("id", rec.ID),
		zap.Bool("delivered", rec.Delivered))

	return nil
}

// ListRecent returns the latest records for a channel, newest first.
func (r *RelayRepository) ListRecent(ctx context.Context, channelID string, limit int) ([]*RelayRecord, error) {
	query := `SELECT id, request_id, command, channel_id, user_name, character_name, message_text, delivered, error, created_at
		FROM relay_log WHERE channel_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.db.GetDB().QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list relays: %w", err)
	}
	defer rows.Close()

	var records []*RelayRecord
	for rows.Next() {
		rec := &RelayRecord{}
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Command, &rec.ChannelID, &rec.UserName,
			&rec.Character, &rec.Text, &rec.Delivered, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan relay: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relays: %w", err)
	}

	return records, nil
}

// GetByRequestID returns the record for requestID, or nil if there is none.
func (r *RelayRepository) GetByRequestID(ctx context.Context, requestID string) (*RelayRecord, error) {
	query := `SELECT id, request_id, command, channel_id, user_name, character_name, message_text, delivered, error, created_at
		FROM relay_log WHERE request_id = $1`

	rec := &RelayRecord{}
	err := r.db.GetDB().QueryRowContext(ctx, query, requestID).Scan(&rec.ID, &rec.RequestID, &rec.Command,
		&rec.ChannelID, &rec.UserName, &rec.Character, &rec.Text, &rec.Delivered, &rec.Error, &rec.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get relay: %w", err)
	}

	return rec, nil
}

// DeleteOlderThan removes records created before cutoff and reports how many
// were removed.
func (r *RelayRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.GetDB().ExecContext(ctx, `DELETE FROM relay_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune relays: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned relays: %w", err)
	}
	return n, nil
}
