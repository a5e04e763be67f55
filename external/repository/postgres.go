package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/koedriver/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultListLimit = 50

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

const connectionColumns = `id, guild_id, channel_id, session_id, endpoint, ssrc, kind,
	connected_at, disconnected_at, disconnect_kind, disconnect_reason, created_at`

func (r *PostgresRepository) RecordConnect(ctx context.Context, input repository.RecordConnectInput) (*repository.Connection, error) {
	var c *repository.Connection
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// A reconnect supersedes the previous session without a disconnect event.
		if _, err := tx.Exec(ctx,
			`UPDATE voice_connections
			 SET disconnected_at = $2, disconnect_kind = 'superseded'
			 WHERE guild_id = $1 AND disconnected_at IS NULL AND connected_at IS NOT NULL`,
			input.GuildID, input.ConnectedAt); err != nil {
			return err
		}
		row := tx.QueryRow(ctx,
			`INSERT INTO voice_connections (guild_id, channel_id, session_id, endpoint, ssrc, kind, connected_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+connectionColumns,
			input.GuildID, input.ChannelID, input.SessionID, input.Endpoint, int64(input.SSRC), string(input.Kind), input.ConnectedAt)
		var err error
		c, err = scanConnection(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) RecordDisconnect(ctx context.Context, input repository.RecordDisconnectInput) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE voice_connections
			 SET disconnected_at = $2, disconnect_kind = $3, disconnect_reason = $4
			 WHERE id = (
				SELECT id FROM voice_connections
				WHERE guild_id = $1 AND disconnected_at IS NULL AND connected_at IS NOT NULL
				ORDER BY connected_at DESC LIMIT 1
			 )`,
			input.GuildID, input.DisconnectedAt, input.Kind, input.Reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO voice_connections (guild_id, channel_id, session_id, kind, disconnected_at, disconnect_kind, disconnect_reason)
			 VALUES ($1, $2, $3, 'connect', $4, $5, $6)`,
			input.GuildID, input.ChannelID, input.SessionID, input.DisconnectedAt, input.Kind, input.Reason)
		return err
	})
}

func (r *PostgresRepository) ListConnections(ctx context.Context, guildID string, limit int) ([]repository.Connection, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+connectionColumns+`
		 FROM voice_connections WHERE guild_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

func scanConnection(row pgx.Row) (*repository.Connection, error) {
	var c repository.Connection
	var ssrc int64
	var kind string
	var connectedAt, disconnectedAt *time.Time
	err := row.Scan(&c.ID, &c.GuildID, &c.ChannelID, &c.SessionID, &c.Endpoint, &ssrc, &kind,
		&connectedAt, &disconnectedAt, &c.DisconnectKind, &c.DisconnectReason, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.SSRC = uint32(ssrc)
	c.Kind = repository.ConnectionKind(kind)
	c.ConnectedAt = connectedAt
	c.DisconnectedAt = disconnectedAt
	return &c, nil
}
