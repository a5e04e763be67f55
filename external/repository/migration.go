package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE connection_kind AS ENUM ('connect', 'reconnect'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS voice_connections (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		endpoint TEXT NOT NULL DEFAULT '',
		ssrc BIGINT NOT NULL DEFAULT 0,
		kind connection_kind NOT NULL,
		connected_at TIMESTAMPTZ,
		disconnected_at TIMESTAMPTZ,
		disconnect_kind TEXT NOT NULL DEFAULT '',
		disconnect_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_voice_connections_open ON voice_connections (guild_id, connected_at DESC) WHERE disconnected_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_voice_connections_guild ON voice_connections (guild_id, created_at DESC)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
