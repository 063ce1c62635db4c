// Copyright (C) 2025 ssb-solar
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package postgres is an opt-in alternate backing store for a node's
// replication configuration, for operators running Solar as a fleet of
// instances that should share one set of replication targets rather
// than each reading its own replication.toml. The TOML file remains
// the default; this is selected explicitly at startup.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/replicate"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store persists a replicate.Config in PostgreSQL: one singleton row
// recording the mode, plus one row per selective-mode peer target.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database described by cfg, verifies the
// connection, and ensures the replication_mode/replication_peers
// tables exist.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS replication_mode (
			id    BOOLEAN PRIMARY KEY DEFAULT true,
			mode  TEXT NOT NULL,
			CONSTRAINT replication_mode_singleton CHECK (id)
		);
		CREATE TABLE IF NOT EXISTS replication_peers (
			feed    TEXT PRIMARY KEY,
			address TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// LoadConfig reads the current replication policy. A database with no
// mode row yet returns an empty selective Config, matching the
// behavior of a missing replication.toml.
func (s *Store) LoadConfig(ctx context.Context) (replicate.Config, error) {
	var modeStr string
	err := s.pool.QueryRow(ctx, `SELECT mode FROM replication_mode WHERE id`).Scan(&modeStr)
	if err == pgx.ErrNoRows {
		return replicate.NewSelectiveConfig(nil), nil
	}
	if err != nil {
		return replicate.Config{}, fmt.Errorf("postgres: load mode: %w", err)
	}

	if modeStr == "promiscuous" {
		return replicate.NewPromiscuousConfig(), nil
	}

	rows, err := s.pool.Query(ctx, `SELECT feed, address FROM replication_peers`)
	if err != nil {
		return replicate.Config{}, fmt.Errorf("postgres: load peers: %w", err)
	}
	defer rows.Close()

	var targets []replicate.PeerTarget
	for rows.Next() {
		var feedStr, address string
		if err := rows.Scan(&feedStr, &address); err != nil {
			return replicate.Config{}, fmt.Errorf("postgres: scan peer: %w", err)
		}
		feed, err := refs.ParseFeedRef(feedStr)
		if err != nil {
			return replicate.Config{}, fmt.Errorf("postgres: peer %q: %w", feedStr, err)
		}
		targets = append(targets, replicate.PeerTarget{Feed: feed, Address: address})
	}
	if err := rows.Err(); err != nil {
		return replicate.Config{}, fmt.Errorf("postgres: iterate peers: %w", err)
	}

	return replicate.NewSelectiveConfig(targets), nil
}

// SaveConfig replaces the stored replication policy with cfg, in one
// transaction.
func (s *Store) SaveConfig(ctx context.Context, cfg replicate.Config) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	modeStr := "selective"
	if cfg.Mode == replicate.ModePromiscuous {
		modeStr = "promiscuous"
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO replication_mode (id, mode) VALUES (true, $1)
		ON CONFLICT (id) DO UPDATE SET mode = EXCLUDED.mode
	`, modeStr); err != nil {
		return fmt.Errorf("postgres: save mode: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM replication_peers`); err != nil {
		return fmt.Errorf("postgres: clear peers: %w", err)
	}
	for _, t := range cfg.Targets {
		if _, err := tx.Exec(ctx, `
			INSERT INTO replication_peers (feed, address) VALUES ($1, $2)
		`, t.Feed.Ref(), t.Address); err != nil {
			return fmt.Errorf("postgres: save peer %s: %w", t.Feed.Ref(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}
