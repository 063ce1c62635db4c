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

package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssb-solar/solar/admin"
	"github.com/ssb-solar/solar/config"
	"github.com/ssb-solar/solar/handshake"
	"github.com/ssb-solar/solar/internal/logger"
	"github.com/ssb-solar/solar/internal/metrics"
	"github.com/ssb-solar/solar/node"
	"github.com/ssb-solar/solar/replicate"
	"github.com/ssb-solar/solar/store"
	"github.com/ssb-solar/solar/store/leveldb"
	"github.com/ssb-solar/solar/store/postgres"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("solar: load config: %w", err)
	}
	applyFlagOverrides(cfg)

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Data.Dir, 0700); err != nil {
		return fmt.Errorf("solar: create data dir: %w", err)
	}

	identity, err := node.LoadOrCreateIdentity(cfg.Identity.SecretPath)
	if err != nil {
		return fmt.Errorf("solar: load identity: %w", err)
	}

	networkKey, err := resolveNetworkKey(cfg.Network.NetworkKey)
	if err != nil {
		return fmt.Errorf("solar: network key: %w", err)
	}

	replConfig, err := loadReplicationConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("solar: load replication config: %w", err)
	}

	st, closeStore, err := openStore(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("solar: open store: %w", err)
	}
	defer closeStore()

	n := node.New(identity, st, replConfig, networkKey, log)
	defer n.Close()

	if err := n.Listen(ctx, cfg.Network.ListenAddr); err != nil {
		return fmt.Errorf("solar: listen: %w", err)
	}
	log.Info("listening", logger.String("addr", cfg.Network.ListenAddr), logger.String("id", n.FeedRef().Ref()))

	if flagConnect != "" {
		addr, peerKey, err := parseMultiserverAddr(flagConnect)
		if err != nil {
			return fmt.Errorf("solar: --connect: %w", err)
		}
		if err := n.Dial(ctx, addr, peerKey); err != nil {
			log.Warn("dial failed", logger.String("addr", addr), logger.Error(err))
		}
	}

	if cfg.Network.LAN {
		_, portStr, _ := strings.Cut(cfg.Network.ListenAddr, ":")
		port, _ := strconv.Atoi(portStr)
		if err := node.BroadcastPresence(ctx, port, identity.Public, 5*time.Second); err != nil {
			log.Warn("lan broadcast failed", logger.Error(err))
		}
		if err := node.DiscoverPeers(ctx, func(ann node.PeerAnnouncement) {
			addr := fmt.Sprintf("%s:%d", ann.Host, ann.Port)
			if err := n.Dial(ctx, addr, ann.Public); err != nil {
				log.Warn("lan dial failed", logger.String("addr", addr), logger.Error(err))
			}
		}); err != nil {
			log.Warn("lan discovery failed", logger.Error(err))
		}
	}

	if cfg.Admin.Enabled {
		adminSrv := admin.NewServer(n, cfg.Admin.JWTSecretEnv, log)
		adminSrv.RegisterHealthCheck("replication_store", func(ctx context.Context) error {
			_, err := loadReplicationConfig(ctx, cfg)
			return err
		})
		if err := adminSrv.Start(cfg.Admin.ListenAddr); err != nil {
			return fmt.Errorf("solar: start admin server: %w", err)
		}
		log.Info("admin API listening", logger.String("addr", cfg.Admin.ListenAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = adminSrv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.ListenAddr); err != nil {
				log.Warn("metrics server stopped", logger.Error(err))
			}
		}()
		log.Info("metrics listening", logger.String("addr", cfg.Metrics.ListenAddr))
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// loadConfig loads from the explicit --config file when given, or
// falls back to the directory-based environment lookup (config.Load)
// used by config/*.yaml-style deployments.
func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		cfg, err := config.LoadFromFile(flagConfig)
		if err != nil {
			return nil, err
		}
		config.SubstituteEnvVarsInConfig(cfg)
		return cfg, nil
	}
	return config.Load()
}

func applyFlagOverrides(cfg *config.Config) {
	if flagLAN {
		cfg.Network.LAN = true
	}
	if flagNetworkKey != "" {
		cfg.Network.NetworkKey = flagNetworkKey
	}
	if flagReplicate != "" {
		cfg.Data.ReplicationConfig = flagReplicate
	}
	if flagIP != "" || flagPort != 0 {
		host := flagIP
		port := cfg.Network.ListenAddr
		if idx := strings.LastIndexByte(port, ':'); idx >= 0 {
			port = port[idx+1:]
		}
		if flagPort != 0 {
			port = strconv.Itoa(flagPort)
		}
		cfg.Network.ListenAddr = fmt.Sprintf("%s:%s", host, port)
	}
}

func resolveNetworkKey(encoded string) ([32]byte, error) {
	if encoded == "" {
		return handshake.DefaultNetworkKey, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return [32]byte{}, fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("network key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return key, nil
}

// parseMultiserverAddr parses a "tcp://host:port?shs=<base64-long-pk>"
// multiserver URI into a dialable address and the peer's long-term key.
func parseMultiserverAddr(uri string) (string, []byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", nil, fmt.Errorf("parse uri: %w", err)
	}
	if u.Scheme != "tcp" {
		return "", nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	shs := u.Query().Get("shs")
	if shs == "" {
		return "", nil, fmt.Errorf("missing shs query parameter")
	}
	pub, err := base64.StdEncoding.DecodeString(shs)
	if err != nil {
		return "", nil, fmt.Errorf("decode shs key: %w", err)
	}
	return u.Host, pub, nil
}

// loadReplicationConfig reads the replication policy from the
// Postgres-backed store when cfg.Data.Postgres is configured,
// otherwise from the TOML file at cfg.Data.ReplicationConfig.
func loadReplicationConfig(ctx context.Context, cfg *config.Config) (replicate.Config, error) {
	if pg := cfg.Data.Postgres; pg != nil {
		pgStore, err := postgres.NewStore(ctx, &postgres.Config{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			Database: pg.Database,
			SSLMode:  pg.SSLMode,
		})
		if err != nil {
			return replicate.Config{}, fmt.Errorf("connect to postgres: %w", err)
		}
		defer pgStore.Close()
		return pgStore.LoadConfig(ctx)
	}
	return config.LoadReplicationConfig(cfg.Data.ReplicationConfig)
}

func openStore(dataDir string) (store.Store, func(), error) {
	st, err := leveldb.Open(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

func newLogger(cfg *config.Config) *logger.StructuredLogger {
	var out *os.File = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}
	l := logger.NewLogger(out, parseLevel(logLevelOverride(cfg)))
	l.SetPrettyPrint(cfg.Logging.Format != "json")
	return l
}

// logLevelOverride lets SOLAR_LOG behave like the Rust tracing
// subscriber's RUST_LOG for local development, taking priority over
// the configured logging.level.
func logLevelOverride(cfg *config.Config) string {
	if v := os.Getenv("SOLAR_LOG"); v != "" {
		return v
	}
	return cfg.Logging.Level
}

func parseLevel(s string) logger.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logger.DebugLevel
	case "warn", "warning":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	case "fatal":
		return logger.FatalLevel
	default:
		return logger.InfoLevel
	}
}
