package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"inventory-sync-service/internal/config"
	"inventory-sync-service/internal/logger"
)

// MySQLStore is the shared-database backend, used when several devices on the
// same network point at one state database instead of a per-device file.
type MySQLStore struct {
	sqlStore
}

func NewMySQLStore(cfg config.StateStorage) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	// Retry loop for Ping
	maxRetries := 30
	for i := 0; i < maxRetries; i++ {
		err = db.Ping()
		if err == nil {
			break
		}
		logger.Log.Info("Waiting for state DB...", zap.Error(err), zap.Int("attempt", i+1))
		time.Sleep(1 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to ping mysql after retries: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := ensureMySQLSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply mysql schema: %w", err)
	}

	return &MySQLStore{sqlStore{
		db: db,
		upsertRecord: `INSERT INTO records (collection, id, data, updated_at)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
			data = VALUES(data),
			updated_at = VALUES(updated_at)`,
		upsertCache: `INSERT INTO cache_entries (cache_key, data, stored_at, ttl_ms)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
			data = VALUES(data),
			stored_at = VALUES(stored_at),
			ttl_ms = VALUES(ttl_ms),
			version = version + 1`,
	}}, nil
}

// ensureMySQLSchema creates tables if missing. Additive only; existing rows
// are preserved across upgrades.
func ensureMySQLSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			collection VARCHAR(128) NOT NULL,
			id         VARCHAR(128) NOT NULL,
			data       JSON NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key  VARCHAR(255) NOT NULL,
			data       JSON NOT NULL,
			version    BIGINT NOT NULL DEFAULT 1,
			stored_at  DATETIME NOT NULL,
			ttl_ms     BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (cache_key)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_actions (
			seq           BIGINT NOT NULL AUTO_INCREMENT,
			id            VARCHAR(64) NOT NULL,
			entity_name   VARCHAR(128) NOT NULL,
			action        VARCHAR(16) NOT NULL,
			payload       JSON NOT NULL,
			status        VARCHAR(16) NOT NULL DEFAULT 'pending',
			error_message TEXT,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL,
			PRIMARY KEY (seq),
			UNIQUE KEY uniq_pending_actions_id (id),
			KEY idx_pending_actions_status (status)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
