package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/iabetor/daoreader/internal/logger"
)

// DB 是阅读器的 SQLite 连接，目前仅保存云端合成的音频缓存。
type DB struct {
	*sql.DB
	path string
}

// DefaultPath 返回默认数据库路径 ~/.daoreader/daoreader.db。
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./daoreader.db"
	}
	return filepath.Join(home, ".daoreader", "daoreader.db")
}

// Open 打开或创建数据库并执行迁移。
// dbPath 为空时使用 DefaultPath；":memory:" 用于测试。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		dbPath = DefaultPath()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("[database] 创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("[database] 打开数据库失败: %w", err)
	}
	// 单连接，避免 :memory: 下每个连接各自一份库
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("[database] 设置 WAL 模式失败: %w", err)
		}
	}

	d := &DB{DB: db, path: dbPath}
	if err := d.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)
	return d, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 创建所需的表和索引，可重复执行。
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS speech_cache (
			cache_key TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			sample_rate INTEGER NOT NULL,
			pcm BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used INTEGER NOT NULL DEFAULT 0
		)`,
		// 旧版本以秒级文本时间记录 last_used，统一视为最旧
		`UPDATE speech_cache SET last_used = 0 WHERE typeof(last_used) != 'integer'`,
		`CREATE INDEX IF NOT EXISTS idx_speech_cache_last_used ON speech_cache(last_used)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("[database] 数据库迁移失败: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
