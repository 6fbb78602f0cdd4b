package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"GrooveGauge/internal/emotion"
	"GrooveGauge/internal/sessionlog"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("session not found")

// Config 数据库配置
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "groovegauge",
		SSLMode:  "disable",
	}
}

// DSN 连接字符串
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// SessionInfo 归档会话概要
type SessionInfo struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	ReadingCount int       `json:"reading_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Archive PostgreSQL会话归档
type Archive struct {
	pool *pgxpool.Pool
}

// Connect 按配置连接数据库
func Connect(ctx context.Context, config *Config) (*Archive, error) {
	return ConnectDSN(ctx, config.DSN())
}

// ConnectDSN 按连接字符串连接数据库
func ConnectDSN(ctx context.Context, dsn string) (*Archive, error) {
	// 配置连接池
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ PostgreSQL连接池创建成功")
	return &Archive{pool: pool}, nil
}

// Close 关闭连接池
func (a *Archive) Close() {
	if a.pool != nil {
		a.pool.Close()
		log.Println("✅ PostgreSQL连接池已关闭")
	}
}

// Ping 测试数据库连接
func (a *Archive) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return a.pool.Ping(ctx)
}

// Stats 连接池统计信息
func (a *Archive) Stats() *pgxpool.Stat {
	return a.pool.Stat()
}

const schema = `
CREATE TABLE IF NOT EXISTS capture_sessions (
	id            TEXT PRIMARY KEY,
	started_at    TIMESTAMPTZ NOT NULL,
	reading_count INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS session_readings (
	session_id  TEXT NOT NULL REFERENCES capture_sessions(id) ON DELETE CASCADE,
	ordinal     INTEGER NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	emotion     TEXT NOT NULL,
	PRIMARY KEY (session_id, ordinal)
);
`

// Migrate 创建归档表
func (a *Archive) Migrate(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate archive schema: %w", err)
	}
	return nil
}

// SaveSession 在一个事务中保存会话及其读数，同ID会覆盖
func (a *Archive) SaveSession(ctx context.Context, id string, l sessionlog.Log) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM capture_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("replace session %s: %w", id, err)
	}

	startedAt := l.StartTime()
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO capture_sessions (id, started_at, reading_count) VALUES ($1, $2, $3)`,
		id, startedAt, l.Len(),
	); err != nil {
		return fmt.Errorf("insert session %s: %w", id, err)
	}

	rows := make([][]any, 0, l.Len())
	for i, r := range l.Readings() {
		rows = append(rows, []any{id, i, r.Timestamp, r.Emotion})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"session_readings"},
		[]string{"session_id", "ordinal", "captured_at", "emotion"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("insert readings for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit session %s: %w", id, err)
	}
	return nil
}

// LoadSession 读取会话日志
func (a *Archive) LoadSession(ctx context.Context, id string) (sessionlog.Log, error) {
	var exists bool
	if err := a.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM capture_sessions WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return sessionlog.Log{}, fmt.Errorf("lookup session %s: %w", id, err)
	}
	if !exists {
		return sessionlog.Log{}, ErrSessionNotFound
	}

	rows, err := a.pool.Query(ctx,
		`SELECT captured_at, emotion FROM session_readings WHERE session_id = $1 ORDER BY ordinal`, id)
	if err != nil {
		return sessionlog.Log{}, fmt.Errorf("query readings for %s: %w", id, err)
	}

	readings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (emotion.Reading, error) {
		var ts time.Time
		var label string
		err := row.Scan(&ts, &label)
		return emotion.NewReading(ts, label), err
	})
	if err != nil {
		return sessionlog.Log{}, fmt.Errorf("scan readings for %s: %w", id, err)
	}

	return sessionlog.New(readings...), nil
}

// ListSessions 最近归档的会话
func (a *Archive) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := a.pool.Query(ctx,
		`SELECT id, started_at, reading_count, created_at FROM capture_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, pgx.RowToStructByPos[SessionInfo])
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return sessions, nil
}
