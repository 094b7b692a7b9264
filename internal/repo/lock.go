package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkflowLockKey — ключ advisory lock для запуска workflow по расписанию.
const WorkflowLockKey int64 = 0x656e6761 // "enga"

// AdvisoryLock — session-level advisory lock PostgreSQL.
//
// Lock привязан к соединению, поэтому соединение удерживается до Unlock.
type AdvisoryLock struct {
	pool *pgxpool.Pool
	key  int64
}

// NewAdvisoryLock создаёт lock с заданным ключом.
func NewAdvisoryLock(pool *pgxpool.Pool, key int64) *AdvisoryLock {
	return &AdvisoryLock{pool: pool, key: key}
}

// TryLock пытается взять lock без ожидания.
// Возвращает ErrLockHeld, если lock занят другим процессом.
func (l *AdvisoryLock) TryLock(ctx context.Context) (unlock func(), err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, ErrLockHeld
	}

	return func() {
		// Отдельный контекст: unlock должен пройти и после отмены ctx.
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key)
		conn.Release()
	}, nil
}
