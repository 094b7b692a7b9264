package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrNoDSN — строка подключения не задана.
	ErrNoDSN = errors.New("database url is empty")

	// ErrLockHeld — advisory lock удерживается другим процессом.
	ErrLockHeld = errors.New("lock is held by another instance")
)
