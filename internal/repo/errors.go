package repo

import "github.com/shaiso/Fieldflow/internal/gateway"

// Общие ошибки репозиториев — те же значения, что в gateway,
// чтобы errors.Is работал независимо от реализации хранилища.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = gateway.ErrNotFound

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = gateway.ErrAlreadyExists

	// ErrInvalidState — операция невозможна в текущем состоянии.
	ErrInvalidState = gateway.ErrInvalidState
)
