package repo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

// deref возвращает значение строки или "".
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// marshalJSON сериализует значение для JSONB-колонки.
func marshalJSON(field string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", field, err)
	}
	return b, nil
}

// unmarshalJSON десериализует JSONB-колонку, пустое значение пропускается.
func unmarshalJSON(field string, data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", field, err)
	}
	return nil
}

// isUniqueViolation проверяет код ошибки PostgreSQL 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// limitOrDefault возвращает limit или 50.
func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
