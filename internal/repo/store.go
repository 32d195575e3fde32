package repo

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fieldflow/internal/gateway"
)

// Store объединяет репозитории в gateway.Store.
type Store struct {
	*WorkflowRepo
	*ExecutionRepo
	*MessageRepo
}

var _ gateway.Store = (*Store)(nil)

// NewStore создаёт Store поверх пула.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		WorkflowRepo:  NewWorkflowRepo(pool),
		ExecutionRepo: NewExecutionRepo(pool),
		MessageRepo:   NewMessageRepo(pool),
	}
}
