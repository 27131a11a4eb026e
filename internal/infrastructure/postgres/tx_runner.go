package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janssengh/ouvirtiba/internal/application/fiscal"
	"github.com/janssengh/ouvirtiba/internal/domain/repository"
)

var _ fiscal.FiscalTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunFiscal inicia una transacción con los repos de documento y numeración (CreateDocument).
// El upsert de invoice_sequence bloquea la fila (store_id, series) hasta el Commit,
// así dos creaciones concurrentes nunca reciben el mismo número.
func (r *TxRunner) RunFiscal(ctx context.Context, fn func(
	docRepo repository.FiscalDocumentRepository,
	seqRepo repository.SequenceRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	docRepo := NewFiscalDocumentRepository(tx)
	seqRepo := NewSequenceRepository(tx)

	if err := fn(docRepo, seqRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
