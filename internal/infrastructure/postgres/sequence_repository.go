package postgres

import (
	"context"
	"fmt"

	"github.com/janssengh/ouvirtiba/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo numeración de NFC-e por tienda + serie (tabla invoice_sequence).
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository construye el adaptador. Debe recibir la tx de creación del documento.
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// NextNumber incrementa last_number en una sola sentencia. El lock de fila del upsert
// serializa a los emisores concurrentes de la misma tienda y serie hasta el commit.
func (r *SequenceRepo) NextNumber(ctx context.Context, storeID int64, series int) (int64, error) {
	const query = `
		INSERT INTO invoice_sequence (store_id, series, last_number, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (store_id, series)
		DO UPDATE SET last_number = invoice_sequence.last_number + 1, updated_at = NOW()
		RETURNING last_number`
	var n int64
	if err := r.q.QueryRow(ctx, query, storeID, series).Scan(&n); err != nil {
		return 0, fmt.Errorf("next invoice number: %w", err)
	}
	return n, nil
}
