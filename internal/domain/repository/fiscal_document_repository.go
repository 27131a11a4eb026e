package repository

import (
	"context"

	"github.com/janssengh/ouvirtiba/internal/domain/entity"
)

// FiscalDocumentRepository puerto de persistencia de la NFC-e y sus ítems.
type FiscalDocumentRepository interface {
	Create(ctx context.Context, doc *entity.FiscalDocument) error
	CreateItem(ctx context.Context, item *entity.FiscalDocumentItem) error
	// GetByID devuelve nil, nil si no existe o pertenece a otra tienda.
	GetByID(ctx context.Context, storeID int64, id string) (*entity.FiscalDocument, error)
	GetItems(ctx context.Context, documentID string) ([]*entity.FiscalDocumentItem, error)
	// UpdateStatus persiste estado y campos SEFAZ (nRec, nProt, cStat, xMotivo, xml_path, simulated)
	// solo si el estado guardado sigue siendo prev; si otro proceso lo cambió devuelve domain.ErrConflict.
	UpdateStatus(ctx context.Context, doc *entity.FiscalDocument, prev entity.FiscalStatus) error
	List(ctx context.Context, storeID int64, filter entity.FiscalDocumentFilter) ([]*entity.FiscalDocument, error)
}

// SequenceRepository numeración por tienda + serie.
type SequenceRepository interface {
	// NextNumber incrementa y devuelve el siguiente número; debe correr dentro de la tx de creación.
	NextNumber(ctx context.Context, storeID int64, series int) (int64, error)
}
