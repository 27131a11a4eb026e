package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/janssengh/ouvirtiba/internal/domain"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	"github.com/janssengh/ouvirtiba/internal/domain/repository"
)

var _ repository.FiscalDocumentRepository = (*FiscalDocumentRepo)(nil)

// FiscalDocumentRepo implementación de FiscalDocumentRepository (usable con pool o tx).
type FiscalDocumentRepo struct {
	q Querier
}

// NewFiscalDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFiscalDocumentRepository(q Querier) *FiscalDocumentRepo {
	return &FiscalDocumentRepo{q: q}
}

const fiscalDocumentColumns = `
	id, store_id, client_id, order_id, series, number, issue_date,
	access_key, control_code, emission_type, payment_code, status,
	nrec, nprot, status_code, status_message, xml_path,
	total_value, discount, simulated, created_at, updated_at`

// Create persiste la cabecera. (store_id, series, number) repetido => domain.ErrDuplicate.
func (r *FiscalDocumentRepo) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	query := `INSERT INTO fiscal_document (` + fiscalDocumentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.StoreID, doc.ClientID, doc.OrderID, doc.Series, doc.Number, doc.IssueDate,
		doc.AccessKey, doc.ControlCode, doc.EmissionType, doc.PaymentCode, string(doc.Status),
		nullIfEmpty(doc.ReceiptNumber), nullIfEmpty(doc.ProtocolNumber), nullIfEmpty(doc.StatusCode),
		nullIfEmpty(doc.StatusMessage), nullIfEmpty(doc.XMLPath),
		doc.TotalValue, doc.Discount, doc.Simulated, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("fiscal document %d/%d: %w", doc.Series, doc.Number, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert fiscal document: %w", err)
	}
	return nil
}

// CreateItem persiste una línea.
func (r *FiscalDocumentRepo) CreateItem(ctx context.Context, item *entity.FiscalDocumentItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	query := `
		INSERT INTO fiscal_document_item (id, document_id, position, product_id, product_name, quantity,
		                                  unit_price, total_price, discount, ncm, cfop, csosn, serialnumber)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.q.Exec(ctx, query,
		item.ID, item.DocumentID, item.Position, item.ProductID, item.ProductName, item.Quantity,
		item.UnitPrice, item.TotalPrice, item.Discount, item.NCM, item.CFOP, item.CSOSN,
		nullIfEmpty(item.SerialNumber),
	)
	if err != nil {
		return fmt.Errorf("insert fiscal document item: %w", err)
	}
	return nil
}

// GetByID documento de la tienda; nil, nil si no existe.
func (r *FiscalDocumentRepo) GetByID(ctx context.Context, storeID int64, id string) (*entity.FiscalDocument, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	query := `SELECT ` + fiscalDocumentColumns + ` FROM fiscal_document WHERE id = $1 AND store_id = $2`
	doc, err := scanFiscalDocument(r.q.QueryRow(ctx, query, id, storeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fiscal document: %w", err)
	}
	return doc, nil
}

// GetItems líneas ordenadas por nItem.
func (r *FiscalDocumentRepo) GetItems(ctx context.Context, documentID string) ([]*entity.FiscalDocumentItem, error) {
	query := `
		SELECT id, document_id, position, product_id, product_name, quantity, unit_price,
		       total_price, discount, ncm, cfop, csosn, serialnumber
		FROM fiscal_document_item WHERE document_id = $1 ORDER BY position`
	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list fiscal document items: %w", err)
	}
	defer rows.Close()

	var list []*entity.FiscalDocumentItem
	for rows.Next() {
		var it entity.FiscalDocumentItem
		var serial *string
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.Position, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.Discount, &it.NCM, &it.CFOP, &it.CSOSN, &serial); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.SerialNumber = derefStr(serial)
		list = append(list, &it)
	}
	return list, rows.Err()
}

// UpdateStatus persiste estado y campos SEFAZ con compare-and-set sobre el estado leído (prev).
// La fila debe pertenecer a la tienda del documento.
func (r *FiscalDocumentRepo) UpdateStatus(ctx context.Context, doc *entity.FiscalDocument, prev entity.FiscalStatus) error {
	doc.UpdatedAt = time.Now()
	query := `
		UPDATE fiscal_document
		SET status         = $3,
		    nrec           = $4,
		    nprot          = $5,
		    status_code    = $6,
		    status_message = $7,
		    xml_path       = $8,
		    simulated      = $9,
		    updated_at     = $10
		WHERE id = $1 AND store_id = $2 AND status = $11`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, doc.StoreID, string(doc.Status),
		nullIfEmpty(doc.ReceiptNumber), nullIfEmpty(doc.ProtocolNumber),
		nullIfEmpty(doc.StatusCode), nullIfEmpty(doc.StatusMessage), nullIfEmpty(doc.XMLPath),
		doc.Simulated, doc.UpdatedAt, string(prev),
	)
	if err != nil {
		return fmt.Errorf("update fiscal document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fiscal document %s ya no está en %s: %w", doc.ID, prev, domain.ErrConflict)
	}
	return nil
}

// List documentos de la tienda, más recientes primero.
func (r *FiscalDocumentRepo) List(ctx context.Context, storeID int64, filter entity.FiscalDocumentFilter) ([]*entity.FiscalDocument, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + fiscalDocumentColumns + `
		FROM fiscal_document
		WHERE store_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, number DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.q.Query(ctx, query, storeID, string(filter.Status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list fiscal documents: %w", err)
	}
	defer rows.Close()

	var list []*entity.FiscalDocument
	for rows.Next() {
		doc, err := scanFiscalDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fiscal document: %w", err)
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

func scanFiscalDocument(row pgx.Row) (*entity.FiscalDocument, error) {
	var d entity.FiscalDocument
	var status string
	var nrec, nprot, code, msg, xmlPath *string
	err := row.Scan(
		&d.ID, &d.StoreID, &d.ClientID, &d.OrderID, &d.Series, &d.Number, &d.IssueDate,
		&d.AccessKey, &d.ControlCode, &d.EmissionType, &d.PaymentCode, &status,
		&nrec, &nprot, &code, &msg, &xmlPath,
		&d.TotalValue, &d.Discount, &d.Simulated, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = entity.FiscalStatus(status)
	d.ReceiptNumber = derefStr(nrec)
	d.ProtocolNumber = derefStr(nprot)
	d.StatusCode = derefStr(code)
	d.StatusMessage = derefStr(msg)
	d.XMLPath = derefStr(xmlPath)
	return &d, nil
}
