package fiscal

import (
	"context"
	"fmt"

	"github.com/janssengh/ouvirtiba/internal/domain"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	domainnfce "github.com/janssengh/ouvirtiba/internal/domain/nfce"
	"github.com/janssengh/ouvirtiba/internal/domain/repository"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// DanfeData datos de la representación gráfica.
type DanfeData struct {
	Document    *entity.FiscalDocument
	Store       *entity.Store
	Client      *entity.Client // nil = consumidor no identificado
	Items       []*entity.FiscalDocumentItem
	Environment nfce.Environment
	QRCodeURL   string
	ConsultURL  string // urlChave
}

// DanfeUseCase genera el DANFE NFC-e de un documento ya transmitido o autorizado.
type DanfeUseCase struct {
	docRepo    repository.FiscalDocumentRepository
	storeRepo  repository.StoreRepository
	clientRepo repository.ClientRepository
	generator  DanfeGenerator
	cfg        PipelineConfig
}

// NewDanfeUseCase construye el caso de uso.
func NewDanfeUseCase(
	docRepo repository.FiscalDocumentRepository,
	storeRepo repository.StoreRepository,
	clientRepo repository.ClientRepository,
	generator DanfeGenerator,
	cfg PipelineConfig,
) *DanfeUseCase {
	return &DanfeUseCase{
		docRepo:    docRepo,
		storeRepo:  storeRepo,
		clientRepo: clientRepo,
		generator:  generator,
		cfg:        cfg,
	}
}

// Render devuelve el PDF y el nombre de archivo sugerido.
//
// Retorna:
//   - domain.ErrNotFound   si el documento no existe en la tienda.
//   - domain.ErrConflict   si el documento aún no fue transmitido.
func (uc *DanfeUseCase) Render(ctx context.Context, sc entity.StoreContext, id string) (pdf []byte, filename string, err error) {
	if sc.StoreID <= 0 {
		return nil, "", domain.ErrStoreRequired
	}

	// ── 1. Documento ──────────────────────────────────────────────────────────
	doc, err := uc.docRepo.GetByID(ctx, sc.StoreID, id)
	if err != nil {
		return nil, "", fmt.Errorf("danfe: obtener documento: %w", err)
	}
	if doc == nil {
		return nil, "", fmt.Errorf("documento %s: %w", id, domain.ErrNotFound)
	}
	if doc.Status != entity.FiscalStatusTransmitted && doc.Status != entity.FiscalStatusAuthorized {
		return nil, "", fmt.Errorf("%w: el DANFE exige un documento transmitido o autorizado (estado %s)",
			domain.ErrConflict, doc.Status)
	}

	// ── 2. Emitente, destinatario e ítems ─────────────────────────────────────
	store, err := uc.storeRepo.GetByID(ctx, doc.StoreID)
	if err != nil {
		return nil, "", fmt.Errorf("danfe: obtener tienda: %w", err)
	}
	if store == nil {
		return nil, "", fmt.Errorf("tienda %d: %w", doc.StoreID, domain.ErrNotFound)
	}
	client, err := uc.clientRepo.GetByID(ctx, doc.StoreID, doc.ClientID)
	if err != nil {
		return nil, "", fmt.Errorf("danfe: obtener cliente: %w", err)
	}
	items, err := uc.docRepo.GetItems(ctx, doc.ID)
	if err != nil {
		return nil, "", fmt.Errorf("danfe: obtener ítems: %w", err)
	}

	// ── 3. QR Code ────────────────────────────────────────────────────────────
	qr, err := domainnfce.GenerateQRCodeURL(domainnfce.QRCodeParams{
		AccessKey:   doc.AccessKey,
		Environment: uc.cfg.Environment,
		CSCID:       uc.cfg.CSCID,
		CSCToken:    uc.cfg.CSCToken,
		BaseURL:     uc.cfg.QRBaseURL,
	})
	if err != nil {
		return nil, "", err
	}

	// ── 4. PDF ────────────────────────────────────────────────────────────────
	pdf, err = uc.generator.Generate(DanfeData{
		Document:    doc,
		Store:       store,
		Client:      client,
		Items:       items,
		Environment: uc.cfg.Environment,
		QRCodeURL:   qr,
		ConsultURL:  nfce.URLChave,
	})
	if err != nil {
		return nil, "", fmt.Errorf("danfe: generación fallida: %w", err)
	}
	return pdf, fmt.Sprintf("DANFE_NFCe_%s.pdf", doc.AccessKey), nil
}
