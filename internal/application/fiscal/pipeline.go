package fiscal

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/janssengh/ouvirtiba/internal/application/dto"
	"github.com/janssengh/ouvirtiba/internal/domain"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	domainnfce "github.com/janssengh/ouvirtiba/internal/domain/nfce"
	"github.com/janssengh/ouvirtiba/internal/domain/repository"
	infranfce "github.com/janssengh/ouvirtiba/internal/infrastructure/nfce"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// Etapas del pipeline, tal como se reportan al operador.
const (
	StageXML      = "xml"
	StageSign     = "sign"
	StageTransmit = "transmit"
	StageReceipt  = "receipt"
)

// PipelineConfig ambiente y CSC de emisión.
type PipelineConfig struct {
	Environment nfce.Environment
	CSCID       string
	CSCToken    string
	VerProc     string
	QRBaseURL   string // vacío = host de consulta del ambiente
}

// Pipeline orquesta las etapas de la NFC-e:
//
//	DRAFT → XML_GENERATED → SIGNED → TRANSMITTED → AUTHORIZED | REJECTED
//
// Cada etapa escribe el estado solo después de completarse; una falla deja el
// estado persistido en la última etapa exitosa. Excepción: si falla la refirma de un
// documento SIGNED, vuelve a DRAFT (su XML firmado ya no corresponde a los datos).
type Pipeline struct {
	docRepo    repository.FiscalDocumentRepository
	storeRepo  repository.StoreRepository
	clientRepo repository.ClientRepository
	builder    *infranfce.XMLBuilderService
	signer     nfce.Signer
	certs      CertificateSource
	gateway    infranfce.Gateway
	artifacts  ArtifactStore
	cfg        PipelineConfig
	log        zerolog.Logger
}

// NewPipeline construye el orquestador con todas sus dependencias.
func NewPipeline(
	docRepo repository.FiscalDocumentRepository,
	storeRepo repository.StoreRepository,
	clientRepo repository.ClientRepository,
	builder *infranfce.XMLBuilderService,
	signer nfce.Signer,
	certs CertificateSource,
	gateway infranfce.Gateway,
	artifacts ArtifactStore,
	cfg PipelineConfig,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		docRepo:    docRepo,
		storeRepo:  storeRepo,
		clientRepo: clientRepo,
		builder:    builder,
		signer:     signer,
		certs:      certs,
		gateway:    gateway,
		artifacts:  artifacts,
		cfg:        cfg,
		log:        logger,
	}
}

// StageResult documento después de la etapa. Pending: recibo aún en procesamiento.
type StageResult struct {
	Document  *entity.FiscalDocument
	Stage     string
	XML       []byte
	Pending   bool
	Message   string
	Simulated bool
}

// Response DTO de la etapa.
func (r *StageResult) Response() dto.StageResponse {
	return dto.StageResponse{
		Document:  ToDocumentResponse(r.Document, nil),
		Stage:     r.Stage,
		Pending:   r.Pending,
		Message:   r.Message,
		Simulated: r.Simulated,
	}
}

// Get documento de la tienda con sus ítems.
func (p *Pipeline) Get(ctx context.Context, sc entity.StoreContext, id string) (*dto.FiscalDocumentResponse, error) {
	doc, err := p.load(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	items, err := p.docRepo.GetItems(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("nfce: obtener ítems: %w", err)
	}
	resp := ToDocumentResponse(doc, items)
	return &resp, nil
}

// List documentos de la tienda.
func (p *Pipeline) List(ctx context.Context, sc entity.StoreContext, filter entity.FiscalDocumentFilter) ([]dto.FiscalDocumentResponse, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: estado %q", domain.ErrInvalidInput, filter.Status)
	}
	docs, err := p.docRepo.List(ctx, sc.StoreID, filter)
	if err != nil {
		return nil, fmt.Errorf("nfce: listar documentos: %w", err)
	}
	out := make([]dto.FiscalDocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, ToDocumentResponse(d, nil))
	}
	return out, nil
}

// BaseXML XML sin firma para descarga; no cambia el estado.
func (p *Pipeline) BaseXML(ctx context.Context, sc entity.StoreContext, id string) ([]byte, *entity.FiscalDocument, error) {
	doc, err := p.load(ctx, sc, id)
	if err != nil {
		return nil, nil, err
	}
	out, err := p.buildXML(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return out, doc, nil
}

// SignedXML XML firmado guardado.
func (p *Pipeline) SignedXML(ctx context.Context, sc entity.StoreContext, id string) ([]byte, *entity.FiscalDocument, error) {
	doc, err := p.load(ctx, sc, id)
	if err != nil {
		return nil, nil, err
	}
	if doc.XMLPath == "" {
		return nil, nil, fmt.Errorf("%w: el documento %s aún no fue firmado", domain.ErrConflict, doc.ID)
	}
	out, err := p.artifacts.Load(doc.XMLPath)
	if err != nil {
		return nil, nil, err
	}
	return out, doc, nil
}

// GenerateXML construye el XML. DRAFT pasa a XML_GENERATED; XML_GENERATED se reconstruye sin escribir.
func (p *Pipeline) GenerateXML(ctx context.Context, sc entity.StoreContext, id string) (*StageResult, error) {
	doc, err := p.load(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != entity.FiscalStatusXMLGenerated && !entity.CanTransition(doc.Status, entity.FiscalStatusXMLGenerated) {
		return nil, fmt.Errorf("%w: no se genera XML en estado %s", domain.ErrInvalidTransition, doc.Status)
	}

	out, err := p.buildXML(ctx, doc)
	if err != nil {
		p.stageLog(doc, StageXML).Err(err).Msg("falla al generar XML")
		return nil, err
	}

	if doc.Status != entity.FiscalStatusXMLGenerated {
		updated := *doc
		if err := updated.TransitionTo(entity.FiscalStatusXMLGenerated); err != nil {
			return nil, err
		}
		if err := p.docRepo.UpdateStatus(ctx, &updated, doc.Status); err != nil {
			return nil, fmt.Errorf("nfce: guardar estado: %w", err)
		}
		doc = &updated
	}
	p.stageLog(doc, StageXML).Msg("XML generado")
	return &StageResult{Document: doc, Stage: StageXML, XML: out}, nil
}

// Sign reconstruye el XML, lo firma con un certificado recién cargado y guarda el artefacto.
// Válido desde XML_GENERATED, SIGNED (refirma) y REJECTED (reenvío corregido, misma chave y número).
func (p *Pipeline) Sign(ctx context.Context, sc entity.StoreContext, id string) (*StageResult, error) {
	doc, err := p.load(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if !entity.CanTransition(doc.Status, entity.FiscalStatusSigned) {
		return nil, fmt.Errorf("%w: no se firma en estado %s", domain.ErrInvalidTransition, doc.Status)
	}

	signed, name, err := p.signDocument(ctx, doc)
	if err != nil {
		p.stageLog(doc, StageSign).Err(err).Msg("falla al firmar")
		if doc.Status == entity.FiscalStatusSigned {
			p.rollbackToDraft(ctx, doc)
		}
		return nil, err
	}

	updated := *doc
	if err := updated.TransitionTo(entity.FiscalStatusSigned); err != nil {
		return nil, err
	}
	updated.XMLPath = name
	updated.ReceiptNumber = ""
	updated.ProtocolNumber = ""
	if err := p.docRepo.UpdateStatus(ctx, &updated, doc.Status); err != nil {
		return nil, fmt.Errorf("nfce: guardar estado: %w", err)
	}
	p.stageLog(&updated, StageSign).Str("xml_path", name).Msg("NFC-e firmada")
	return &StageResult{Document: &updated, Stage: StageSign, XML: signed}, nil
}

func (p *Pipeline) signDocument(ctx context.Context, doc *entity.FiscalDocument) ([]byte, string, error) {
	unsigned, err := p.buildXML(ctx, doc)
	if err != nil {
		return nil, "", err
	}
	bundle, err := p.certs.Load()
	if err != nil {
		return nil, "", err
	}
	defer bundle.Release()

	signed, err := p.signer.Sign(unsigned, bundle)
	if err != nil {
		return nil, "", err
	}
	name, err := p.artifacts.Save(doc.AccessKey, signed)
	if err != nil {
		return nil, "", err
	}
	return signed, name, nil
}

func (p *Pipeline) rollbackToDraft(ctx context.Context, doc *entity.FiscalDocument) {
	draft := *doc
	if err := draft.TransitionTo(entity.FiscalStatusDraft); err != nil {
		return
	}
	draft.XMLPath = ""
	if err := p.docRepo.UpdateStatus(context.WithoutCancel(ctx), &draft, doc.Status); err != nil {
		p.stageLog(doc, StageSign).Err(err).Msg("no se pudo revertir a DRAFT")
		return
	}
	p.stageLog(&draft, StageSign).Msg("refirma fallida: documento vuelve a DRAFT")
}

// Transmit envía el XML firmado. El estado pasa a TRANSMITTED solo con cStat 103 ya interpretado.
func (p *Pipeline) Transmit(ctx context.Context, sc entity.StoreContext, id string) (*StageResult, error) {
	doc, err := p.load(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != entity.FiscalStatusSigned {
		return nil, fmt.Errorf("%w: solo se transmite un documento SIGNED (estado %s)", domain.ErrInvalidTransition, doc.Status)
	}
	signed, err := p.artifacts.Load(doc.XMLPath)
	if err != nil {
		return nil, err
	}

	bundle, err := p.certs.Load()
	if err != nil {
		return nil, err
	}
	res, err := p.gateway.Transmit(ctx, signed, bundle, p.cfg.Environment)
	bundle.Release()
	if err != nil {
		ev := p.stageLog(doc, StageTransmit).Err(err).Str("category", nfce.Category(err))
		if res != nil {
			ev = ev.Str("c_stat", res.Code).Str("endpoint", res.Endpoint)
		}
		ev.Msg("transmisión fallida")
		return nil, err
	}

	updated := *doc
	if err := updated.TransitionTo(entity.FiscalStatusTransmitted); err != nil {
		return nil, err
	}
	updated.ReceiptNumber = res.ReceiptNumber
	updated.StatusCode = res.Code
	updated.StatusMessage = res.Reason
	updated.Simulated = res.Simulated
	// La SEFAZ ya recibió el lote: el estado se guarda aunque el caller haya cancelado.
	if err := p.docRepo.UpdateStatus(context.WithoutCancel(ctx), &updated, doc.Status); err != nil {
		return nil, fmt.Errorf("nfce: guardar estado: %w", err)
	}
	p.stageLog(&updated, StageTransmit).
		Str("n_rec", res.ReceiptNumber).
		Str("c_stat", res.Code).
		Str("endpoint", res.Endpoint).
		Bool("simulated", res.Simulated).
		Msg("lote recibido por la SEFAZ")
	return &StageResult{Document: &updated, Stage: StageTransmit, Message: res.Reason, Simulated: res.Simulated}, nil
}

// QueryReceipt consulta el recibo de un documento TRANSMITTED.
// 100/150 => AUTHORIZED; otro cStat del protocolo => REJECTED con xMotivo; 105 => sin cambios, Pending.
func (p *Pipeline) QueryReceipt(ctx context.Context, sc entity.StoreContext, id string) (*StageResult, error) {
	doc, err := p.load(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != entity.FiscalStatusTransmitted {
		return nil, fmt.Errorf("%w: la consulta de recibo exige TRANSMITTED (estado %s)", domain.ErrInvalidTransition, doc.Status)
	}
	if doc.ReceiptNumber == "" {
		return nil, fmt.Errorf("%w: documento sin nRec", domain.ErrConflict)
	}

	bundle, err := p.certs.Load()
	if err != nil {
		return nil, err
	}
	res, err := p.gateway.QueryReceipt(ctx, doc.ReceiptNumber, bundle, p.cfg.Environment)
	bundle.Release()
	if err != nil {
		p.stageLog(doc, StageReceipt).Err(err).Str("n_rec", doc.ReceiptNumber).Str("category", nfce.Category(err)).Msg("consulta de recibo fallida")
		return nil, err
	}

	if !res.Final() {
		p.stageLog(doc, StageReceipt).Str("n_rec", doc.ReceiptNumber).Str("c_stat", res.LotCode).Msg("lote en procesamiento")
		return &StageResult{Document: doc, Stage: StageReceipt, Pending: true, Message: res.LotReason, Simulated: res.Simulated}, nil
	}

	target := entity.FiscalStatusAuthorized
	if res.Status == infranfce.ReceiptRejected {
		target = entity.FiscalStatusRejected
	}
	updated := *doc
	if err := updated.TransitionTo(target); err != nil {
		return nil, err
	}
	updated.ProtocolNumber = res.ProtocolNumber
	updated.StatusCode = res.Code
	updated.StatusMessage = res.Reason
	updated.Simulated = updated.Simulated || res.Simulated
	if err := p.docRepo.UpdateStatus(context.WithoutCancel(ctx), &updated, doc.Status); err != nil {
		return nil, fmt.Errorf("nfce: guardar estado: %w", err)
	}
	p.stageLog(&updated, StageReceipt).
		Str("c_stat", res.Code).
		Str("n_prot", res.ProtocolNumber).
		Str("x_motivo", res.Reason).
		Msg("veredicto de la SEFAZ")
	return &StageResult{Document: &updated, Stage: StageReceipt, Message: res.Reason, Simulated: res.Simulated}, nil
}

// Process avanza el documento en orden xml → firma → transmisión, desde su estado actual.
// Se detiene en la primera falla y devuelve el resultado de la última etapa exitosa junto al error.
func (p *Pipeline) Process(ctx context.Context, sc entity.StoreContext, id string) (*StageResult, error) {
	doc, err := p.load(ctx, sc, id)
	if err != nil {
		return nil, err
	}

	var last *StageResult
	for {
		var step func(context.Context, entity.StoreContext, string) (*StageResult, error)
		switch doc.Status {
		case entity.FiscalStatusDraft:
			step = p.GenerateXML
		case entity.FiscalStatusXMLGenerated, entity.FiscalStatusRejected:
			step = p.Sign
		case entity.FiscalStatusSigned:
			step = p.Transmit
		default:
			if last == nil {
				last = &StageResult{Document: doc, Stage: "", Message: "sin etapas pendientes"}
			}
			return last, nil
		}

		res, err := step(ctx, sc, id)
		if err != nil {
			return last, err
		}
		last = res
		doc = res.Document
		if doc.Status == entity.FiscalStatusTransmitted {
			return last, nil
		}
	}
}

func (p *Pipeline) load(ctx context.Context, sc entity.StoreContext, id string) (*entity.FiscalDocument, error) {
	if sc.StoreID <= 0 {
		return nil, domain.ErrStoreRequired
	}
	doc, err := p.docRepo.GetByID(ctx, sc.StoreID, id)
	if err != nil {
		return nil, fmt.Errorf("nfce: obtener documento: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("documento %s: %w", id, domain.ErrNotFound)
	}
	return doc, nil
}

func (p *Pipeline) buildXML(ctx context.Context, doc *entity.FiscalDocument) ([]byte, error) {
	store, err := p.storeRepo.GetByID(ctx, doc.StoreID)
	if err != nil {
		return nil, fmt.Errorf("nfce: obtener tienda: %w", err)
	}
	if store == nil {
		return nil, &nfce.DocumentBuildError{Reason: fmt.Sprintf("emitente %d no encontrado", doc.StoreID)}
	}
	client, err := p.clientRepo.GetByID(ctx, doc.StoreID, doc.ClientID)
	if err != nil {
		return nil, fmt.Errorf("nfce: obtener cliente: %w", err)
	}
	items, err := p.docRepo.GetItems(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("nfce: obtener ítems: %w", err)
	}

	qr, err := domainnfce.GenerateQRCodeURL(domainnfce.QRCodeParams{
		AccessKey:   doc.AccessKey,
		Environment: p.cfg.Environment,
		CSCID:       p.cfg.CSCID,
		CSCToken:    p.cfg.CSCToken,
		BaseURL:     p.cfg.QRBaseURL,
	})
	if err != nil {
		var vErr *nfce.ValidationError
		if errors.As(err, &vErr) {
			return nil, &nfce.DocumentBuildError{Reason: "QR Code", Err: err}
		}
		return nil, err
	}

	return p.builder.Build(&infranfce.DocumentBuildContext{
		Document:    doc,
		Store:       store,
		Client:      client,
		Items:       items,
		Environment: p.cfg.Environment,
		QRCodeURL:   qr,
		VerProc:     p.cfg.VerProc,
	})
}

func (p *Pipeline) stageLog(doc *entity.FiscalDocument, stage string) *zerolog.Event {
	return p.log.Info().
		Str("document_id", doc.ID).
		Str("access_key", doc.AccessKey).
		Str("status", string(doc.Status)).
		Str("stage", stage)
}
