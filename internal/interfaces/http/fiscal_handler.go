package http

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/janssengh/ouvirtiba/internal/application/dto"
	"github.com/janssengh/ouvirtiba/internal/application/fiscal"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	domainnfce "github.com/janssengh/ouvirtiba/internal/domain/nfce"
	infranfce "github.com/janssengh/ouvirtiba/internal/infrastructure/nfce"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// DocumentCreator alta de NFC-e en DRAFT.
type DocumentCreator interface {
	Create(ctx context.Context, sc entity.StoreContext, in dto.CreateFiscalDocumentRequest) (*dto.FiscalDocumentResponse, error)
}

// DocumentPipeline etapas del ciclo de vida de la NFC-e.
type DocumentPipeline interface {
	Get(ctx context.Context, sc entity.StoreContext, id string) (*dto.FiscalDocumentResponse, error)
	List(ctx context.Context, sc entity.StoreContext, filter entity.FiscalDocumentFilter) ([]dto.FiscalDocumentResponse, error)
	BaseXML(ctx context.Context, sc entity.StoreContext, id string) ([]byte, *entity.FiscalDocument, error)
	SignedXML(ctx context.Context, sc entity.StoreContext, id string) ([]byte, *entity.FiscalDocument, error)
	GenerateXML(ctx context.Context, sc entity.StoreContext, id string) (*fiscal.StageResult, error)
	Sign(ctx context.Context, sc entity.StoreContext, id string) (*fiscal.StageResult, error)
	Transmit(ctx context.Context, sc entity.StoreContext, id string) (*fiscal.StageResult, error)
	QueryReceipt(ctx context.Context, sc entity.StoreContext, id string) (*fiscal.StageResult, error)
	Process(ctx context.Context, sc entity.StoreContext, id string) (*fiscal.StageResult, error)
}

// DanfeRenderer PDF del DANFE NFC-e.
type DanfeRenderer interface {
	Render(ctx context.Context, sc entity.StoreContext, id string) ([]byte, string, error)
}

// FiscalHandler endpoints de NFC-e.
type FiscalHandler struct {
	create   DocumentCreator
	pipeline DocumentPipeline
	danfe    DanfeRenderer
}

// NewFiscalHandler construye el handler.
func NewFiscalHandler(create DocumentCreator, pipeline DocumentPipeline, danfe DanfeRenderer) *FiscalHandler {
	return &FiscalHandler{create: create, pipeline: pipeline, danfe: danfe}
}

// Create registra un documento en DRAFT con número y chave reservados.
// POST /api/nfce/documents
func (h *FiscalHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateFiscalDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	doc, err := h.create.Create(c.UserContext(), GetStoreContext(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// List documentos de la tienda.
// GET /api/nfce/documents?status=&limit=&offset=
func (h *FiscalHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "limit/offset inválidos"})
	}
	page.DefaultPage()
	filter := entity.FiscalDocumentFilter{
		Status: entity.FiscalStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	docs, err := h.pipeline.List(c.UserContext(), GetStoreContext(c), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(docs)
}

// GetByID detalle con ítems.
// GET /api/nfce/documents/:id
func (h *FiscalHandler) GetByID(c *fiber.Ctx) error {
	doc, err := h.pipeline.Get(c.UserContext(), GetStoreContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(doc)
}

// GenerateXML etapa xml.
// POST /api/nfce/documents/:id/xml
func (h *FiscalHandler) GenerateXML(c *fiber.Ctx) error {
	return h.stage(c, h.pipeline.GenerateXML)
}

// DownloadXML XML sin firma.
// GET /api/nfce/documents/:id/xml
func (h *FiscalHandler) DownloadXML(c *fiber.Ctx) error {
	out, doc, err := h.pipeline.BaseXML(c.UserContext(), GetStoreContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return sendXML(c, out, fmt.Sprintf("NFCe_%s.xml", doc.AccessKey))
}

// Sign etapa sign.
// POST /api/nfce/documents/:id/sign
func (h *FiscalHandler) Sign(c *fiber.Ctx) error {
	return h.stage(c, h.pipeline.Sign)
}

// DownloadSigned XML firmado guardado.
// GET /api/nfce/documents/:id/signed
func (h *FiscalHandler) DownloadSigned(c *fiber.Ctx) error {
	out, doc, err := h.pipeline.SignedXML(c.UserContext(), GetStoreContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return sendXML(c, out, infranfce.SignedFileName(doc.AccessKey))
}

// Transmit envío del lote a la SEFAZ.
// POST /api/nfce/documents/:id/transmit
func (h *FiscalHandler) Transmit(c *fiber.Ctx) error {
	return h.stage(c, h.pipeline.Transmit)
}

// QueryReceipt consulta del recibo. 202 mientras la SEFAZ procesa.
// POST /api/nfce/documents/:id/receipt
func (h *FiscalHandler) QueryReceipt(c *fiber.Ctx) error {
	return h.stage(c, h.pipeline.QueryReceipt)
}

// Process ejecuta las etapas pendientes hasta TRANSMITTED.
// POST /api/nfce/documents/:id/process
func (h *FiscalHandler) Process(c *fiber.Ctx) error {
	return h.stage(c, h.pipeline.Process)
}

// Danfe PDF para impresora térmica.
// GET /api/nfce/documents/:id/danfe
func (h *FiscalHandler) Danfe(c *fiber.Ctx) error {
	pdf, filename, err := h.danfe.Render(c.UserContext(), GetStoreContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s"`, filename))
	return c.Send(pdf)
}

// ValidateQRCode revisa una URL de QR Code NFC-e.
// GET /api/nfce/qrcode/validate?url=
func (h *FiscalHandler) ValidateQRCode(c *fiber.Ctx) error {
	raw := c.Query("url")
	if raw == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "url requerida"})
	}
	res := domainnfce.ValidateQRCodeURL(raw, nfce.QRCodeVersion)
	return c.JSON(dto.QRCodeValidationResponse{Valid: res.Valid, Check: res.Check, Message: res.Message, Fields: res.Fields})
}

// ParseAccessKey descompone una chave de 44 dígitos.
// GET /api/nfce/access-keys/:key
func (h *FiscalHandler) ParseAccessKey(c *fiber.Ctx) error {
	key := c.Params("key")
	p, err := nfce.ParseAccessKey(key)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.AccessKeyResponse{
		AccessKey: key,
		Formatted: nfce.FormatAccessKey(key),
		UF:        nfce.UFAbbreviation(p.UF),
		YearMonth: p.YearMonth,
		CNPJ:      p.CNPJ,
		Model:     p.Model,
		Series:    p.Series,
		Number:    p.Number,
		Code:      p.Code,
	})
}

type stageFunc func(ctx context.Context, sc entity.StoreContext, id string) (*fiscal.StageResult, error)

func (h *FiscalHandler) stage(c *fiber.Ctx, run stageFunc) error {
	res, err := run(c.UserContext(), GetStoreContext(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	status := fiber.StatusOK
	if res.Pending {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(res.Response())
}

func sendXML(c *fiber.Ctx, out []byte, filename string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(out)
}
