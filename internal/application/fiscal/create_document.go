package fiscal

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/janssengh/ouvirtiba/internal/application/dto"
	"github.com/janssengh/ouvirtiba/internal/domain"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	domainnfce "github.com/janssengh/ouvirtiba/internal/domain/nfce"
	"github.com/janssengh/ouvirtiba/internal/domain/repository"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// emissionNormal tpEmis 1: emisión normal (sin contingencia).
const emissionNormal = 1

// CreateDocumentUseCase crea la NFC-e en DRAFT: líneas, totales, número y chave.
type CreateDocumentUseCase struct {
	txRunner    FiscalTxRunner
	storeRepo   repository.StoreRepository
	clientRepo  repository.ClientRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	log         zerolog.Logger

	now         func() time.Time
	controlCode func() (int, error)
}

// NewCreateDocumentUseCase construye el caso de uso.
func NewCreateDocumentUseCase(
	txRunner FiscalTxRunner,
	storeRepo repository.StoreRepository,
	clientRepo repository.ClientRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	logger zerolog.Logger,
) *CreateDocumentUseCase {
	return &CreateDocumentUseCase{
		txRunner:    txRunner,
		storeRepo:   storeRepo,
		clientRepo:  clientRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		log:         logger,
		now:         time.Now,
		controlCode: randomControlCode,
	}
}

// WithClock reemplaza el reloj y el generador de cNF (tests).
func (uc *CreateDocumentUseCase) WithClock(now func() time.Time, controlCode func() (int, error)) *CreateDocumentUseCase {
	uc.now = now
	uc.controlCode = controlCode
	return uc
}

// Create arma las líneas (del pedido o de la solicitud), valida totales y, dentro de la
// transacción, reserva el número y persiste cabecera e ítems. La chave se calcula una sola vez aquí.
func (uc *CreateDocumentUseCase) Create(ctx context.Context, sc entity.StoreContext, in dto.CreateFiscalDocumentRequest) (*dto.FiscalDocumentResponse, error) {
	if sc.StoreID <= 0 {
		return nil, domain.ErrStoreRequired
	}
	if in.ClientID <= 0 {
		return nil, fmt.Errorf("%w: client_id obligatorio", domain.ErrInvalidInput)
	}
	payment := in.PaymentCode
	if payment == "" {
		payment = nfce.PaymentCash
	}
	if !nfce.ValidPaymentCodes[payment] {
		return nil, fmt.Errorf("%w: payment_code %q no soportado", domain.ErrInvalidInput, payment)
	}
	if in.Discount.IsNegative() {
		return nil, fmt.Errorf("%w: descuento negativo", domain.ErrInvalidInput)
	}

	store, err := uc.storeRepo.GetByID(ctx, sc.StoreID)
	if err != nil {
		return nil, fmt.Errorf("nfce: obtener tienda: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("tienda %d: %w", sc.StoreID, domain.ErrNotFound)
	}
	uf, err := nfce.UFCode(store.UF)
	if err != nil {
		return nil, err
	}

	client, err := uc.clientRepo.GetByID(ctx, sc.StoreID, in.ClientID)
	if err != nil {
		return nil, fmt.Errorf("nfce: obtener cliente: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("cliente %d: %w", in.ClientID, domain.ErrNotFound)
	}

	items, err := uc.resolveItems(ctx, sc, in)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: la NFC-e necesita al menos un ítem con precio", domain.ErrInvalidInput)
	}

	discount := in.Discount.Round(2)
	total := domainnfce.SumItems(items).Sub(discount)
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: el descuento supera el valor de los ítems", domain.ErrInvalidInput)
	}

	issued := uc.now()
	doc := &entity.FiscalDocument{
		ID:           uuid.New().String(),
		StoreID:      sc.StoreID,
		ClientID:     client.ID,
		OrderID:      in.OrderID,
		Series:       sc.Series,
		IssueDate:    issued,
		EmissionType: emissionNormal,
		PaymentCode:  payment,
		Status:       entity.FiscalStatusDraft,
		TotalValue:   total,
		Discount:     discount,
		CreatedAt:    issued,
		UpdatedAt:    issued,
	}
	for _, it := range items {
		it.DocumentID = doc.ID
	}
	if err := domainnfce.ValidateFiscalDocument(doc, items); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	err = uc.txRunner.RunFiscal(ctx, func(docRepo repository.FiscalDocumentRepository, seqRepo repository.SequenceRepository) error {
		number, err := seqRepo.NextNumber(ctx, sc.StoreID, sc.Series)
		if err != nil {
			return err
		}
		doc.Number = number

		cnf, err := uc.uniqueControlCode(number)
		if err != nil {
			return err
		}
		code := nfce.ControlCode(cnf, doc.EmissionType)
		key, err := nfce.GenerateAccessKey(nfce.AccessKeyParams{
			UF:        uf,
			YearMonth: nfce.YearMonth(issued.In(brasilia)),
			CNPJ:      store.CNPJ,
			Model:     nfce.ModelNFCe,
			Series:    strconv.Itoa(sc.Series),
			Number:    strconv.FormatInt(number, 10),
			Code:      code,
		})
		if err != nil {
			return err
		}
		doc.AccessKey = key
		doc.ControlCode = code[:8]

		if err := docRepo.Create(ctx, doc); err != nil {
			return err
		}
		for _, it := range items {
			if err := docRepo.CreateItem(ctx, it); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("nfce: crear documento: %w", err)
	}

	uc.log.Info().
		Str("document_id", doc.ID).
		Str("access_key", doc.AccessKey).
		Int64("number", doc.Number).
		Int("series", doc.Series).
		Str("total", doc.TotalValue.StringFixed(2)).
		Msg("NFC-e creada en DRAFT")

	resp := ToDocumentResponse(doc, items)
	return &resp, nil
}

// resolveItems líneas de la solicitud o, si no vienen, del pedido (precio > 0).
func (uc *CreateDocumentUseCase) resolveItems(ctx context.Context, sc entity.StoreContext, in dto.CreateFiscalDocumentRequest) ([]*entity.FiscalDocumentItem, error) {
	var items []*entity.FiscalDocumentItem

	if len(in.Items) == 0 && in.OrderID != nil {
		lines, err := uc.orderRepo.GetPricedItems(ctx, sc.StoreID, *in.OrderID)
		if err != nil {
			return nil, fmt.Errorf("nfce: obtener pedido: %w", err)
		}
		for _, l := range lines {
			items = append(items, newItem(len(items)+1, l.ProductID, l.ProductName, l.Quantity, l.Price, l.Discount,
				l.NCM, l.CFOP, l.CSOSN, l.SerialNumber))
		}
		return items, nil
	}

	for _, req := range in.Items {
		if req.ProductID <= 0 || !req.Quantity.IsPositive() || req.UnitPrice.IsNegative() || req.Discount.IsNegative() {
			return nil, fmt.Errorf("%w: ítem %d inválido", domain.ErrInvalidInput, len(items)+1)
		}
		product, err := uc.productRepo.GetByID(ctx, sc.StoreID, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("nfce: obtener producto: %w", err)
		}
		if product == nil {
			return nil, fmt.Errorf("producto %d: %w", req.ProductID, domain.ErrNotFound)
		}
		price := req.UnitPrice
		if price.IsZero() {
			price = product.Price
		}
		items = append(items, newItem(len(items)+1, product.ID, product.Name, req.Quantity, price, req.Discount,
			product.NCM, product.CFOP, product.CSOSN, req.SerialNumber))
	}
	return items, nil
}

func newItem(pos int, productID int64, name string, qty, price, discount decimal.Decimal, ncm, cfop, csosn, serial string) *entity.FiscalDocumentItem {
	return &entity.FiscalDocumentItem{
		ID:           uuid.New().String(),
		Position:     pos,
		ProductID:    productID,
		ProductName:  name,
		Quantity:     qty,
		UnitPrice:    price.Round(2),
		Discount:     discount.Round(2),
		TotalPrice:   domainnfce.ItemTotal(qty, price.Round(2), discount.Round(2)),
		NCM:          orDefault(ncm, nfce.DefaultNCM),
		CFOP:         orDefault(cfop, nfce.DefaultCFOP),
		CSOSN:        orDefault(csosn, nfce.DefaultCSOSN),
		SerialNumber: serial,
	}
}

// uniqueControlCode cNF aleatorio de 8 dígitos distinto del nNF (la SEFAZ rechaza cNF == nNF).
func (uc *CreateDocumentUseCase) uniqueControlCode(number int64) (int, error) {
	for i := 0; i < 5; i++ {
		cnf, err := uc.controlCode()
		if err != nil {
			return 0, err
		}
		if int64(cnf) != number {
			return cnf, nil
		}
	}
	return 0, errors.New("nfce: no se obtuvo un cNF distinto del número")
}

func randomControlCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return 0, fmt.Errorf("nfce: generar cNF: %w", err)
	}
	return int(n.Int64()), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
