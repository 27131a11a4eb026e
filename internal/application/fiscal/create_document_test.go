package fiscal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janssengh/ouvirtiba/internal/application/dto"
	"github.com/janssengh/ouvirtiba/internal/domain"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func hearingAidRequest() dto.CreateFiscalDocumentRequest {
	return dto.CreateFiscalDocumentRequest{
		ClientID:    10,
		PaymentCode: nfce.PaymentPix,
		Discount:    dec("100.00"),
		Items: []dto.FiscalDocumentItemData{
			{ProductID: 7, Quantity: dec("1"), SerialNumber: "SN-998877"},
			{ProductID: 8, Quantity: dec("6"), UnitPrice: dec("4.50")},
		},
	}
}

// ── Numeración y chave ────────────────────────────────────────────────────────

func TestCreate_NumeraSecuencialYCalculaChave(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.create.Create(ctx, storeCtx, hearingAidRequest())
	require.NoError(t, err)
	second, err := h.create.Create(ctx, storeCtx, hearingAidRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Number)
	assert.Equal(t, int64(2), second.Number)
	assert.Equal(t, string(entity.FiscalStatusDraft), first.Status)
	assert.NotEqual(t, first.AccessKey, second.AccessKey)

	require.NoError(t, nfce.ValidateAccessKey(first.AccessKey))
	parts, err := nfce.ParseAccessKey(first.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, "42", parts.UF)
	assert.Equal(t, "2510", parts.YearMonth)
	assert.Equal(t, "56154376000105", parts.CNPJ)
	assert.Equal(t, nfce.ModelNFCe, parts.Model)
	assert.Equal(t, "001", parts.Series)
	assert.Equal(t, "000000001", parts.Number)
}

func TestCreate_TotalesConDescuentoYClasificacionPorDefecto(t *testing.T) {
	h := newHarness(t, nil)

	doc, err := h.create.Create(context.Background(), storeCtx, hearingAidRequest())
	require.NoError(t, err)

	// 3000.20 + 6 × 4.50 − 100.00
	assert.True(t, dec("2927.20").Equal(doc.TotalValue), "total %s", doc.TotalValue)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "SN-998877", doc.Items[0].SerialNumber)
	assert.Equal(t, nfce.DefaultNCM, doc.Items[1].NCM, "producto sin NCM recibe el de aparelhos auditivos")
	assert.Equal(t, nfce.DefaultCFOP, doc.Items[1].CFOP)
	assert.Equal(t, nfce.DefaultCSOSN, doc.Items[1].CSOSN)
	assert.Equal(t, 2, doc.Items[1].Position)
}

func TestCreate_DesdePedido(t *testing.T) {
	h := newHarness(t, nil)
	orderID := int64(55)
	h.db.orders[orderID] = []*entity.OrderItem{
		{OrderID: orderID, ProductID: 7, ProductName: "Aparelho auditivo", Quantity: dec("2"), Price: dec("1500.00")},
	}

	doc, err := h.create.Create(context.Background(), storeCtx, dto.CreateFiscalDocumentRequest{ClientID: 10, OrderID: &orderID})
	require.NoError(t, err)
	assert.True(t, dec("3000.00").Equal(doc.TotalValue))
	assert.Equal(t, nfce.PaymentCash, doc.PaymentCode, "sin forma de pago se usa dinheiro")
	require.NotNil(t, doc.OrderID)
	assert.Equal(t, orderID, *doc.OrderID)
}

func TestCreate_CNFDistintoDelNumero(t *testing.T) {
	h := newHarness(t, nil)
	codes := []int{1, 87654321}
	h.create.WithClock(func() time.Time { return issuedAt }, func() (int, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	})

	doc, err := h.create.Create(context.Background(), storeCtx, hearingAidRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Number)
	assert.Equal(t, "87654321", nfce.CNF(doc.AccessKey), "cNF igual al nNF se descarta")
}

// ── Errores ───────────────────────────────────────────────────────────────────

func TestCreate_EntradasInvalidas(t *testing.T) {
	tests := []struct {
		name   string
		sc     entity.StoreContext
		mutate func(*dto.CreateFiscalDocumentRequest)
		want   error
	}{
		{"sin tienda", entity.StoreContext{}, func(*dto.CreateFiscalDocumentRequest) {}, domain.ErrStoreRequired},
		{"sin cliente", storeCtx, func(r *dto.CreateFiscalDocumentRequest) { r.ClientID = 0 }, domain.ErrInvalidInput},
		{"cliente de otra tienda", storeCtx, func(r *dto.CreateFiscalDocumentRequest) { r.ClientID = 99 }, domain.ErrNotFound},
		{"forma de pago desconocida", storeCtx, func(r *dto.CreateFiscalDocumentRequest) { r.PaymentCode = "42" }, domain.ErrInvalidInput},
		{"sin ítems", storeCtx, func(r *dto.CreateFiscalDocumentRequest) { r.Items = nil }, domain.ErrInvalidInput},
		{"cantidad cero", storeCtx, func(r *dto.CreateFiscalDocumentRequest) { r.Items[0].Quantity = decimal.Zero }, domain.ErrInvalidInput},
		{"producto inexistente", storeCtx, func(r *dto.CreateFiscalDocumentRequest) { r.Items[0].ProductID = 404 }, domain.ErrNotFound},
		{"descuento mayor que el total", storeCtx, func(r *dto.CreateFiscalDocumentRequest) { r.Discount = dec("5000") }, domain.ErrInvalidInput},
		{"descuento negativo", storeCtx, func(r *dto.CreateFiscalDocumentRequest) { r.Discount = dec("-1") }, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			req := hearingAidRequest()
			tt.mutate(&req)

			_, err := h.create.Create(context.Background(), tt.sc, req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, h.db.seq, "ningún número reservado")
		})
	}
}

func TestCreate_FallaEnTransaccionNoConsumeNumero(t *testing.T) {
	h := newHarness(t, nil)
	h.db.failNext = errors.New("conexión perdida")

	_, err := h.create.Create(context.Background(), storeCtx, hearingAidRequest())
	require.Error(t, err)
	assert.Empty(t, h.db.docs)

	doc, err := h.create.Create(context.Background(), storeCtx, hearingAidRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Number, "el número del intento fallido se reutiliza")
}
