package pdf_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janssengh/ouvirtiba/internal/application/fiscal"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	"github.com/janssengh/ouvirtiba/internal/infrastructure/pdf"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

const testKey = "42251056154376000105650010000001231234567814"

func danfeData() fiscal.DanfeData {
	return fiscal.DanfeData{
		Document: &entity.FiscalDocument{
			AccessKey:      testKey,
			Number:         123,
			Series:         1,
			IssueDate:      time.Date(2025, 10, 3, 14, 0, 0, 0, time.UTC),
			PaymentCode:    nfce.PaymentPix,
			TotalValue:     decimal.RequireFromString("2900.20"),
			Discount:       decimal.RequireFromString("100.00"),
			ProtocolNumber: "142250000012345",
		},
		Store: &entity.Store{
			Name: "JANSSEN APARELHOS AUDITIVOS LTDA", CNPJ: "56154376000105", IE: "262147718",
			Address: "Rua XV de Novembro", Number: "100", City: "Joinville", UF: "SC",
		},
		Client: &entity.Client{Code: "12345678909", Name: "Maria Souza"},
		Items: []*entity.FiscalDocumentItem{{
			Position: 1, ProductID: 7, ProductName: "Aparelho auditivo retroauricular",
			Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("3000.20"),
			TotalPrice: decimal.RequireFromString("3000.20"),
		}},
		Environment: nfce.Homologation,
		QRCodeURL:   nfce.QRCodeBaseURLHomologation + "?p=" + testKey + "|2|2|000001|ABC",
		ConsultURL:  nfce.URLChave,
	}
}

// ── Generate ──────────────────────────────────────────────────────────────────

func TestGenerate_ProducePDF(t *testing.T) {
	out, err := pdf.NewMarotoDanfeGenerator().Generate(danfeData())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")), "el resultado debe ser un PDF")
}

func TestGenerate_ConsumidorNoIdentificado(t *testing.T) {
	data := danfeData()
	data.Client = nil
	data.Document.ProtocolNumber = ""
	out, err := pdf.NewMarotoDanfeGenerator().Generate(data)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestGenerate_SinEmitente(t *testing.T) {
	data := danfeData()
	data.Store = nil
	_, err := pdf.NewMarotoDanfeGenerator().Generate(data)
	assert.ErrorIs(t, err, nfce.ErrDocumentBuild)
}
