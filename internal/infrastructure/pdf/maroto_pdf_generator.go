// Package pdf implementa el DANFE NFC-e (representación gráfica en bobina de 80 mm).
//
// Layout:
//
//	┌──────────────────────────────────────┐
//	│  EMITENTE: razão social, CNPJ, IE    │
//	│  DANFE NFC-e (leyenda)               │
//	│  ──────────────────────────────────  │
//	│  ÍTEMS: código | descrição | qtd ... │
//	│  ──────────────────────────────────  │
//	│  TOTALES: qtd itens, desconto, total │
//	│  FORMA DE PAGAMENTO                  │
//	│  ──────────────────────────────────  │
//	│  CONSULTA: urlChave + chave          │
//	│  CONSUMIDOR                          │
//	│  NÚMERO / SÉRIE / EMISSÃO / PROTOCOLO│
//	│  QR CODE                             │
//	└──────────────────────────────────────┘
package pdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/janssengh/ouvirtiba/internal/application/fiscal"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// Bobina térmica de 80 mm.
const (
	pageWidth  = 80.0
	pageHeight = 297.0
	margin     = 3.0
)

var brasilia = time.FixedZone("BRT", -3*60*60)

var colorGray = &props.Color{Red: 90, Green: 90, Blue: 90}

var paymentNames = map[string]string{
	nfce.PaymentCash:   "Dinheiro",
	nfce.PaymentCredit: "Cartão de Crédito",
	nfce.PaymentDebit:  "Cartão de Débito",
	nfce.PaymentPix:    "PIX",
	"05":               "Crédito Loja",
	"10":               "Vale Alimentação",
	"11":               "Vale Refeição",
	"15":               "Boleto Bancário",
	"99":               "Outros",
}

// MarotoDanfeGenerator implementa fiscal.DanfeGenerator con Maroto v2.
type MarotoDanfeGenerator struct{}

var _ fiscal.DanfeGenerator = (*MarotoDanfeGenerator)(nil)

// NewMarotoDanfeGenerator construye el generador.
func NewMarotoDanfeGenerator() *MarotoDanfeGenerator { return &MarotoDanfeGenerator{} }

// Generate genera el PDF y devuelve sus bytes.
func (g *MarotoDanfeGenerator) Generate(data fiscal.DanfeData) ([]byte, error) {
	if data.Document == nil || data.Store == nil {
		return nil, &nfce.DocumentBuildError{Reason: "DANFE sin documento o emitente"}
	}

	cfg := config.NewBuilder().
		WithDimensions(pageWidth, pageHeight).
		WithLeftMargin(margin).WithRightMargin(margin).
		WithTopMargin(margin).WithBottomMargin(margin).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 7}).
		WithTitle("DANFE NFC-e "+data.Document.AccessKey, true).
		WithAuthor(data.Store.Name, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(issuerRows(data.Store)...)
	m.AddRows(separator())
	m.AddRows(itemHeaderRow())
	m.AddRows(itemRows(data.Items, data.Environment)...)
	m.AddRows(separator())
	m.AddRows(totalRows(data.Document, len(data.Items))...)
	m.AddRows(separator())
	m.AddRows(consultRows(data)...)
	m.AddRows(consumerRows(data.Client)...)
	m.AddRows(identificationRows(data.Document)...)
	if data.QRCodeURL != "" {
		m.AddRows(row.New(48).Add(col.New(12).Add(code.NewQr(data.QRCodeURL, props.Rect{
			Percent: 90,
			Center:  true,
		}))))
	}
	if data.Environment == nfce.Homologation {
		m.AddRows(centered("EMITIDA EM AMBIENTE DE HOMOLOGAÇÃO - SEM VALOR FISCAL", 6, fontstyle.Bold, 7))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar DANFE: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func issuerRows(st *entity.Store) []core.Row {
	rows := []core.Row{
		centered(st.Name, 5, fontstyle.Bold, 8),
		centered(fmt.Sprintf("CNPJ: %s   IE: %s", formatCNPJ(st.CNPJ), nonEmpty(st.IE, "-")), 4, fontstyle.Normal, 6),
	}
	addr := strings.TrimSpace(fmt.Sprintf("%s, %s %s - %s, %s/%s",
		st.Address, nonEmpty(st.Number, "S/N"), st.Complement, st.Neighborhood, st.City, strings.ToUpper(st.UF)))
	rows = append(rows,
		centered(addr, 4, fontstyle.Normal, 6),
		centered("Documento Auxiliar da Nota Fiscal de Consumidor Eletrônica", 5, fontstyle.Bold, 6),
	)
	return rows
}

func itemHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{Style: fontstyle.Bold, Size: 6, Align: a}))
	}
	return row.New(4).Add(
		h("Código", 2, align.Left),
		h("Descrição", 4, align.Left),
		h("Qtde", 2, align.Right),
		h("Vl.Unit", 2, align.Right),
		h("Vl.Total", 2, align.Right),
	)
}

func itemRows(items []*entity.FiscalDocumentItem, env nfce.Environment) []core.Row {
	out := make([]core.Row, 0, len(items))
	for _, it := range items {
		name := it.ProductName
		if env == nfce.Homologation && it.Position == 1 {
			name = nfce.HomologationFirstItemName
		}
		cell := func(s string, size int, a align.Type) core.Col {
			return col.New(size).Add(text.New(s, props.Text{Size: 6, Align: a}))
		}
		out = append(out, row.New(7).Add(
			cell(strconv.FormatInt(it.ProductID, 10), 2, align.Left),
			cell(name, 4, align.Left),
			cell(it.Quantity.StringFixed(0)+" "+nfce.DefaultUnit, 2, align.Right),
			cell(formatMoney(it.UnitPrice), 2, align.Right),
			cell(formatMoney(it.TotalPrice), 2, align.Right),
		))
	}
	return out
}

func totalRows(doc *entity.FiscalDocument, count int) []core.Row {
	pair := func(label, value string, style fontstyle.Type) core.Row {
		return row.New(4).Add(
			col.New(8).Add(text.New(label, props.Text{Size: 7, Style: style})),
			col.New(4).Add(text.New(value, props.Text{Size: 7, Style: style, Align: align.Right})),
		)
	}
	gross := doc.TotalValue.Add(doc.Discount)
	rows := []core.Row{
		pair("Qtde. total de itens", strconv.Itoa(count), fontstyle.Normal),
		pair("Valor total R$", formatMoney(gross), fontstyle.Normal),
	}
	if doc.Discount.IsPositive() {
		rows = append(rows, pair("Desconto R$", formatMoney(doc.Discount), fontstyle.Normal))
	}
	rows = append(rows,
		pair("Valor a pagar R$", formatMoney(doc.TotalValue), fontstyle.Bold),
		pair("FORMA PAGAMENTO", "VALOR PAGO R$", fontstyle.Bold),
		pair(nonEmpty(paymentNames[doc.PaymentCode], "Outros"), formatMoney(doc.TotalValue), fontstyle.Normal),
	)
	return rows
}

func consultRows(data fiscal.DanfeData) []core.Row {
	return []core.Row{
		centered("Consulte pela Chave de Acesso em", 4, fontstyle.Bold, 6),
		centered(data.ConsultURL, 4, fontstyle.Normal, 6),
		centered(nfce.FormatAccessKey(data.Document.AccessKey), 5, fontstyle.Normal, 6),
	}
}

func consumerRows(c *entity.Client) []core.Row {
	if c == nil || strings.TrimSpace(c.Code) == "" {
		return []core.Row{centered(nfce.ConsumerUnnamed, 5, fontstyle.Bold, 6)}
	}
	label := "CPF"
	if len(digits(c.Code)) == 14 {
		label = "CNPJ"
	}
	return []core.Row{
		centered(fmt.Sprintf("CONSUMIDOR - %s %s", label, c.Code), 4, fontstyle.Bold, 6),
		centered(c.Name, 4, fontstyle.Normal, 6),
	}
}

func identificationRows(doc *entity.FiscalDocument) []core.Row {
	rows := []core.Row{
		centered(fmt.Sprintf("NFC-e nº %09d   Série %03d   %s", doc.Number, doc.Series,
			doc.IssueDate.In(brasilia).Format("02/01/2006 15:04:05")), 5, fontstyle.Bold, 6),
	}
	if doc.ProtocolNumber != "" {
		rows = append(rows, centered("Protocolo de autorização: "+doc.ProtocolNumber, 4, fontstyle.Normal, 6))
	} else {
		rows = append(rows, centered("Aguardando autorização da SEFAZ", 4, fontstyle.Normal, 6))
	}
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func centered(s string, height float64, style fontstyle.Type, size float64) core.Row {
	return row.New(height).Add(col.New(12).Add(text.New(s, props.Text{
		Style: style, Size: size, Align: align.Center, Color: colorGray,
	})))
}

func separator() core.Row {
	return line.NewRow(2, props.Line{Color: colorGray, Thickness: 0.2})
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// formatMoney formato brasileño: puntos de miles y coma decimal.
// Ej: 3000.2 → "3.000,20"
func formatMoney(v decimal.Decimal) string {
	s := v.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	out := string(buf) + "," + frac
	if neg {
		return "-" + out
	}
	return out
}

// formatCNPJ 56154376000105 → 56.154.376/0001-05.
func formatCNPJ(cnpj string) string {
	d := digits(cnpj)
	if len(d) != 14 {
		return cnpj
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}
