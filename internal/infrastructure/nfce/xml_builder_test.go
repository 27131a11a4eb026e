package nfce_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	infranfce "github.com/janssengh/ouvirtiba/internal/infrastructure/nfce"
	"github.com/janssengh/ouvirtiba/internal/infrastructure/nfce/nfcetest"
	"github.com/janssengh/ouvirtiba/internal/infrastructure/nfce/signer"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// ──────────────────────────────────────────────────────────────────────────────
// buildTestContext arma una NFC-e de dos ítems con descuento de cabecera:
// 2 × 1500.10 + 3 × 0.10 = 3000.50, menos 10.00 = 2990.50.
// ──────────────────────────────────────────────────────────────────────────────
func buildTestContext() *infranfce.DocumentBuildContext {
	return &infranfce.DocumentBuildContext{
		Document: &entity.FiscalDocument{
			ID:          "doc-1",
			StoreID:     1,
			Series:      1,
			Number:      123,
			IssueDate:   time.Date(2025, 10, 15, 13, 30, 0, 0, time.UTC),
			AccessKey:   nfcetest.TestAccessKey,
			PaymentCode: nfce.PaymentPix,
			Status:      entity.FiscalStatusDraft,
			TotalValue:  decimal.RequireFromString("2990.50"),
			Discount:    decimal.NewFromInt(10),
		},
		Store: &entity.Store{
			ID: 1, Name: "JANSSEN APARELHOS AUDITIVOS LTDA", TradeName: "Ouvirtiba", CNPJ: "56.154.376/0001-05",
			IE: "255000376", Address: "Rua Jerônimo Coelho", Number: "78", Neighborhood: "Centro",
			City: "Joinville", CityCode: "4209102", UF: "SC", ZipCode: "89201-050",
		},
		Client: &entity.Client{
			ID: 7, Code: "123.456.789-09", Name: "Maria da Silva", Address: "Rua XV de Novembro", Number: "100",
			Neighborhood: "América", City: "Joinville", UF: "SC", ZipCode: "89201-600",
		},
		Items: []*entity.FiscalDocumentItem{
			{Position: 1, ProductID: 10, ProductName: "Aparelho auditivo retroauricular", Quantity: decimal.NewFromInt(2),
				UnitPrice: decimal.RequireFromString("1500.10"), TotalPrice: decimal.RequireFromString("3000.20"),
				NCM: nfce.DefaultNCM, CFOP: nfce.DefaultCFOP, CSOSN: nfce.DefaultCSOSN, SerialNumber: "SN-001"},
			{Position: 2, ProductID: 11, ProductName: "Pilha 312", Quantity: decimal.NewFromInt(3),
				UnitPrice: decimal.RequireFromString("0.10"), TotalPrice: decimal.RequireFromString("0.30"),
				NCM: "85065010", CFOP: nfce.DefaultCFOP, CSOSN: nfce.DefaultCSOSN},
		},
		Environment: nfce.Homologation,
		QRCodeURL:   nfce.QRCodeBaseURLHomologation + "?p=" + nfcetest.TestAccessKey + "|2|2|000001|" + strings.Repeat("A", 40),
	}
}

func parse(t *testing.T, data []byte) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))
	return doc
}

func textAt(t *testing.T, doc *etree.Document, path string) string {
	t.Helper()
	el := doc.FindElement(path)
	require.NotNil(t, el, "no existe %s", path)
	return el.Text()
}

// ── Estructura ───────────────────────────────────────────────────────────────

func TestBuild_Identificacion(t *testing.T) {
	out, err := infranfce.NewXMLBuilderService().Build(buildTestContext())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), `<?xml version="1.0" encoding="utf-8"?>`))

	doc := parse(t, out)
	root := doc.Root()
	assert.Equal(t, "NFe", root.Tag)
	assert.Equal(t, nfce.Namespace, root.SelectAttrValue("xmlns", ""))

	inf := root.SelectElement("infNFe")
	require.NotNil(t, inf)
	assert.Equal(t, "NFe"+nfcetest.TestAccessKey, inf.SelectAttrValue("Id", ""))
	assert.Equal(t, "4.00", inf.SelectAttrValue("versao", ""))

	assert.Equal(t, "42", textAt(t, doc, "//ide/cUF"))
	assert.Equal(t, "12345678", textAt(t, doc, "//ide/cNF"))
	assert.Equal(t, "65", textAt(t, doc, "//ide/mod"))
	assert.Equal(t, "1", textAt(t, doc, "//ide/serie"))
	assert.Equal(t, "123", textAt(t, doc, "//ide/nNF"))
	assert.Equal(t, "2025-10-15T10:30:00-03:00", textAt(t, doc, "//ide/dhEmi"))
	assert.Equal(t, "1", textAt(t, doc, "//ide/tpEmis"))
	assert.Equal(t, "4", textAt(t, doc, "//ide/cDV"))
	assert.Equal(t, "2", textAt(t, doc, "//ide/tpAmb"))
	assert.Equal(t, "Ouvirtiba-Emissor-1.0", textAt(t, doc, "//ide/verProc"))

	assert.Equal(t, "56154376000105", textAt(t, doc, "//emit/CNPJ"))
	assert.Equal(t, "89201050", textAt(t, doc, "//emit/enderEmit/CEP"))
	assert.Equal(t, "1", textAt(t, doc, "//emit/CRT"))
}

func TestBuild_OrdenDeSecciones(t *testing.T) {
	out, err := infranfce.NewXMLBuilderService().Build(buildTestContext())
	require.NoError(t, err)
	doc := parse(t, out)

	var sections []string
	for _, el := range doc.Root().SelectElement("infNFe").ChildElements() {
		sections = append(sections, el.Tag)
	}
	assert.Equal(t, []string{"ide", "emit", "dest", "det", "det", "total", "transp", "pag", "infAdic"}, sections)

	var dest []string
	for _, el := range doc.FindElement("//dest").ChildElements() {
		dest = append(dest, el.Tag)
	}
	assert.Equal(t, []string{"CPF", "xNome", "enderDest", "indIEDest"}, dest, "enderDest va antes de indIEDest")

	var rootChildren []string
	for _, el := range doc.Root().ChildElements() {
		rootChildren = append(rootChildren, el.Tag)
	}
	assert.Equal(t, []string{"infNFe", "infNFeSupl"}, rootChildren)
	assert.Contains(t, string(out), "<qrCode><![CDATA["+nfce.QRCodeBaseURLHomologation)
}

func TestBuild_TotalesDecimales(t *testing.T) {
	out, err := infranfce.NewXMLBuilderService().Build(buildTestContext())
	require.NoError(t, err)
	doc := parse(t, out)

	assert.Equal(t, "3000.50", textAt(t, doc, "//total/ICMSTot/vProd"))
	assert.Equal(t, "10.00", textAt(t, doc, "//total/ICMSTot/vDesc"))
	assert.Equal(t, "2990.50", textAt(t, doc, "//total/ICMSTot/vNF"))
	assert.Equal(t, "0.00", textAt(t, doc, "//total/ICMSTot/vBC"))
	assert.Equal(t, "2990.50", textAt(t, doc, "//pag/detPag/vPag"))
	assert.Equal(t, nfce.PaymentPix, textAt(t, doc, "//pag/detPag/tPag"))

	dets := doc.FindElements("//det")
	require.Len(t, dets, 2)
	assert.Equal(t, "1", dets[0].SelectAttrValue("nItem", ""))
	assert.Equal(t, "3000.20", dets[0].FindElement("prod/vProd").Text())
	assert.Equal(t, "10.00", dets[0].FindElement("prod/vDesc").Text())
	assert.Equal(t, "0.30", dets[1].FindElement("prod/vProd").Text())
	assert.Equal(t, "0.10", dets[1].FindElement("prod/vUnCom").Text())
	assert.Nil(t, dets[1].FindElement("prod/vDesc"))
	assert.Equal(t, "102", dets[1].FindElement("imposto/ICMS/ICMSSN102/CSOSN").Text())
}

func TestBuild_TextosDeHomologacion(t *testing.T) {
	out, err := infranfce.NewXMLBuilderService().Build(buildTestContext())
	require.NoError(t, err)
	doc := parse(t, out)

	assert.Equal(t, nfce.HomologationRecipientName, textAt(t, doc, "//dest/xNome"))
	assert.Equal(t, nfce.HomologationFirstItemName, doc.FindElements("//det/prod/xProd")[0].Text())
	assert.Equal(t, "Pilha 312", doc.FindElements("//det/prod/xProd")[1].Text())
}

func TestBuild_ProduccionConsumidorNoIdentificado(t *testing.T) {
	ctx := buildTestContext()
	ctx.Environment = nfce.Production
	ctx.Client = &entity.Client{Name: "Sem CPF"}

	out, err := infranfce.NewXMLBuilderService().Build(ctx)
	require.NoError(t, err)
	doc := parse(t, out)

	assert.Nil(t, doc.FindElement("//dest"), "sin CPF/CNPJ no se emite <dest>")
	assert.Equal(t, "1", textAt(t, doc, "//ide/tpAmb"))
	assert.Equal(t, "Aparelho auditivo retroauricular", doc.FindElements("//det/prod/xProd")[0].Text())
}

// ── Idempotencia ─────────────────────────────────────────────────────────────

func TestBuild_Idempotente(t *testing.T) {
	svc := infranfce.NewXMLBuilderService()
	first, err := svc.Build(buildTestContext())
	require.NoError(t, err)
	second, err := svc.Build(buildTestContext())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	same, err := infranfce.SameDocument(first, second)
	require.NoError(t, err)
	assert.True(t, same)
}

func TestSameDocument_IgnoraFormaYDetectaCambios(t *testing.T) {
	a := []byte(`<?xml version="1.0" encoding="UTF-8"?><NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe versao="4.00" Id="NFe1"><vNF>10.00</vNF></infNFe><infNFeSupl><qrCode><![CDATA[https://x?p=1|2]]></qrCode></infNFeSupl></NFe>`)
	b := []byte(`<NFe xmlns='http://www.portalfiscal.inf.br/nfe'><infNFe Id='NFe1' versao='4.00'><vNF>10.00</vNF></infNFe><infNFeSupl><qrCode>https://x?p=1|2</qrCode></infNFeSupl></NFe>`)
	same, err := infranfce.SameDocument(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	changed := bytes.Replace(b, []byte("10.00"), []byte("10.01"), 1)
	same, err = infranfce.SameDocument(a, changed)
	require.NoError(t, err)
	assert.False(t, same)

	_, err = infranfce.SameDocument(a, []byte("<NFe>"))
	assert.Error(t, err)
}

func TestBuild_FirmaYValida(t *testing.T) {
	out, err := infranfce.NewXMLBuilderService().Build(buildTestContext())
	require.NoError(t, err)

	signed, err := signer.NewService(signer.Options{}).Sign(out, nfcetest.NewBundle(t))
	require.NoError(t, err)
	res, err := signer.Validate(signed)
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Reason)
}

// ── Fallas ───────────────────────────────────────────────────────────────────

func TestBuild_SinItemsSePermite(t *testing.T) {
	ctx := buildTestContext()
	ctx.Items = nil
	ctx.Document.Discount = decimal.Zero
	ctx.Document.TotalValue = decimal.Zero

	out, err := infranfce.NewXMLBuilderService().Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.00", textAt(t, parse(t, out), "//total/ICMSTot/vNF"))
}

func TestBuild_Fallas(t *testing.T) {
	cases := map[string]func(*infranfce.DocumentBuildContext){
		"sin chave":            func(c *infranfce.DocumentBuildContext) { c.Document.AccessKey = "" },
		"chave con DV erróneo": func(c *infranfce.DocumentBuildContext) { c.Document.AccessKey = nfcetest.TestAccessKey[:43] + "0" },
		"ítem sin NCM":         func(c *infranfce.DocumentBuildContext) { c.Items[0].NCM = "" },
		"ítem sin CSOSN":       func(c *infranfce.DocumentBuildContext) { c.Items[1].CSOSN = "" },
		"sin emitente":         func(c *infranfce.DocumentBuildContext) { c.Store = nil },
		"sin QR":               func(c *infranfce.DocumentBuildContext) { c.QRCodeURL = "" },
		"total incoherente":    func(c *infranfce.DocumentBuildContext) { c.Document.TotalValue = decimal.NewFromInt(1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := buildTestContext()
			mutate(ctx)
			_, err := infranfce.NewXMLBuilderService().Build(ctx)
			require.Error(t, err)
			assert.ErrorIs(t, err, nfce.ErrDocumentBuild)
			assert.Equal(t, nfce.CategoryDocument, nfce.Category(err))
		})
	}

	_, err := infranfce.NewXMLBuilderService().Build(nil)
	assert.ErrorIs(t, err, nfce.ErrDocumentBuild)
}
