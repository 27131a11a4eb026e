package nfce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// Zona de emisión: dhEmi siempre con -03:00.
var brasilia = time.FixedZone("BRT", -3*60*60)

const defaultVerProc = "Ouvirtiba-Emissor-1.0"

// XMLBuilderService construye el XML de la NFC-e (sin firma).
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el XML compacto (sin indentación) de la NFC-e. Mismos datos, mismos bytes.
func (s *XMLBuilderService) Build(ctx *DocumentBuildContext) ([]byte, error) {
	if err := checkBuildContext(ctx); err != nil {
		return nil, err
	}
	d := ctx.Document

	lines, totals, err := computeLines(ctx.Items, d.Discount)
	if err != nil {
		return nil, err
	}
	if !totals.vNF.Equal(d.TotalValue.Round(2)) {
		return nil, &nfce.DocumentBuildError{Reason: fmt.Sprintf("vNF calculado %s difiere del total del documento %s",
			totals.vNF.StringFixed(2), d.TotalValue.StringFixed(2))}
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("NFe")
	root.CreateAttr("xmlns", nfce.Namespace)

	inf := root.CreateElement("infNFe")
	inf.CreateAttr("versao", nfce.LayoutVersion)
	inf.CreateAttr("Id", nfce.IDPrefix+d.AccessKey)

	s.writeIde(inf, ctx)
	s.writeEmit(inf, ctx.Store)
	s.writeDest(inf, ctx)
	for _, ln := range lines {
		s.writeDet(inf, ln, ctx.Environment)
	}
	s.writeTotal(inf, totals)
	inf.CreateElement("transp").CreateElement("modFrete").SetText(nfce.FreightNone)
	s.writePag(inf, d.PaymentCode, totals.vNF)
	s.writeInfAdic(inf, ctx)

	supl := root.CreateElement("infNFeSupl")
	supl.CreateElement("qrCode").CreateCData(ctx.QRCodeURL)
	supl.CreateElement("urlChave").SetText(nfce.URLChave)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, &nfce.DocumentBuildError{Reason: "serializar XML", Err: err}
	}
	return out, nil
}

func checkBuildContext(ctx *DocumentBuildContext) error {
	if ctx == nil || ctx.Document == nil || ctx.Store == nil {
		return &nfce.DocumentBuildError{Reason: "faltan documento o emitente en el contexto"}
	}
	if err := nfce.ValidateAccessKey(ctx.Document.AccessKey); err != nil {
		return &nfce.DocumentBuildError{Reason: "chave de acesso ausente o inválida", Err: err}
	}
	if !ctx.Environment.Valid() {
		return &nfce.DocumentBuildError{Reason: fmt.Sprintf("ambiente %d inválido", int(ctx.Environment))}
	}
	if strings.TrimSpace(ctx.QRCodeURL) == "" {
		return &nfce.DocumentBuildError{Reason: "URL del QR Code ausente"}
	}
	if digitsOnly(ctx.Store.CNPJ) == "" || strings.TrimSpace(ctx.Store.IE) == "" {
		return &nfce.DocumentBuildError{Reason: "emitente sin CNPJ o inscrição estadual"}
	}
	for i, it := range ctx.Items {
		if it == nil {
			return &nfce.DocumentBuildError{Reason: fmt.Sprintf("ítem %d nulo", i+1)}
		}
		if it.NCM == "" || it.CFOP == "" || it.CSOSN == "" {
			return &nfce.DocumentBuildError{Reason: fmt.Sprintf("ítem %d (%s) sin clasificación fiscal (NCM/CFOP/CSOSN)", i+1, it.ProductName)}
		}
	}
	return nil
}

// ── Ítems y totales ───────────────────────────────────────────────────────────

type line struct {
	nItem int
	item  *entity.FiscalDocumentItem
	vProd decimal.Decimal // bruto: qCom × vUnCom
	vDesc decimal.Decimal // descuento del ítem + prorrateo del descuento de cabecera
}

type icmsTotals struct {
	vProd decimal.Decimal
	vDesc decimal.Decimal
	vNF   decimal.Decimal
}

// computeLines prorratea el descuento de cabecera entre los ítems en proporción al bruto;
// el residuo de redondeo va al último ítem para que la suma cuadre exactamente.
func computeLines(items []*entity.FiscalDocumentItem, headerDiscount decimal.Decimal) ([]line, icmsTotals, error) {
	var t icmsTotals
	lines := make([]line, 0, len(items))
	for i, it := range items {
		n := it.Position
		if n <= 0 {
			n = i + 1
		}
		ln := line{nItem: n, item: it, vProd: it.Quantity.Mul(it.UnitPrice).Round(2), vDesc: it.Discount.Round(2)}
		t.vProd = t.vProd.Add(ln.vProd)
		lines = append(lines, ln)
	}

	header := headerDiscount.Round(2)
	if header.IsPositive() {
		if len(lines) == 0 || !t.vProd.IsPositive() {
			return nil, t, &nfce.DocumentBuildError{Reason: "descuento de cabecera sin ítems a los que aplicarlo"}
		}
		remaining := header
		for i := range lines {
			share := remaining
			if i < len(lines)-1 {
				share = header.Mul(lines[i].vProd).Div(t.vProd).Round(2)
				remaining = remaining.Sub(share)
			}
			lines[i].vDesc = lines[i].vDesc.Add(share)
		}
	}

	for _, ln := range lines {
		if ln.vDesc.GreaterThan(ln.vProd) {
			return nil, t, &nfce.DocumentBuildError{Reason: fmt.Sprintf("ítem %d: descuento mayor que el valor del producto", ln.nItem)}
		}
		t.vDesc = t.vDesc.Add(ln.vDesc)
	}
	t.vNF = t.vProd.Sub(t.vDesc)
	return lines, t, nil
}

// ── Bloques ───────────────────────────────────────────────────────────────────

func (s *XMLBuilderService) writeIde(inf *etree.Element, ctx *DocumentBuildContext) {
	d := ctx.Document
	key := d.AccessKey
	ide := inf.CreateElement("ide")
	text(ide, "cUF", key[:2])
	text(ide, "cNF", nfce.CNF(key))
	text(ide, "natOp", nfce.OperationNature)
	text(ide, "mod", nfce.ModelNFCe)
	text(ide, "serie", strconv.Itoa(d.Series))
	text(ide, "nNF", strconv.FormatInt(d.Number, 10))
	text(ide, "dhEmi", d.IssueDate.In(brasilia).Format("2006-01-02T15:04:05-07:00"))
	text(ide, "tpNF", "1")   // saída
	text(ide, "idDest", "1") // operação interna
	text(ide, "cMunFG", orDefault(ctx.Store.CityCode, nfce.DefaultCityCode))
	text(ide, "tpImp", "4") // DANFE NFC-e
	text(ide, "tpEmis", key[nfce.AccessKeyBaseLength-1:nfce.AccessKeyBaseLength])
	text(ide, "cDV", key[nfce.AccessKeyBaseLength:])
	text(ide, "tpAmb", ctx.Environment.Code())
	text(ide, "finNFe", "1")
	text(ide, "indFinal", "1")
	text(ide, "indPres", "1") // presencial
	text(ide, "procEmi", "0")
	text(ide, "verProc", orDefault(ctx.VerProc, defaultVerProc))
}

func (s *XMLBuilderService) writeEmit(inf *etree.Element, st *entity.Store) {
	emit := inf.CreateElement("emit")
	text(emit, "CNPJ", digitsOnly(st.CNPJ))
	text(emit, "xNome", limit(st.Name, 60))
	optional(emit, "xFant", limit(st.TradeName, 60))
	ender := emit.CreateElement("enderEmit")
	text(ender, "xLgr", limit(st.Address, 60))
	text(ender, "nro", orDefault(st.Number, "S/N"))
	optional(ender, "xCpl", limit(st.Complement, 60))
	text(ender, "xBairro", limit(st.Neighborhood, 60))
	text(ender, "cMun", orDefault(st.CityCode, nfce.DefaultCityCode))
	text(ender, "xMun", limit(st.City, 60))
	text(ender, "UF", strings.ToUpper(st.UF))
	text(ender, "CEP", digitsOnly(st.ZipCode))
	text(ender, "cPais", nfce.CountryBrazilCode)
	text(ender, "xPais", nfce.CountryBrazilName)
	optional(ender, "fone", digitsOnly(st.Phone))
	text(emit, "IE", digitsOnly(st.IE))
	text(emit, "CRT", nfce.CRTSimplesNacional)
}

// writeDest omite <dest> para consumidor no identificado. Orden del leiaute:
// CPF/CNPJ, xNome, enderDest, indIEDest.
func (s *XMLBuilderService) writeDest(inf *etree.Element, ctx *DocumentBuildContext) {
	c := ctx.Client
	if c == nil {
		return
	}
	doc := digitsOnly(c.Code)
	if doc == "" {
		return
	}
	dest := inf.CreateElement("dest")
	if len(doc) == 14 {
		text(dest, "CNPJ", doc)
	} else {
		text(dest, "CPF", doc)
	}
	name := limit(orDefault(c.Name, nfce.ConsumerUnnamed), 60)
	if ctx.Environment == nfce.Homologation {
		name = nfce.HomologationRecipientName
	}
	text(dest, "xNome", name)

	if strings.TrimSpace(c.Address) != "" {
		st := ctx.Store
		ender := dest.CreateElement("enderDest")
		text(ender, "xLgr", limit(c.Address, 60))
		text(ender, "nro", orDefault(c.Number, "S/N"))
		optional(ender, "xCpl", limit(c.Complement, 60))
		text(ender, "xBairro", limit(orDefault(c.Neighborhood, "Centro"), 60))
		text(ender, "cMun", orDefault(c.CityCode, orDefault(st.CityCode, nfce.DefaultCityCode)))
		text(ender, "xMun", limit(orDefault(c.City, st.City), 60))
		text(ender, "UF", strings.ToUpper(orDefault(c.UF, st.UF)))
		optional(ender, "CEP", digitsOnly(c.ZipCode))
		text(ender, "cPais", nfce.CountryBrazilCode)
		text(ender, "xPais", nfce.CountryBrazilName)
	}
	text(dest, "indIEDest", "9") // não contribuinte
	optional(dest, "email", limit(c.Email, 60))
}

func (s *XMLBuilderService) writeDet(inf *etree.Element, ln line, env nfce.Environment) {
	it := ln.item
	det := inf.CreateElement("det")
	det.CreateAttr("nItem", strconv.Itoa(ln.nItem))

	name := limit(it.ProductName, 120)
	if env == nfce.Homologation && ln.nItem == 1 {
		name = nfce.HomologationFirstItemName
	}
	qty := it.Quantity.StringFixed(4)
	unit := it.UnitPrice.StringFixed(2)

	prod := det.CreateElement("prod")
	text(prod, "cProd", strconv.FormatInt(it.ProductID, 10))
	text(prod, "cEAN", nfce.NoGTIN)
	text(prod, "xProd", name)
	text(prod, "NCM", it.NCM)
	text(prod, "CFOP", it.CFOP)
	text(prod, "uCom", nfce.DefaultUnit)
	text(prod, "qCom", qty)
	text(prod, "vUnCom", unit)
	text(prod, "vProd", ln.vProd.StringFixed(2))
	text(prod, "cEANTrib", nfce.NoGTIN)
	text(prod, "uTrib", nfce.DefaultUnit)
	text(prod, "qTrib", qty)
	text(prod, "vUnTrib", unit)
	if ln.vDesc.IsPositive() {
		text(prod, "vDesc", ln.vDesc.StringFixed(2))
	}
	text(prod, "indTot", "1")

	sn := det.CreateElement("imposto").CreateElement("ICMS").CreateElement(icmsGroup(it.CSOSN))
	text(sn, "orig", nfce.OriginNational)
	text(sn, "CSOSN", it.CSOSN)

	if it.SerialNumber != "" {
		text(det, "infAdProd", limit("Número de série: "+it.SerialNumber, 500))
	}
}

func (s *XMLBuilderService) writeTotal(inf *etree.Element, t icmsTotals) {
	tot := inf.CreateElement("total").CreateElement("ICMSTot")
	zero := decimal.Zero.StringFixed(2)
	for _, tag := range []string{"vBC", "vICMS", "vICMSDeson", "vFCP", "vBCST", "vST", "vFCPST", "vFCPSTRet"} {
		text(tot, tag, zero)
	}
	text(tot, "vProd", t.vProd.StringFixed(2))
	text(tot, "vFrete", zero)
	text(tot, "vSeg", zero)
	text(tot, "vDesc", t.vDesc.StringFixed(2))
	for _, tag := range []string{"vII", "vIPI", "vIPIDevol", "vPIS", "vCOFINS", "vOutro"} {
		text(tot, tag, zero)
	}
	text(tot, "vNF", t.vNF.StringFixed(2))
}

func (s *XMLBuilderService) writePag(inf *etree.Element, code string, vNF decimal.Decimal) {
	if !nfce.ValidPaymentCodes[code] {
		code = nfce.PaymentCash
	}
	detPag := inf.CreateElement("pag").CreateElement("detPag")
	text(detPag, "tPag", code)
	text(detPag, "vPag", vNF.StringFixed(2))
	if code == nfce.PaymentCredit || code == nfce.PaymentDebit {
		text(detPag.CreateElement("card"), "tpIntegra", "2") // pagamento não integrado
	}
}

func (s *XMLBuilderService) writeInfAdic(inf *etree.Element, ctx *DocumentBuildContext) {
	info := strings.TrimSpace(ctx.AdditionalInfo)
	if info == "" {
		if ctx.Environment == nfce.Homologation {
			info = "Emitido em ambiente de homologação - sem valor fiscal."
		} else {
			info = "Documento emitido por ME ou EPP optante pelo Simples Nacional."
		}
	}
	text(inf.CreateElement("infAdic"), "infCpl", limit(info, 5000))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// icmsGroup grupo ICMSSN del leiaute: 102, 103, 300 y 400 comparten ICMSSN102.
func icmsGroup(csosn string) string {
	switch csosn {
	case "102", "103", "300", "400":
		return "ICMSSN102"
	}
	return "ICMSSN" + csosn
}

func text(parent *etree.Element, tag, value string) {
	parent.CreateElement(tag).SetText(value)
}

func optional(parent *etree.Element, tag, value string) {
	if value != "" {
		text(parent, tag, value)
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// limit recorta a n runas (los campos del leiaute tienen tamaño máximo).
func limit(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
