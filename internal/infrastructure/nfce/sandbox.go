package nfce

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/janssengh/ouvirtiba/internal/infrastructure/nfce/signer"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// SandboxAppVersion verAplic de toda respuesta simulada.
const SandboxAppVersion = "SANDBOX"

// SandboxGateway SEFAZ en proceso para homologação. Se habilita solo por configuración
// (NFCE_SANDBOX); nunca reemplaza al gateway real ante una falla de conexión.
// Todas sus respuestas salen con Simulated=true y verAplic=SANDBOX.
type SandboxGateway struct {
	lots *cache.Cache // nRec -> chave
	seq  atomic.Int64
	now  func() time.Time
	log  zerolog.Logger
}

var _ Gateway = (*SandboxGateway)(nil)

// NewSandboxGateway crea el gateway simulado.
func NewSandboxGateway(logger zerolog.Logger) *SandboxGateway {
	return &SandboxGateway{
		lots: cache.New(6*time.Hour, time.Hour),
		now:  time.Now,
		log:  logger,
	}
}

// Transmit verifica la firma como lo haría la SEFAZ (297 si no confiere) y devuelve 103 con un nRec.
func (g *SandboxGateway) Transmit(_ context.Context, signedXML []byte, _ *nfce.CertificateBundle, env nfce.Environment) (*TransmitResult, error) {
	if env != nfce.Homologation {
		return nil, &nfce.ValidationError{Field: "environment", Reason: "el sandbox solo opera en homologação"}
	}

	key := accessKeyOf(signedXML)
	ret := etree.NewElement("retEnviNFe")
	ret.CreateAttr("xmlns", nfce.Namespace)
	ret.CreateAttr("versao", nfce.LayoutVersion)
	ret.CreateElement("tpAmb").SetText(env.Code())
	ret.CreateElement("verAplic").SetText(SandboxAppVersion)

	result, vErr := signer.Validate(signedXML)
	switch {
	case vErr != nil || !result.Valid || key == "":
		ret.CreateElement("cStat").SetText(nfce.StatusBadSignature)
		ret.CreateElement("xMotivo").SetText("Rejeicao: Assinatura difere do calculado")
	default:
		nRec := g.nextReceipt(key)
		g.lots.Set(nRec, key, cache.DefaultExpiration)
		ret.CreateElement("cStat").SetText(nfce.StatusLotReceived)
		ret.CreateElement("xMotivo").SetText("Lote recebido com sucesso")
		ret.CreateElement("dhRecbto").SetText(g.now().In(brasilia).Format(time.RFC3339))
		inf := ret.CreateElement("infRec")
		inf.CreateElement("nRec").SetText(nRec)
		inf.CreateElement("tMed").SetText("1")
	}

	body, err := simulatedBody(ret)
	if err != nil {
		return nil, err
	}
	res, err := parseTransmitResponse(body, "sandbox")
	if res != nil {
		res.Simulated = true
	}
	g.log.Info().Str("access_key", key).Str("c_stat", ret.SelectElement("cStat").Text()).Bool("simulated", true).Msg("transmisión sandbox")
	return res, err
}

// QueryReceipt autoriza todo lote recibido por este mismo gateway; el resto es 106.
func (g *SandboxGateway) QueryReceipt(_ context.Context, receiptNumber string, _ *nfce.CertificateBundle, env nfce.Environment) (*ReceiptResult, error) {
	if env != nfce.Homologation {
		return nil, &nfce.ValidationError{Field: "environment", Reason: "el sandbox solo opera en homologação"}
	}
	receiptNumber = strings.TrimSpace(receiptNumber)
	if !isNumeric(receiptNumber) {
		return nil, &nfce.ValidationError{Field: "nRec", Reason: "debe ser numérico y no vacío"}
	}

	ret := etree.NewElement("retConsReciNFe")
	ret.CreateAttr("xmlns", nfce.Namespace)
	ret.CreateAttr("versao", nfce.LayoutVersion)
	ret.CreateElement("tpAmb").SetText(env.Code())
	ret.CreateElement("verAplic").SetText(SandboxAppVersion)
	ret.CreateElement("nRec").SetText(receiptNumber)

	v, found := g.lots.Get(receiptNumber)
	if !found {
		ret.CreateElement("cStat").SetText(nfce.StatusReceiptAbsent)
		ret.CreateElement("xMotivo").SetText("Rejeicao: Recibo nao encontrado")
	} else {
		key := v.(string)
		ret.CreateElement("cStat").SetText(nfce.StatusLotProcessed)
		ret.CreateElement("xMotivo").SetText("Lote processado")
		inf := ret.CreateElement("protNFe").CreateElement("infProt")
		inf.CreateElement("tpAmb").SetText(env.Code())
		inf.CreateElement("verAplic").SetText(SandboxAppVersion)
		inf.CreateElement("chNFe").SetText(key)
		inf.CreateElement("dhRecbto").SetText(g.now().In(brasilia).Format(time.RFC3339))
		inf.CreateElement("nProt").SetText("1" + receiptNumber[1:])
		inf.CreateElement("cStat").SetText(nfce.StatusAuthorized)
		inf.CreateElement("xMotivo").SetText("Autorizado o uso da NF-e")
	}

	body, err := simulatedBody(ret)
	if err != nil {
		return nil, err
	}
	res, err := parseReceiptResponse(body, "sandbox")
	if res != nil {
		res.Simulated = true
	}
	return res, err
}

// nextReceipt nRec de 15 dígitos: cUF + "9" + secuencia.
func (g *SandboxGateway) nextReceipt(key string) string {
	return fmt.Sprintf("%s9%012d", key[:2], g.seq.Add(1))
}

func simulatedBody(ret *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	doc.SetRoot(ret)
	return doc.WriteToBytes()
}

// accessKeyOf chave tomada del Id del infNFe; vacío si no existe o no es válida.
func accessKeyOf(xmlBytes []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return ""
	}
	inf := doc.FindElement("//infNFe")
	if inf == nil {
		return ""
	}
	key := strings.TrimPrefix(inf.SelectAttrValue("Id", ""), nfce.IDPrefix)
	if nfce.ValidateAccessKey(key) != nil {
		return ""
	}
	return key
}
