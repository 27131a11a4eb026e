// Package nfce contiene catálogos, la chave de acesso y la taxonomía de errores
// de la NFC-e (modelo 65, leiaute 4.00) emitida ante la SEFAZ/SVRS.
package nfce

// =============================================================================
// Identificación del documento (leiaute 4.00)
// =============================================================================

const (
	ModelNFCe     = "65"   // NFC-e
	LayoutVersion = "4.00" // versao del infNFe / enviNFe / consReciNFe
	QRCodeVersion = "2"    // versión del QR Code (NT 2015.002)

	Namespace                 = "http://www.portalfiscal.inf.br/nfe"
	NamespaceWSAutorizacao    = "http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4"
	NamespaceWSRetAutorizacao = "http://www.portalfiscal.inf.br/nfe/wsdl/NFeRetAutorizacao4"
	NamespaceSOAP12           = "http://www.w3.org/2003/05/soap-envelope"

	// IDPrefix precede a la chave en el atributo Id del infNFe (Id="NFe{chave}").
	IDPrefix = "NFe"
)

// =============================================================================
// Códigos cStat relevantes del WS de autorización y consulta de recibo
// =============================================================================

const (
	StatusAuthorized     = "100" // Autorizado o uso da NF-e
	StatusAuthorizedLate = "150" // Autorizado o uso da NF-e, autorização fora de prazo
	StatusLotReceived    = "103" // Lote recebido com sucesso
	StatusLotProcessed   = "104" // Lote processado
	StatusLotProcessing  = "105" // Lote em processamento
	StatusReceiptAbsent  = "106" // Lote não localizado
	StatusDenied         = "110" // Uso denegado
	StatusExcessiveUse   = "656" // Consumo indevido
	StatusBadSignature   = "297" // Rejeição: Assinatura difere do calculado
)

// =============================================================================
// Valores por defecto de la tienda (aparelhos auditivos, Simples Nacional)
// =============================================================================

const (
	DefaultNCM   = "90214000" // Artigos e aparelhos para facilitar a audição
	DefaultCFOP  = "5102"     // Venda de mercadoria adquirida de terceiros
	DefaultCSOSN = "102"      // Tributada pelo Simples Nacional sem permissão de crédito
	DefaultUnit  = "UN"

	OriginNational     = "0"
	CRTSimplesNacional = "1"

	PaymentCash   = "01" // Dinheiro
	PaymentCredit = "03" // Cartão de crédito
	PaymentDebit  = "04" // Cartão de débito
	PaymentPix    = "17" // Pagamento instantâneo (PIX)

	CountryBrazilCode = "1058"
	CountryBrazilName = "Brasil"

	OperationNature = "VENDA DE MERCADORIA"
	ConsumerUnnamed = "CONSUMIDOR NÃO IDENTIFICADO"

	// En homologação la SEFAZ exige estos textos en dest/xNome y en el xProd del primer ítem.
	HomologationRecipientName = "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"
	HomologationFirstItemName = "NOTA FISCAL EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"

	DefaultCityCode = "4209102" // Joinville/SC
	NoGTIN          = "SEM GTIN"
	FreightNone     = "9" // modFrete: sem ocorrência de transporte
)

// ValidPaymentCodes códigos tPag aceptados por el builder.
var ValidPaymentCodes = map[string]bool{
	PaymentCash: true, PaymentCredit: true, PaymentDebit: true, PaymentPix: true,
	"05": true, "10": true, "11": true, "15": true, "99": true,
}

// =============================================================================
// Endpoints SVRS (SC está atendida por la SEFAZ Virtual RS) y consulta QR SC
// =============================================================================

const (
	AuthorizationURLProduction   = "https://nfce.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx"
	AuthorizationURLHomologation = "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx"

	ReceiptURLProduction   = "https://nfce.svrs.rs.gov.br/ws/NfeRetAutorizacao/NFeRetAutorizacao4.asmx"
	ReceiptURLHomologation = "https://hom.svrs.rs.gov.br/ws/NfeRetAutorizacao/NFeRetAutorizacao4.asmx"

	QRCodeBaseURLProduction   = "https://sat.sef.sc.gov.br/nfce/consulta"
	QRCodeBaseURLHomologation = "https://hom.sat.sef.sc.gov.br/nfce/consulta"

	// URLChave es la URL de consulta impresa en infNFeSupl/urlChave.
	URLChave = "https://sat.sef.sc.gov.br/nfce/consulta"
)

// AuthorizationURLs devuelve la lista de candidatos del WS NFeAutorizacao4 para el ambiente.
func AuthorizationURLs(env Environment) []string {
	if env == Production {
		return []string{AuthorizationURLProduction}
	}
	return []string{AuthorizationURLHomologation}
}

// ReceiptURLs devuelve la lista de candidatos del WS NFeRetAutorizacao4 para el ambiente.
func ReceiptURLs(env Environment) []string {
	if env == Production {
		return []string{ReceiptURLProduction}
	}
	return []string{ReceiptURLHomologation}
}

// QRCodeBaseURL host de consulta del QR Code según ambiente.
func QRCodeBaseURL(env Environment) string {
	if env == Production {
		return QRCodeBaseURLProduction
	}
	return QRCodeBaseURLHomologation
}
