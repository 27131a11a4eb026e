package dto

import "github.com/shopspring/decimal"

// CreateFiscalDocumentRequest body para POST /api/nfce/documents.
// Si Items va vacío y OrderID está presente, las líneas salen del pedido (solo precio > 0).
type CreateFiscalDocumentRequest struct {
	ClientID    int64                    `json:"client_id"`
	OrderID     *int64                   `json:"order_id,omitempty"`
	PaymentCode string                   `json:"payment_code,omitempty"` // tPag; vacío = 01 (dinheiro)
	Discount    decimal.Decimal          `json:"discount"`               // descuento de cabecera
	Items       []FiscalDocumentItemData `json:"items,omitempty"`
}

// FiscalDocumentItemData línea solicitada. UnitPrice cero = precio del producto.
type FiscalDocumentItemData struct {
	ProductID    int64           `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Discount     decimal.Decimal `json:"discount"`
	SerialNumber string          `json:"serial_number,omitempty"`
}

// FiscalDocumentResponse NFC-e en respuestas.
type FiscalDocumentResponse struct {
	ID                 string                       `json:"id"`
	StoreID            int64                        `json:"store_id"`
	ClientID           int64                        `json:"client_id"`
	OrderID            *int64                       `json:"order_id,omitempty"`
	Series             int                          `json:"series"`
	Number             int64                        `json:"number"`
	IssueDate          string                       `json:"issue_date"`
	AccessKey          string                       `json:"access_key"`
	AccessKeyFormatted string                       `json:"access_key_formatted"`
	Status             string                       `json:"status"`
	PaymentCode        string                       `json:"payment_code"`
	TotalValue         decimal.Decimal              `json:"total_value"`
	Discount           decimal.Decimal              `json:"discount"`
	ReceiptNumber      string                       `json:"receipt_number,omitempty"`
	ProtocolNumber     string                       `json:"protocol_number,omitempty"`
	StatusCode         string                       `json:"status_code,omitempty"`
	StatusMessage      string                       `json:"status_message,omitempty"`
	XMLPath            string                       `json:"xml_path,omitempty"`
	Simulated          bool                         `json:"simulated"`
	Items              []FiscalDocumentItemResponse `json:"items,omitempty"`
}

// FiscalDocumentItemResponse línea en la respuesta.
type FiscalDocumentItemResponse struct {
	Position     int             `json:"position"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Discount     decimal.Decimal `json:"discount"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	NCM          string          `json:"ncm"`
	CFOP         string          `json:"cfop"`
	CSOSN        string          `json:"csosn"`
	SerialNumber string          `json:"serial_number,omitempty"`
}

// StageResponse resultado de una etapa del pipeline (xml, sign, transmit, receipt, process).
type StageResponse struct {
	Document  FiscalDocumentResponse `json:"document"`
	Stage     string                 `json:"stage"`
	Pending   bool                   `json:"pending,omitempty"` // recibo aún en procesamiento (105)
	Message   string                 `json:"message,omitempty"`
	Simulated bool                   `json:"simulated"`
}

// PipelineErrorResponse falla de etapa: categoría para el operador y cStat/xMotivo si hubo rechazo.
type PipelineErrorResponse struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
	CStat    string `json:"c_stat,omitempty"`
	XMotivo  string `json:"x_motivo,omitempty"`
}

// AccessKeyResponse campos de una chave de acesso.
type AccessKeyResponse struct {
	AccessKey string `json:"access_key"`
	Formatted string `json:"formatted"`
	UF        string `json:"uf"`
	YearMonth string `json:"year_month"`
	CNPJ      string `json:"cnpj"`
	Model     string `json:"model"`
	Series    string `json:"series"`
	Number    string `json:"number"`
	Code      string `json:"code"`
}

// QRCodeValidationResponse resultado de GET /api/nfce/qrcode/validate.
type QRCodeValidationResponse struct {
	Valid   bool     `json:"valid"`
	Check   string   `json:"check,omitempty"`
	Message string   `json:"message,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}
