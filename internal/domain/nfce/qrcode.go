// Package nfce contiene las reglas puras de dominio de la NFC-e: URL del QR Code
// (NT 2015.002, versión 2) y validación de coherencia del documento antes de construir el XML.
package nfce

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// QRCodeParams datos para generar la URL de consulta.
type QRCodeParams struct {
	AccessKey   string
	Environment nfce.Environment
	CSCID       string // idToken
	CSCToken    string // CSC; solo entra en el hash
	BaseURL     string // vacío = host de consulta SC del ambiente
}

// GenerateQRCodeURL arma base?p=chave|2|tpAmb|idToken|HASH.
// HASH = SHA-1 (hex en mayúsculas) de chave|2|tpAmb|idToken|CSC.
func GenerateQRCodeURL(p QRCodeParams) (string, error) {
	if err := checkAccessKeyShape(p.AccessKey); err != nil {
		return "", err
	}
	if !p.Environment.Valid() {
		return "", &nfce.ValidationError{Field: "environment", Reason: fmt.Sprintf("%d no es 1 ni 2", int(p.Environment))}
	}
	cscID := strings.TrimSpace(p.CSCID)
	if cscID == "" {
		return "", &nfce.ValidationError{Field: "csc_id", Reason: "obligatorio"}
	}
	if p.CSCToken == "" {
		return "", &nfce.ValidationError{Field: "csc_token", Reason: "obligatorio"}
	}

	fields := []string{p.AccessKey, nfce.QRCodeVersion, p.Environment.Code(), cscID}
	hash := QRCodeHash(strings.Join(append(fields, p.CSCToken), "|"))

	base := p.BaseURL
	if base == "" {
		base = nfce.QRCodeBaseURL(p.Environment)
	}
	return base + "?p=" + strings.Join(append(fields, hash), "|"), nil
}

// QRCodeHash SHA-1 en hex mayúsculas.
func QRCodeHash(input string) string {
	sum := sha1.Sum([]byte(input))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func checkAccessKeyShape(key string) error {
	if len(key) != nfce.AccessKeyLength {
		return &nfce.ValidationError{Field: "access_key", Reason: fmt.Sprintf("se esperaban %d dígitos, hay %d", nfce.AccessKeyLength, len(key))}
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return &nfce.ValidationError{Field: "access_key", Reason: "solo se admiten dígitos"}
		}
	}
	return nil
}

// Comprobaciones reportadas por ValidateQRCodeURL.
const (
	QRCheckURL         = "url"
	QRCheckParam       = "param_p"
	QRCheckFieldCount  = "field_count"
	QRCheckAccessKey   = "access_key"
	QRCheckVersion     = "version"
	QRCheckEnvironment = "environment"
	QRCheckHash        = "hash"
)

// QRCodeValidation resultado de la validación. Check indica la primera comprobación fallida.
type QRCodeValidation struct {
	Valid   bool     `json:"valid"`
	Check   string   `json:"check,omitempty"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func invalidQR(check, format string, args ...any) QRCodeValidation {
	return QRCodeValidation{Check: check, Message: fmt.Sprintf(format, args...)}
}

// ValidateQRCodeURL revisa el parámetro p: al menos 5 campos, chave de 44 dígitos,
// versión esperada (vacía = "2"), ambiente 1 o 2 y hash final de 40 hex.
// No verifica el dígito de la chave ni recalcula el hash (el CSC no es público).
func ValidateQRCodeURL(raw, expectedVersion string) QRCodeValidation {
	if expectedVersion == "" {
		expectedVersion = nfce.QRCodeVersion
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return invalidQR(QRCheckURL, "URL inválida: %v", err)
	}
	p := u.Query().Get("p")
	if p == "" {
		return invalidQR(QRCheckParam, "la URL debe contener el parámetro p")
	}

	parts := strings.Split(p, "|")
	if len(parts) < 5 {
		return invalidQR(QRCheckFieldCount, "se esperaban al menos 5 campos, hay %d", len(parts))
	}
	if err := checkAccessKeyShape(parts[0]); err != nil {
		return invalidQR(QRCheckAccessKey, "chave de acesso inválida: %s", parts[0])
	}
	if parts[1] != expectedVersion {
		return invalidQR(QRCheckVersion, "versión debe ser %s, hay %q", expectedVersion, parts[1])
	}
	if parts[2] != "1" && parts[2] != "2" {
		return invalidQR(QRCheckEnvironment, "ambiente debe ser 1 o 2, hay %q", parts[2])
	}
	hash := parts[len(parts)-1]
	if len(hash) != 40 {
		return invalidQR(QRCheckHash, "hash SHA-1 debe tener 40 caracteres, hay %d", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return invalidQR(QRCheckHash, "hash SHA-1 no es hexadecimal: %s", hash)
	}
	return QRCodeValidation{Valid: true, Message: "URL válida", Fields: parts}
}
