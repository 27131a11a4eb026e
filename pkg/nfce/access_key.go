package nfce

import (
	"fmt"
	"strings"
	"time"
)

// Anchos fijos de cada campo de la chave de acesso (43 dígitos + DV).
const (
	widthUF        = 2
	widthYearMonth = 4
	widthCNPJ      = 14
	widthModel     = 2
	widthSeries    = 3
	widthNumber    = 9
	widthCode      = 9

	AccessKeyBaseLength = widthUF + widthYearMonth + widthCNPJ + widthModel + widthSeries + widthNumber + widthCode
	AccessKeyLength     = AccessKeyBaseLength + 1
)

// pesos del módulo 11: se recorren los 43 dígitos de derecha a izquierda repitiendo 2..9.
var accessKeyWeights = [8]int{2, 3, 4, 5, 6, 7, 8, 9}

// AccessKeyParams campos que componen la chave de acesso.
//
// Todos son numéricos. Los más cortos que su ancho se completan con ceros a la
// izquierda; los más largos se rechazan con ValidationError (nunca se truncan).
type AccessKeyParams struct {
	UF        string // código IBGE de la UF (2), ej. "42" = SC
	YearMonth string // AAMM de emisión (4)
	CNPJ      string // CNPJ del emisor (14); se aceptan los separadores . / -
	Model     string // modelo (2), "65" para NFC-e
	Series    string // serie (3)
	Number    string // nNF (9)
	Code      string // cNF (8) + tpEmis (1)
}

// YearMonth devuelve el AAMM de una fecha de emisión.
func YearMonth(t time.Time) string {
	return t.Format("0601")
}

// ControlCode arma el bloque de 9 dígitos: cNF de 8 dígitos seguido de tpEmis.
func ControlCode(cNF int, tpEmis int) string {
	return fmt.Sprintf("%08d%d", cNF, tpEmis)
}

// GenerateAccessKey calcula la chave de 44 dígitos. Es pura: mismos campos, misma chave.
func GenerateAccessKey(p AccessKeyParams) (string, error) {
	base, err := p.base()
	if err != nil {
		return "", err
	}
	dv, err := AccessKeyChecksum(base)
	if err != nil {
		return "", err
	}
	return base + string(rune('0'+dv)), nil
}

func (p AccessKeyParams) base() (string, error) {
	cnpj := strings.NewReplacer(".", "", "/", "", "-", "", " ", "").Replace(p.CNPJ)
	fields := []struct {
		name  string
		value string
		width int
	}{
		{"uf", p.UF, widthUF},
		{"ano_mes", p.YearMonth, widthYearMonth},
		{"cnpj", cnpj, widthCNPJ},
		{"modelo", p.Model, widthModel},
		{"serie", p.Series, widthSeries},
		{"numero", p.Number, widthNumber},
		{"codigo", p.Code, widthCode},
	}
	var sb strings.Builder
	sb.Grow(AccessKeyBaseLength)
	for _, f := range fields {
		padded, err := padDigits(f.name, strings.TrimSpace(f.value), f.width)
		if err != nil {
			return "", err
		}
		sb.WriteString(padded)
	}
	return sb.String(), nil
}

func padDigits(name, value string, width int) (string, error) {
	if value == "" {
		return "", &ValidationError{Field: name, Reason: "vacío"}
	}
	if !isDigits(value) {
		return "", &ValidationError{Field: name, Reason: fmt.Sprintf("%q no es numérico", value)}
	}
	if len(value) > width {
		return "", &ValidationError{Field: name, Reason: fmt.Sprintf("%q excede %d dígitos", value, width)}
	}
	return strings.Repeat("0", width-len(value)) + value, nil
}

// AccessKeyChecksum calcula el DV módulo 11 de la base de 43 dígitos.
// dv = 11 - (suma mod 11); si dv >= 10 entonces 0.
func AccessKeyChecksum(base string) (int, error) {
	if len(base) != AccessKeyBaseLength || !isDigits(base) {
		return 0, &ValidationError{Field: "chave", Reason: fmt.Sprintf("la base debe tener %d dígitos", AccessKeyBaseLength)}
	}
	var sum int
	for i := 0; i < len(base); i++ {
		d := int(base[len(base)-1-i] - '0')
		sum += d * accessKeyWeights[i%len(accessKeyWeights)]
	}
	dv := 11 - (sum % 11)
	if dv >= 10 {
		dv = 0
	}
	return dv, nil
}

// ValidateAccessKey verifica longitud, dígitos y DV de una chave completa.
func ValidateAccessKey(key string) error {
	if len(key) != AccessKeyLength || !isDigits(key) {
		return &ValidationError{Field: "chave", Reason: fmt.Sprintf("debe tener exactamente %d dígitos", AccessKeyLength)}
	}
	dv, err := AccessKeyChecksum(key[:AccessKeyBaseLength])
	if err != nil {
		return err
	}
	if int(key[AccessKeyBaseLength]-'0') != dv {
		return &ValidationError{Field: "chave", Reason: fmt.Sprintf("dígito verificador %c no coincide (esperado %d)", key[AccessKeyBaseLength], dv)}
	}
	return nil
}

// ParseAccessKey descompone una chave válida en sus campos.
func ParseAccessKey(key string) (AccessKeyParams, error) {
	if err := ValidateAccessKey(key); err != nil {
		return AccessKeyParams{}, err
	}
	var p AccessKeyParams
	pos := 0
	next := func(w int) string {
		s := key[pos : pos+w]
		pos += w
		return s
	}
	p.UF = next(widthUF)
	p.YearMonth = next(widthYearMonth)
	p.CNPJ = next(widthCNPJ)
	p.Model = next(widthModel)
	p.Series = next(widthSeries)
	p.Number = next(widthNumber)
	p.Code = next(widthCode)
	return p, nil
}

// CNF devuelve el código numérico (8 dígitos) contenido en la chave.
func CNF(key string) string {
	if len(key) != AccessKeyLength {
		return ""
	}
	return key[AccessKeyBaseLength-widthCode : AccessKeyBaseLength-1]
}

// FormatAccessKey agrupa la chave en bloques de 4 dígitos para impresión (DANFE).
func FormatAccessKey(key string) string {
	key = strings.ReplaceAll(strings.TrimSpace(key), " ", "")
	if key == "" {
		return ""
	}
	var groups []string
	for i := 0; i < len(key); i += 4 {
		end := i + 4
		if end > len(key) {
			end = len(key)
		}
		groups = append(groups, key[i:end])
	}
	return strings.Join(groups, " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
