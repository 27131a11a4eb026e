package nfce

import (
	"fmt"
	"strings"
)

// ufCodes códigos IBGE de las unidades federativas (cUF).
var ufCodes = map[string]string{
	"AC": "12", "AL": "27", "AP": "16", "AM": "13", "BA": "29",
	"CE": "23", "DF": "53", "ES": "32", "GO": "52", "MA": "21",
	"MT": "51", "MS": "50", "MG": "31", "PA": "15", "PB": "25",
	"PR": "41", "PE": "26", "PI": "22", "RJ": "33", "RN": "24",
	"RS": "43", "RO": "11", "RR": "14", "SC": "42", "SP": "35",
	"SE": "28", "TO": "17",
}

// UFCode devuelve el cUF de una sigla (ej. "SC" -> "42").
func UFCode(uf string) (string, error) {
	code, ok := ufCodes[strings.ToUpper(strings.TrimSpace(uf))]
	if !ok {
		return "", &ValidationError{Field: "uf", Reason: fmt.Sprintf("sigla %q desconocida", uf)}
	}
	return code, nil
}

// UFAbbreviation devuelve la sigla de un cUF (ej. "42" -> "SC"); vacío si no existe.
func UFAbbreviation(code string) string {
	for uf, c := range ufCodes {
		if c == code {
			return uf
		}
	}
	return ""
}
