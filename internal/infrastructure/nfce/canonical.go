package nfce

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/ucarion/c14n"
)

// CanonicalDocument devuelve la forma canónica (C14N) del documento completo.
// Los archivos declarados en ISO-8859-1 se leen con CharsetReader.
func CanonicalDocument(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	dec.CharsetReader = CharsetReader
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("nfce: canonicalizar documento: %w", err)
	}
	return out, nil
}

// SameDocument compara dos XML por su forma canónica: ignora atributos reordenados,
// comillas, CDATA y declaración de codificación.
func SameDocument(a, b []byte) (bool, error) {
	ca, err := CanonicalDocument(a)
	if err != nil {
		return false, err
	}
	cb, err := CanonicalDocument(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}
