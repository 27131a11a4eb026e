package nfce

import (
	"fmt"
	"strings"
)

// Environment tpAmb de la SEFAZ. Solo existen dos valores válidos.
type Environment int

const (
	Production   Environment = 1
	Homologation Environment = 2
)

// DefaultEnvironment es homologación: nunca se asume producción en silencio.
const DefaultEnvironment = Homologation

// ParseEnvironment acepta "1"/"2" o "production"/"homologation" (y sus formas en portugués).
// Cadena vacía devuelve DefaultEnvironment.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultEnvironment, nil
	case "1", "production", "producao", "produção", "prod":
		return Production, nil
	case "2", "homologation", "homologacao", "homologação", "hom":
		return Homologation, nil
	}
	return 0, &ValidationError{Field: "environment", Reason: fmt.Sprintf("valor %q no reconocido (usar 1 o 2)", s)}
}

// Valid indica si el valor es uno de los dos ambientes.
func (e Environment) Valid() bool {
	return e == Production || e == Homologation
}

// Code devuelve el tpAmb tal como va en el XML ("1" o "2").
func (e Environment) Code() string {
	return fmt.Sprintf("%d", int(e))
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Homologation:
		return "homologation"
	}
	return fmt.Sprintf("environment(%d)", int(e))
}
