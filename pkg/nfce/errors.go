package nfce

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinelas para errors.Is. Los tipos concretos de abajo responden a ellas.
var (
	ErrValidation          = errors.New("nfce: validación")
	ErrDocumentBuild       = errors.New("nfce: construcción del documento")
	ErrCertificate         = errors.New("nfce: certificado")
	ErrInvalidCredentials  = errors.New("nfce: contraseña del certificado inválida o archivo corrupto")
	ErrCertificateNotFound = errors.New("nfce: certificado no encontrado")
	ErrSignature           = errors.New("nfce: firma")
	ErrMissingReference    = errors.New("nfce: elemento referenciado ausente")
	ErrTransport           = errors.New("nfce: transporte")
	ErrUnavailable         = errors.New("nfce: SEFAZ no disponible")
	ErrRejected            = errors.New("nfce: rechazo de la SEFAZ")
	ErrParse               = errors.New("nfce: respuesta no interpretable")
)

// ValidationError entrada mal formada para una función pura (chave, QR, ambiente).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("nfce: %s inválido: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DocumentBuildError faltan datos obligatorios para armar el XML.
type DocumentBuildError struct {
	Reason string
	Err    error
}

func (e *DocumentBuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nfce: construir documento: %s: %v", e.Reason, e.Err)
	}
	return "nfce: construir documento: " + e.Reason
}

func (e *DocumentBuildError) Unwrap() error        { return e.Err }
func (e *DocumentBuildError) Is(target error) bool { return target == ErrDocumentBuild }

// CertificateKind distingue las causas de falla al cargar el PKCS#12.
type CertificateKind int

const (
	CertificateInvalid CertificateKind = iota
	CertificateInvalidCredentials
	CertificateNotFound
)

// CertificateError falla al cargar o usar el almacén de claves.
type CertificateError struct {
	Kind CertificateKind
	Path string
	Err  error
}

func (e *CertificateError) Error() string {
	var what string
	switch e.Kind {
	case CertificateInvalidCredentials:
		what = "contraseña inválida o archivo corrupto"
	case CertificateNotFound:
		what = "archivo no encontrado"
	default:
		what = "certificado inválido"
	}
	if e.Err != nil {
		return fmt.Sprintf("nfce: certificado %q: %s: %v", e.Path, what, e.Err)
	}
	return fmt.Sprintf("nfce: certificado %q: %s", e.Path, what)
}

func (e *CertificateError) Unwrap() error { return e.Err }

func (e *CertificateError) Is(target error) bool {
	switch target {
	case ErrCertificate:
		return true
	case ErrInvalidCredentials:
		return e.Kind == CertificateInvalidCredentials
	case ErrCertificateNotFound:
		return e.Kind == CertificateNotFound
	}
	return false
}

// SignatureError falla criptográfica o estructural al firmar.
type SignatureError struct {
	Reason string
	Err    error
}

func (e *SignatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nfce: firma: %s: %v", e.Reason, e.Err)
	}
	return "nfce: firma: " + e.Reason
}

func (e *SignatureError) Unwrap() error        { return e.Err }
func (e *SignatureError) Is(target error) bool { return target == ErrSignature }

// MissingReferenceError el documento no trae el elemento con el Id que se debe firmar.
type MissingReferenceError struct {
	Element string
	ID      string
}

func (e *MissingReferenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("nfce: firma: no existe <%s> con Id %q", e.Element, e.ID)
	}
	return fmt.Sprintf("nfce: firma: <%s> sin atributo Id", e.Element)
}

func (e *MissingReferenceError) Is(target error) bool {
	return target == ErrMissingReference || target == ErrSignature
}

// EndpointFailure intento fallido contra un endpoint candidato.
type EndpointFailure struct {
	URL string
	Err error
}

// TransportError ningún endpoint candidato respondió.
type TransportError struct {
	Operation string
	Failures  []EndpointFailure
}

func (e *TransportError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("nfce: %s: sin endpoints configurados", e.Operation)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.URL, f.Err))
	}
	return fmt.Sprintf("nfce: %s: ningún endpoint respondió (%s)", e.Operation, strings.Join(parts, "; "))
}

// Unwrap expone el último error para que errors.Is(ctx.Err()) funcione.
func (e *TransportError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport || target == ErrUnavailable
}

// RejectionError la SEFAZ devolvió un cStat definitivo distinto del esperado.
// Reason es el xMotivo tal cual.
type RejectionError struct {
	Code   string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("nfce: SEFAZ rechazó (cStat %s): %s", e.Code, e.Reason)
}

func (e *RejectionError) Is(target error) bool { return target == ErrRejected }

// ParseError el cuerpo de respuesta no es XML válido o no trae los campos esperados.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nfce: respuesta inválida: %s: %v", e.Reason, e.Err)
	}
	return "nfce: respuesta inválida: " + e.Reason
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ── Categorías para el operador ──────────────────────────────────────────────

// Categorías de falla expuestas al operador.
const (
	CategoryValidation  = "validation"
	CategoryDocument    = "document"
	CategoryCertificate = "certificate"
	CategorySignature   = "signature"
	CategoryTransport   = "transport"
	CategoryRejection   = "rejection"
	CategoryParse       = "parse"
	CategoryInternal    = "internal"
)

// Category clasifica cualquier error del pipeline.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRejected):
		return CategoryRejection
	case errors.Is(err, ErrTransport):
		return CategoryTransport
	case errors.Is(err, ErrParse):
		return CategoryParse
	case errors.Is(err, ErrCertificate):
		return CategoryCertificate
	case errors.Is(err, ErrSignature):
		return CategorySignature
	case errors.Is(err, ErrDocumentBuild):
		return CategoryDocument
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	}
	return CategoryInternal
}

// OperatorMessage texto legible según la categoría. Para rechazos incluye el xMotivo literal.
func OperatorMessage(err error) string {
	switch Category(err) {
	case CategoryRejection:
		var rej *RejectionError
		if errors.As(err, &rej) {
			return fmt.Sprintf("La SEFAZ rechazó el documento (cStat %s): %s", rej.Code, rej.Reason)
		}
		return "La SEFAZ rechazó el documento"
	case CategoryTransport:
		return "No fue posible comunicarse con la SEFAZ; intente nuevamente más tarde"
	case CategoryParse:
		return "La SEFAZ devolvió una respuesta que no se pudo interpretar"
	case CategoryCertificate:
		if errors.Is(err, ErrCertificateNotFound) {
			return "El certificado digital no se encontró en la ruta configurada"
		}
		return "El certificado digital es inválido o la contraseña es incorrecta"
	case CategorySignature:
		return "No fue posible firmar el documento: " + err.Error()
	case CategoryDocument:
		return "Faltan datos para generar el documento: " + err.Error()
	case CategoryValidation:
		return "Datos inválidos: " + err.Error()
	case "":
		return ""
	}
	return "Error interno: " + err.Error()
}
