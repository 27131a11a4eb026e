package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// ValidationResult resultado de la verificación criptográfica de la firma.
type ValidationResult struct {
	Valid              bool      `json:"valid"`
	DigestValid        bool      `json:"digest_valid"`
	SignatureValid     bool      `json:"signature_valid"`
	Reference          string    `json:"reference"`
	DigestAlgorithm    string    `json:"digest_algorithm"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	Subject            string    `json:"subject"`
	NotAfter           time.Time `json:"not_after"`
	Reason             string    `json:"reason,omitempty"`
}

// CheckStructure verifica que exista una única <Signature> completa, que apunte al Id del
// infNFe y que esté entre infNFe e infNFeSupl. No hace verificación criptográfica.
func CheckStructure(xmlBytes []byte) error {
	_, err := locate(xmlBytes)
	return err
}

type located struct {
	signature  *etree.Element
	signedInfo *etree.Element
	reference  *etree.Element
	target     *etree.Element
	sigValue   string
	digest     string
	certB64    string
}

func locate(xmlBytes []byte) (*located, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, &nfce.SignatureError{Reason: "parsear XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &nfce.SignatureError{Reason: "documento sin raíz"}
	}
	sigs := root.SelectElements(signatureTag)
	if len(sigs) == 0 {
		return nil, &nfce.SignatureError{Reason: "firma no encontrada"}
	}
	if len(sigs) > 1 {
		return nil, &nfce.SignatureError{Reason: fmt.Sprintf("hay %d firmas, se admite una", len(sigs))}
	}
	l := &located{signature: sigs[0]}

	l.signedInfo = l.signature.SelectElement("SignedInfo")
	if l.signedInfo == nil {
		return nil, &nfce.SignatureError{Reason: "SignedInfo no encontrado"}
	}
	l.reference = l.signedInfo.SelectElement("Reference")
	if l.reference == nil {
		return nil, &nfce.SignatureError{Reason: "Reference no encontrado"}
	}
	if l.sigValue = textOf(l.signature.SelectElement("SignatureValue")); l.sigValue == "" {
		return nil, &nfce.SignatureError{Reason: "SignatureValue vacío"}
	}
	if l.digest = textOf(l.reference.SelectElement("DigestValue")); l.digest == "" {
		return nil, &nfce.SignatureError{Reason: "DigestValue vacío"}
	}
	if l.certB64 = textOf(l.signature.FindElement("./KeyInfo/X509Data/X509Certificate")); l.certB64 == "" {
		return nil, &nfce.SignatureError{Reason: "certificado X509 no encontrado"}
	}

	uri := l.reference.SelectAttrValue("URI", "")
	id := strings.TrimPrefix(uri, "#")
	if id == "" || id == uri {
		return nil, &nfce.SignatureError{Reason: fmt.Sprintf("URI de referencia inválida: %q", uri)}
	}
	inf := root.SelectElement(signedElement)
	if inf == nil || inf.SelectAttrValue("Id", "") != id {
		return nil, &nfce.MissingReferenceError{Element: signedElement, ID: id}
	}
	l.target = inf

	if l.signature.Index() < inf.Index() {
		return nil, &nfce.SignatureError{Reason: "la firma debe ir después de infNFe"}
	}
	if supl := root.SelectElement(supplementTag); supl != nil && supl.Index() < l.signature.Index() {
		return nil, &nfce.SignatureError{Reason: "la firma debe ir antes de infNFeSupl"}
	}
	return l, nil
}

// Validate recalcula el digest del elemento referenciado y verifica la firma RSA con el
// certificado embebido. Errores estructurales devuelven error; una firma que no confiere
// devuelve Valid=false con Reason.
func Validate(xmlBytes []byte) (*ValidationResult, error) {
	l, err := locate(xmlBytes)
	if err != nil {
		return nil, err
	}
	res := &ValidationResult{Reference: l.reference.SelectAttrValue("URI", "")}

	der, err := base64.StdEncoding.DecodeString(stripSpaces(l.certB64))
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "X509Certificate no es base64", Err: err}
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "X509Certificate ilegible", Err: err}
	}
	res.Subject = cert.Subject.String()
	res.NotAfter = cert.NotAfter
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, &nfce.SignatureError{Reason: "el certificado no tiene llave RSA"}
	}

	// Reference: enveloped + c14n declarada
	digestURI := attrOf(l.reference.SelectElement("DigestMethod"), "Algorithm")
	digestAlg, ok := digestFromURI(digestURI)
	if !ok {
		return nil, &nfce.SignatureError{Reason: fmt.Sprintf("DigestMethod no soportado: %s", digestURI)}
	}
	res.DigestAlgorithm = string(digestAlg)
	mode := C14NInclusive
	for _, tr := range l.reference.FindElements("./Transforms/Transform") {
		if m, ok := modeFromURI(attrOf(tr, "Algorithm")); ok {
			mode = m
		}
	}

	target := l.target.Copy()
	for _, inner := range target.SelectElements(signatureTag) {
		target.RemoveChild(inner)
	}
	canon, err := Canonicalize(target, mode, namespaceOf(l.target, nfce.Namespace))
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "canonicalizar referencia", Err: err}
	}
	computed, err := Digest(canon, digestAlg)
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "digest", Err: err}
	}
	res.DigestValid = computed == stripSpaces(l.digest)

	// SignedInfo
	sigURI := attrOf(l.signedInfo.SelectElement("SignatureMethod"), "Algorithm")
	sigAlg, ok := signatureDigestFromURI(sigURI)
	if !ok {
		return nil, &nfce.SignatureError{Reason: fmt.Sprintf("SignatureMethod no soportado: %s", sigURI)}
	}
	res.SignatureAlgorithm = sigURI
	siMode := C14NInclusive
	if m, ok := modeFromURI(attrOf(l.signedInfo.SelectElement("CanonicalizationMethod"), "Algorithm")); ok {
		siMode = m
	}
	canonSI, err := Canonicalize(l.signedInfo, siMode, namespaceOf(l.signedInfo, NamespaceDS))
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "canonicalizar SignedInfo", Err: err}
	}
	sigBytes, err := base64.StdEncoding.DecodeString(stripSpaces(l.sigValue))
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "SignatureValue no es base64", Err: err}
	}
	h := sigAlg.hash().New()
	h.Write(canonSI)
	res.SignatureValid = rsa.VerifyPKCS1v15(pub, sigAlg.hash(), h.Sum(nil), sigBytes) == nil

	res.Valid = res.DigestValid && res.SignatureValid
	switch {
	case !res.DigestValid:
		res.Reason = "el digest no coincide: el contenido firmado fue modificado"
	case !res.SignatureValid:
		res.Reason = "SignatureValue no corresponde al SignedInfo con el certificado embebido"
	}
	return res, nil
}

func textOf(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

func attrOf(el *etree.Element, key string) string {
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(key, "")
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
