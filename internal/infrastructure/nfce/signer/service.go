// Firma XML-DSig enveloped del infNFe (NFC-e 4.00).
// La <Signature> queda como hija de <NFe>, después de infNFe y antes de infNFeSupl.

package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// Options variantes de la firma. Los valores cero equivalen a SHA-1 + C14N inclusiva.
type Options struct {
	Digest DigestAlgorithm
	C14N   C14NMode
	Logger zerolog.Logger
}

// Service implementa nfce.Signer.
type Service struct {
	digest DigestAlgorithm
	mode   C14NMode
	log    zerolog.Logger
}

var _ nfce.Signer = (*Service)(nil)

// NewService crea el servicio de firma.
func NewService(opts Options) *Service {
	if opts.Digest == "" {
		opts.Digest = DigestSHA1
	}
	if opts.C14N == "" {
		opts.C14N = C14NInclusive
	}
	return &Service{digest: opts.Digest, mode: opts.C14N, log: opts.Logger}
}

// Sign firma el infNFe con la llave del bundle. No persiste nada.
func (s *Service) Sign(xmlBytes []byte, bundle *nfce.CertificateBundle) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, &nfce.SignatureError{Reason: "XML vacío"}
	}
	if bundle == nil || bundle.PrivateKey == nil || bundle.Leaf == nil {
		return nil, &nfce.SignatureError{Reason: "el certificado debe incluir llave privada RSA y certificado hoja"}
	}

	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true // qrCode va en CDATA
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, &nfce.SignatureError{Reason: "parsear XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &nfce.SignatureError{Reason: "documento sin raíz"}
	}
	inf := root.SelectElement(signedElement)
	if inf == nil {
		return nil, &nfce.MissingReferenceError{Element: signedElement}
	}
	id := inf.SelectAttrValue("Id", "")
	if id == "" {
		return nil, &nfce.MissingReferenceError{Element: signedElement}
	}

	// una sola firma activa por documento
	for _, old := range root.SelectElements(signatureTag) {
		root.RemoveChild(old)
	}

	// 1) Digest del infNFe canónico (el enveloped no quita nada: la firma es hermana)
	canonInf, err := Canonicalize(inf, s.mode, namespaceOf(inf, nfce.Namespace))
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "canonicalizar infNFe", Err: err}
	}
	digestB64, err := Digest(canonInf, s.digest)
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "digest", Err: err}
	}

	// 2) SignedInfo
	sig := etree.NewElement(signatureTag)
	sig.CreateAttr("xmlns", NamespaceDS)
	signedInfo := s.buildSignedInfo(sig, "#"+id, digestB64)

	// 3) Firma del SignedInfo canónico (siempre C14N inclusiva)
	canonSI, err := Canonicalize(signedInfo, C14NInclusive, NamespaceDS)
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "canonicalizar SignedInfo", Err: err}
	}
	h := s.digest.hash().New()
	h.Write(canonSI)
	sigValue, err := rsa.SignPKCS1v15(rand.Reader, bundle.PrivateKey, s.digest.hash(), h.Sum(nil))
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "firmar SignedInfo", Err: err}
	}
	sig.CreateElement("SignatureValue").SetText(base64.StdEncoding.EncodeToString(sigValue))

	// 4) KeyInfo con el certificado hoja (DER en base64)
	x509Data := sig.CreateElement("KeyInfo").CreateElement("X509Data")
	x509Data.CreateElement("X509Certificate").SetText(base64.StdEncoding.EncodeToString(bundle.Leaf.Raw))

	// 5) Posición: después de infNFe, antes de infNFeSupl
	if supl := root.SelectElement(supplementTag); supl != nil {
		root.InsertChildAt(supl.Index(), sig)
	} else {
		root.AddChild(sig)
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, &nfce.SignatureError{Reason: "serializar XML firmado", Err: err}
	}
	s.log.Debug().
		Str("reference", id).
		Str("digest", string(s.digest)).
		Str("c14n", string(s.mode)).
		Str("certificate", describeCertificate(bundle)).
		Msg("infNFe firmado")
	return out, nil
}

func (s *Service) buildSignedInfo(sig *etree.Element, uri, digestB64 string) *etree.Element {
	si := sig.CreateElement("SignedInfo")
	si.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", AlgC14N)
	si.CreateElement("SignatureMethod").CreateAttr("Algorithm", s.digest.signatureURI())

	ref := si.CreateElement("Reference")
	ref.CreateAttr("URI", uri)
	transforms := ref.CreateElement("Transforms")
	transforms.CreateElement("Transform").CreateAttr("Algorithm", TransformEnveloped)
	transforms.CreateElement("Transform").CreateAttr("Algorithm", s.mode.uri())
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", s.digest.digestURI())
	ref.CreateElement("DigestValue").SetText(digestB64)
	return si
}

// namespaceOf devuelve el namespace por defecto vigente en el elemento.
func namespaceOf(el *etree.Element, fallback string) string {
	for e := el; e != nil; e = e.Parent() {
		if v := e.SelectAttrValue("xmlns", ""); v != "" {
			return v
		}
	}
	return fallback
}

// describeCertificate resumen para logs y diagnósticos (sin material privado).
func describeCertificate(b *nfce.CertificateBundle) string {
	if b == nil || b.Leaf == nil {
		return ""
	}
	return fmt.Sprintf("%s (válido hasta %s)", b.Leaf.Subject.CommonName, b.Leaf.NotAfter.Format("2006-01-02"))
}
