// Constantes XML-DSig usadas en la firma del infNFe.

package signer

import dsig "github.com/russellhaering/goxmldsig"

// Namespace y algoritmos XML-DSig.
const (
	NamespaceDS        = dsig.Namespace
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgExcC14N         = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// DigestAlgorithm algoritmo de resumen configurable.
type DigestAlgorithm string

const (
	DigestSHA1   DigestAlgorithm = "sha1"
	DigestSHA256 DigestAlgorithm = "sha256"
)

// C14NMode variante de canonicalización del infNFe.
type C14NMode string

const (
	C14NInclusive C14NMode = "inclusive"
	C14NExclusive C14NMode = "exclusive"
)

// Elemento firmado y su contenedor.
const (
	signedElement = "infNFe"
	signatureTag  = "Signature"
	supplementTag = "infNFeSupl"
)
