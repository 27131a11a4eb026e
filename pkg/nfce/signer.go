package nfce

// Signer firma el infNFe de un documento y devuelve el XML con <Signature> insertada
// después de infNFe y antes de infNFeSupl.
type Signer interface {
	Sign(xmlBytes []byte, bundle *CertificateBundle) ([]byte, error)
}
