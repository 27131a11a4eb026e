package nfce

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"math/big"
)

// CertificateBundle llave privada, certificado hoja y cadena opcional de un PKCS#12 (A1).
// Se carga por operación y se libera al terminar; no se guarda en estado compartido.
type CertificateBundle struct {
	PrivateKey *rsa.PrivateKey
	Leaf       *x509.Certificate
	Chain      []*x509.Certificate
}

// TLSCertificate arma el certificado cliente para mTLS en memoria (sin archivos temporales).
func (b *CertificateBundle) TLSCertificate(includeChain bool) tls.Certificate {
	if b == nil || b.Leaf == nil {
		return tls.Certificate{}
	}
	der := [][]byte{b.Leaf.Raw}
	if includeChain {
		for _, c := range b.Chain {
			der = append(der, c.Raw)
		}
	}
	return tls.Certificate{
		Certificate: der,
		PrivateKey:  b.PrivateKey,
		Leaf:        b.Leaf,
	}
}

// Release borra los valores privados de la llave, incluidos los precalculados para CRT.
func (b *CertificateBundle) Release() {
	if b == nil || b.PrivateKey == nil {
		return
	}
	zero(b.PrivateKey.D)
	for _, p := range b.PrivateKey.Primes {
		zero(p)
	}
	pre := &b.PrivateKey.Precomputed
	zero(pre.Dp)
	zero(pre.Dq)
	zero(pre.Qinv)
	for _, v := range pre.CRTValues {
		zero(v.Exp)
		zero(v.Coeff)
		zero(v.R)
	}
	b.PrivateKey = nil
}

func zero(n *big.Int) {
	if n != nil {
		n.SetInt64(0)
	}
}
