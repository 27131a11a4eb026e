// Package nfcetest ofrece certificados y documentos de prueba generados en memoria.
package nfcetest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// TestAccessKey chave con dígito verificador válido.
const TestAccessKey = "42251056154376000105650010000001231234567814"

// SampleNFe documento mínimo con infNFe e infNFeSupl, compacto (sin espacios entre elementos).
const SampleNFe = `<?xml version="1.0" encoding="utf-8"?>` +
	`<NFe xmlns="http://www.portalfiscal.inf.br/nfe">` +
	`<infNFe versao="4.00" Id="NFe` + TestAccessKey + `">` +
	`<ide><cUF>42</cUF><cNF>12345678</cNF><mod>65</mod><nNF>123</nNF></ide>` +
	`<emit><CNPJ>56154376000105</CNPJ><xNome>JANSSEN APARELHOS AUDITIVOS LTDA</xNome></emit>` +
	`<total><ICMSTot><vProd>3000.20</vProd><vNF>3000.20</vNF></ICMSTot></total>` +
	`</infNFe>` +
	`<infNFeSupl><qrCode><![CDATA[https://hom.sat.sef.sc.gov.br/nfce/consulta?p=` + TestAccessKey + `|2|2|000001|` +
	`0123456789ABCDEF0123456789ABCDEF01234567]]></qrCode>` +
	`<urlChave>https://sat.sef.sc.gov.br/nfce/consulta</urlChave></infNFeSupl>` +
	`</NFe>`

// NewKey genera una llave RSA de 2048 bits.
func NewKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generar llave: %v", err)
	}
	return key
}

// NewCertificate certificado autofirmado para la llave.
func NewCertificate(t testing.TB, key *rsa.PrivateKey, commonName string) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName, Organization: []string{"JANSSEN APARELHOS AUDITIVOS LTDA"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("crear certificado: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsear certificado: %v", err)
	}
	return cert
}

// NewBundle bundle A1 equivalente al que devuelve la carga del PKCS#12.
func NewBundle(t testing.TB) *nfce.CertificateBundle {
	t.Helper()
	key := NewKey(t)
	return &nfce.CertificateBundle{
		PrivateKey: key,
		Leaf:       NewCertificate(t, key, "JANSSEN APARELHOS AUDITIVOS LTDA:56154376000105"),
	}
}
