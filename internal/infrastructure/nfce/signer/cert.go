// Carga del certificado A1 desde PKCS#12 (.pfx/.p12).

package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// LoadBundle lee el PKCS#12 y devuelve llave RSA, certificado hoja y cadena.
// Se llama por operación; el llamador debe invocar Release al terminar.
func LoadBundle(path, password string) (*nfce.CertificateBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &nfce.CertificateError{Kind: nfce.CertificateNotFound, Path: path, Err: err}
		}
		return nil, &nfce.CertificateError{Kind: nfce.CertificateInvalid, Path: path, Err: err}
	}
	return DecodeBundle(data, password, path)
}

// DecodeBundle decodifica el contenido de un PKCS#12 ya leído. path solo se usa en los errores.
// Acepta el formato legado (3DES/RC2) y el PBES2/AES que OpenSSL 3 genera por defecto.
func DecodeBundle(data []byte, password, path string) (*nfce.CertificateBundle, error) {
	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		var notImpl pkcs12.NotImplementedError
		if errors.As(err, &notImpl) {
			return nil, &nfce.CertificateError{Kind: nfce.CertificateInvalid, Path: path, Err: err}
		}
		// contraseña incorrecta o contenedor ilegible se reportan igual
		return nil, &nfce.CertificateError{Kind: nfce.CertificateInvalidCredentials, Path: path, Err: err}
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, &nfce.CertificateError{Kind: nfce.CertificateInvalid, Path: path,
			Err: fmt.Errorf("la llave privada no es RSA (%T)", key)}
	}
	return NewBundle(rsaKey, append([]*x509.Certificate{leaf}, chain...), path)
}

// NewBundle identifica la hoja (el certificado de la llave) y deja el resto como cadena.
func NewBundle(key *rsa.PrivateKey, certs []*x509.Certificate, path string) (*nfce.CertificateBundle, error) {
	bundle := &nfce.CertificateBundle{PrivateKey: key}
	for _, c := range certs {
		pub, ok := c.PublicKey.(*rsa.PublicKey)
		if ok && bundle.Leaf == nil && pub.Equal(&key.PublicKey) {
			bundle.Leaf = c
			continue
		}
		bundle.Chain = append(bundle.Chain, c)
	}
	if bundle.Leaf == nil {
		return nil, &nfce.CertificateError{Kind: nfce.CertificateInvalid, Path: path,
			Err: errors.New("ningún certificado corresponde a la llave privada")}
	}
	return bundle, nil
}

// FileSource carga el PKCS#12 del disco en cada llamada; nada queda en memoria entre operaciones.
type FileSource struct {
	Path     string
	Password string
}

// Load implementa la fuente de certificado del pipeline.
func (s FileSource) Load() (*nfce.CertificateBundle, error) {
	if s.Path == "" {
		return nil, &nfce.CertificateError{Kind: nfce.CertificateNotFound, Err: errors.New("NFCE_CERT_PATH vacío")}
	}
	return LoadBundle(s.Path, s.Password)
}
