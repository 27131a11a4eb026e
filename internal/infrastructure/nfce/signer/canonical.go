package signer

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// Canonicalize serializa el subárbol en forma canónica. El canonicalizador trabaja sobre
// una copia desprendida, por eso el namespace heredado (ns) se declara explícitamente en ella.
func Canonicalize(el *etree.Element, mode C14NMode, ns string) ([]byte, error) {
	if el == nil {
		return nil, fmt.Errorf("canonicalizar: elemento nulo")
	}
	cp := el.Copy()
	if ns != "" && cp.SelectAttr("xmlns") == nil {
		cp.CreateAttr("xmlns", ns)
	}
	canon, err := canonicalizer(mode).Canonicalize(cp)
	if err != nil {
		return nil, fmt.Errorf("canonicalizar <%s>: %w", el.Tag, err)
	}
	return canon, nil
}

func canonicalizer(mode C14NMode) dsig.Canonicalizer {
	if mode == C14NExclusive {
		return dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	}
	return dsig.MakeC14N10RecCanonicalizer()
}

// Digest devuelve el resumen en base64.
func Digest(data []byte, alg DigestAlgorithm) (string, error) {
	switch alg {
	case DigestSHA1, "":
		sum := sha1.Sum(data)
		return base64.StdEncoding.EncodeToString(sum[:]), nil
	case DigestSHA256:
		sum := sha256.Sum256(data)
		return base64.StdEncoding.EncodeToString(sum[:]), nil
	}
	return "", fmt.Errorf("algoritmo de digest no soportado: %q", alg)
}

func (d DigestAlgorithm) hash() crypto.Hash {
	if d == DigestSHA256 {
		return crypto.SHA256
	}
	return crypto.SHA1
}

func (d DigestAlgorithm) digestURI() string {
	if d == DigestSHA256 {
		return AlgSHA256
	}
	return AlgSHA1
}

func (d DigestAlgorithm) signatureURI() string {
	if d == DigestSHA256 {
		return AlgRSASHA256
	}
	return AlgRSASHA1
}

func (m C14NMode) uri() string {
	if m == C14NExclusive {
		return AlgExcC14N
	}
	return AlgC14N
}

// ParseDigest acepta "sha1", "sha256" o vacío (sha1).
func ParseDigest(s string) (DigestAlgorithm, error) {
	switch DigestAlgorithm(s) {
	case "", DigestSHA1:
		return DigestSHA1, nil
	case DigestSHA256:
		return DigestSHA256, nil
	}
	return "", fmt.Errorf("digest %q no soportado", s)
}

// ParseC14NMode acepta "inclusive", "exclusive" o vacío (inclusive).
func ParseC14NMode(s string) (C14NMode, error) {
	switch C14NMode(s) {
	case "", C14NInclusive:
		return C14NInclusive, nil
	case C14NExclusive:
		return C14NExclusive, nil
	}
	return "", fmt.Errorf("canonicalización %q no soportada", s)
}

// digestFromURI / modeFromURI traducen los algoritmos declarados en una firma existente.
func digestFromURI(uri string) (DigestAlgorithm, bool) {
	switch uri {
	case AlgSHA1:
		return DigestSHA1, true
	case AlgSHA256:
		return DigestSHA256, true
	}
	return "", false
}

func signatureDigestFromURI(uri string) (DigestAlgorithm, bool) {
	switch uri {
	case AlgRSASHA1:
		return DigestSHA1, true
	case AlgRSASHA256:
		return DigestSHA256, true
	}
	return "", false
}

func modeFromURI(uri string) (C14NMode, bool) {
	switch uri {
	case AlgC14N:
		return C14NInclusive, true
	case AlgExcC14N:
		return C14NExclusive, true
	}
	return "", false
}
