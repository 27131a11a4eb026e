// nfce_check diagnóstico local de la emisión NFC-e, sin tocar la base ni la SEFAZ.
//
// Uso:
//
//	go run ./cmd/nfce_check cert                 certificado configurado (NFCE_CERT_PATH)
//	go run ./cmd/nfce_check verify <archivo.xml> firma y QR Code de un XML firmado
//	go run ./cmd/nfce_check key <chave>          descompone una chave de acesso
//	go run ./cmd/nfce_check compare <a.xml> <b.xml> compara dos XML por su forma canónica
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/beevik/etree"

	domainnfce "github.com/janssengh/ouvirtiba/internal/domain/nfce"
	infranfce "github.com/janssengh/ouvirtiba/internal/infrastructure/nfce"
	"github.com/janssengh/ouvirtiba/internal/infrastructure/nfce/signer"
	"github.com/janssengh/ouvirtiba/pkg/config"
	"github.com/janssengh/ouvirtiba/pkg/logger"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

func main() {
	log := logger.New(logger.Config{Env: "development", Level: "info", Service: "nfce_check"})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "cert":
		err = checkCert()
	case "verify":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		err = verify(os.Args[2])
	case "key":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		err = describeKey(os.Args[2])
	case "compare":
		if len(os.Args) < 4 {
			usage()
			os.Exit(2)
		}
		err = compare(os.Args[2], os.Args[3])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("category", nfce.Category(err)).Msg(nfce.OperatorMessage(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "uso: nfce_check cert | verify <archivo.xml> | key <chave> | compare <a.xml> <b.xml>")
}

// checkCert carga el PKCS#12 configurado. La contraseña nunca se imprime.
func checkCert() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	bundle, err := signer.FileSource{Path: cfg.NFCe.CertPath, Password: cfg.NFCe.CertPassword}.Load()
	if err != nil {
		return err
	}
	defer bundle.Release()

	leaf := bundle.Leaf
	fmt.Printf("Archivo:   %s\n", cfg.NFCe.CertPath)
	fmt.Printf("Titular:   %s\n", leaf.Subject.String())
	fmt.Printf("Emisor:    %s\n", leaf.Issuer.String())
	fmt.Printf("Serie:     %s\n", leaf.SerialNumber.String())
	fmt.Printf("Vigencia:  %s a %s\n", leaf.NotBefore.Format(time.DateOnly), leaf.NotAfter.Format(time.DateOnly))
	fmt.Printf("Cadena:    %d certificado(s)\n", len(bundle.Chain))
	if time.Now().After(leaf.NotAfter) {
		fmt.Println("ATENCIÓN: el certificado está vencido")
	}
	return nil
}

var encodingDecl = regexp.MustCompile(`(?i)encoding=["']([^"']+)["']`)

// verify revisa la firma XML-DSig y el QR Code de un NFC-e firmado.
func verify(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw, err = toUTF8(raw)
	if err != nil {
		return &nfce.ParseError{Reason: "codificación del archivo", Err: err}
	}

	res, err := signer.Validate(raw)
	if err != nil {
		return err
	}
	fmt.Printf("Referencia:  %s\n", res.Reference)
	fmt.Printf("Digest:      %s (válido: %t)\n", res.DigestAlgorithm, res.DigestValid)
	fmt.Printf("Firma:       %s (válida: %t)\n", res.SignatureAlgorithm, res.SignatureValid)
	fmt.Printf("Certificado: %s (vence %s)\n", res.Subject, res.NotAfter.Format(time.DateOnly))
	if !res.Valid {
		fmt.Printf("FIRMA INVÁLIDA: %s\n", res.Reason)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return &nfce.ParseError{Reason: "releer XML", Err: err}
	}
	qr := doc.FindElement("//infNFeSupl/qrCode")
	if qr == nil {
		fmt.Println("QR Code:     ausente")
		return nil
	}
	check := domainnfce.ValidateQRCodeURL(strings.TrimSpace(qr.Text()), nfce.QRCodeVersion)
	if check.Valid {
		fmt.Println("QR Code:     válido")
	} else {
		fmt.Printf("QR Code:     inválido (%s): %s\n", check.Check, check.Message)
	}
	return nil
}

// toUTF8 convierte archivos declarados en ISO-8859-1 y ajusta la declaración.
func toUTF8(raw []byte) ([]byte, error) {
	head := raw
	if len(head) > 200 {
		head = head[:200]
	}
	m := encodingDecl.FindSubmatch(head)
	if m == nil {
		return raw, nil
	}
	r, err := infranfce.CharsetReader(string(m[1]), bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	loc := encodingDecl.FindIndex(out)
	if loc == nil {
		return out, nil
	}
	fixed := make([]byte, 0, len(out))
	fixed = append(fixed, out[:loc[0]]...)
	fixed = append(fixed, `encoding="UTF-8"`...)
	return append(fixed, out[loc[1]:]...), nil
}

// compare informa si dos XML son el mismo documento (p. ej. el firmado guardado y el
// descargado del portal de la SEFAZ).
func compare(pathA, pathB string) error {
	a, err := os.ReadFile(pathA)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(pathB)
	if err != nil {
		return err
	}
	same, err := infranfce.SameDocument(a, b)
	if err != nil {
		return &nfce.ParseError{Reason: "forma canónica", Err: err}
	}
	if same {
		fmt.Println("Documentos equivalentes")
		return nil
	}
	fmt.Println("Los documentos difieren")
	return nil
}

func describeKey(key string) error {
	key = strings.ReplaceAll(strings.TrimSpace(key), " ", "")
	p, err := nfce.ParseAccessKey(key)
	if err != nil {
		return err
	}
	fmt.Printf("Chave:   %s\n", nfce.FormatAccessKey(key))
	fmt.Printf("UF:      %s (%s)\n", nfce.UFAbbreviation(p.UF), p.UF)
	fmt.Printf("AAMM:    %s\n", p.YearMonth)
	fmt.Printf("CNPJ:    %s\n", p.CNPJ)
	fmt.Printf("Modelo:  %s\n", p.Model)
	fmt.Printf("Serie:   %s\n", p.Series)
	fmt.Printf("Número:  %s\n", p.Number)
	fmt.Printf("cNF:     %s\n", nfce.CNF(key))
	return nil
}
