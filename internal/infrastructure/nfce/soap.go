package nfce

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

const (
	soapContentType = "application/soap+xml; charset=utf-8"

	// maxResponseBytes límite de lectura del cuerpo de respuesta de la SEFAZ.
	maxResponseBytes = 1 << 20
)

// TransportOptions configuración común de los clientes SOAP.
type TransportOptions struct {
	// Endpoints candidatos por ambiente; si falta el ambiente se usan los de pkg/nfce.
	Endpoints    map[nfce.Environment][]string
	Timeout      time.Duration
	IncludeChain bool
	// RootCAs nil = raíces del sistema.
	RootCAs *x509.CertPool
	Logger  zerolog.Logger
}

// soapTransport POST del sobre SOAP 1.2 contra la lista de candidatos, en orden.
type soapTransport struct {
	operation string
	endpoints map[nfce.Environment][]string
	defaults  func(nfce.Environment) []string
	timeout   time.Duration
	chain     bool
	rootCAs   *x509.CertPool
	log       zerolog.Logger
}

func newSOAPTransport(operation string, opts TransportOptions, defaults func(nfce.Environment) []string, defaultTimeout time.Duration) *soapTransport {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &soapTransport{
		operation: operation,
		endpoints: opts.Endpoints,
		defaults:  defaults,
		timeout:   timeout,
		chain:     opts.IncludeChain,
		rootCAs:   opts.RootCAs,
		log:       opts.Logger,
	}
}

func (t *soapTransport) urls(env nfce.Environment) []string {
	if urls := t.endpoints[env]; len(urls) > 0 {
		return urls
	}
	return t.defaults(env)
}

// httpClient cliente mTLS de una sola operación; el certificado vive solo en memoria.
func (t *soapTransport) httpClient(bundle *nfce.CertificateBundle) (*http.Client, *http.Transport) {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{bundle.TLSCertificate(t.chain)},
			RootCAs:      t.rootCAs,
		},
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: t.timeout}, tr
}

// post envía el sobre a cada candidato hasta que uno responda 2xx.
// Devuelve el cuerpo y la URL que respondió. Ningún candidato => *nfce.TransportError.
func (t *soapTransport) post(ctx context.Context, env nfce.Environment, bundle *nfce.CertificateBundle, envelope []byte) ([]byte, string, error) {
	if bundle == nil || bundle.Leaf == nil || bundle.PrivateKey == nil {
		return nil, "", &nfce.CertificateError{Kind: nfce.CertificateInvalid, Err: errors.New("sin llave o certificado para mTLS")}
	}
	client, tr := t.httpClient(bundle)
	defer tr.CloseIdleConnections()

	tErr := &nfce.TransportError{Operation: t.operation}
	for _, u := range t.urls(env) {
		if err := ctx.Err(); err != nil {
			tErr.Failures = append(tErr.Failures, nfce.EndpointFailure{URL: u, Err: err})
			break
		}
		body, err := t.postOnce(ctx, client, u, envelope)
		if err != nil {
			t.log.Warn().Err(err).Str("endpoint", u).Str("operation", t.operation).Msg("endpoint SEFAZ falló; probando siguiente")
			tErr.Failures = append(tErr.Failures, nfce.EndpointFailure{URL: u, Err: err})
			continue
		}
		t.log.Debug().Str("endpoint", u).Str("operation", t.operation).Int("bytes", len(body)).Msg("respuesta SEFAZ recibida")
		return body, u, nil
	}
	return nil, "", tErr
}

func (t *soapTransport) postOnce(ctx context.Context, client *http.Client, url string, envelope []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", soapContentType)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("leer respuesta: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, limit(strings.TrimSpace(string(body)), 200))
	}
	return body, nil
}

// buildEnvelope arma soap12:Envelope/soap12:Body/nfeDadosMsg con el payload como hijo.
func buildEnvelope(wsNamespace string, payload *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	env := doc.CreateElement("soap12:Envelope")
	env.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")
	env.CreateAttr("xmlns:xsd", "http://www.w3.org/2001/XMLSchema")
	env.CreateAttr("xmlns:soap12", nfce.NamespaceSOAP12)

	msg := env.CreateElement("soap12:Body").CreateElement("nfeDadosMsg")
	msg.CreateAttr("xmlns", wsNamespace)
	msg.AddChild(payload)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializar sobre SOAP: %w", err)
	}
	return out, nil
}

// CharsetReader decodifica respuestas declaradas en ISO-8859-1 (algunos WS de la SEFAZ lo hacen).
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return input, nil
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("charset no soportado: %s", label)
}

type soapFault struct {
	Code   string `xml:"Code>Value"`
	Reason string `xml:"Reason>Text"`
}

// decodeResult busca el elemento local en cualquier nivel del cuerpo y lo decodifica en out.
// Un Fault SOAP o la ausencia del elemento son *nfce.ParseError.
func decodeResult(body []byte, local string, out any) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = CharsetReader
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return &nfce.ParseError{Reason: fmt.Sprintf("<%s> no encontrado en la respuesta", local)}
		}
		if err != nil {
			return &nfce.ParseError{Reason: "XML mal formado", Err: err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case local:
			if err := dec.DecodeElement(out, &start); err != nil {
				return &nfce.ParseError{Reason: "decodificar <" + local + ">", Err: err}
			}
			return nil
		case "Fault":
			var f soapFault
			if err := dec.DecodeElement(&f, &start); err != nil {
				return &nfce.ParseError{Reason: "SOAP Fault ilegible", Err: err}
			}
			return &nfce.ParseError{Reason: fmt.Sprintf("SOAP Fault %s: %s", f.Code, strings.TrimSpace(f.Reason))}
		}
	}
}
