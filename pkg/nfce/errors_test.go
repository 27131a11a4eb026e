package nfce_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

func TestCategory_DistingueCadaFalla(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&nfce.ValidationError{Field: "chave", Reason: "x"}, nfce.CategoryValidation},
		{&nfce.DocumentBuildError{Reason: "sin chave"}, nfce.CategoryDocument},
		{&nfce.CertificateError{Kind: nfce.CertificateInvalidCredentials}, nfce.CategoryCertificate},
		{&nfce.SignatureError{Reason: "rsa"}, nfce.CategorySignature},
		{&nfce.MissingReferenceError{Element: "infNFe"}, nfce.CategorySignature},
		{&nfce.TransportError{Operation: "autorizacion"}, nfce.CategoryTransport},
		{&nfce.RejectionError{Code: "110", Reason: "Uso Denegado"}, nfce.CategoryRejection},
		{&nfce.ParseError{Reason: "xml"}, nfce.CategoryParse},
		{errors.New("otro"), nfce.CategoryInternal},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("pipeline: %w", c.err)
		assert.Equal(t, c.want, nfce.Category(wrapped), "%T", c.err)
	}
	assert.Equal(t, "", nfce.Category(nil))
}

func TestOperatorMessage_RechazoConservaXMotivo(t *testing.T) {
	err := fmt.Errorf("transmitir: %w", &nfce.RejectionError{Code: "110", Reason: "Rejeição: Uso Denegado"})
	msg := nfce.OperatorMessage(err)
	assert.Contains(t, msg, "Rejeição: Uso Denegado")
	assert.Contains(t, msg, "110")
}

func TestOperatorMessage_MensajesDiferentes(t *testing.T) {
	rejection := nfce.OperatorMessage(&nfce.RejectionError{Code: "999", Reason: "x"})
	transport := nfce.OperatorMessage(&nfce.TransportError{Operation: "autorizacion"})
	certificate := nfce.OperatorMessage(&nfce.CertificateError{Kind: nfce.CertificateInvalidCredentials})
	assert.NotEqual(t, rejection, transport)
	assert.NotEqual(t, transport, certificate)
	assert.NotEqual(t, rejection, certificate)

	notFound := nfce.OperatorMessage(&nfce.CertificateError{Kind: nfce.CertificateNotFound, Path: "/x.pfx"})
	assert.NotEqual(t, certificate, notFound)
}

func TestCertificateError_Sentinelas(t *testing.T) {
	err := &nfce.CertificateError{Kind: nfce.CertificateNotFound, Path: "a.pfx"}
	assert.ErrorIs(t, err, nfce.ErrCertificateNotFound)
	assert.ErrorIs(t, err, nfce.ErrCertificate)
	assert.NotErrorIs(t, err, nfce.ErrInvalidCredentials)
}

func TestTransportError_UnwrapUltimaFalla(t *testing.T) {
	err := &nfce.TransportError{
		Operation: "autorizacion",
		Failures: []nfce.EndpointFailure{
			{URL: "https://a", Err: errors.New("connection refused")},
			{URL: "https://b", Err: context.DeadlineExceeded},
		},
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, nfce.ErrUnavailable)
	assert.Contains(t, err.Error(), "https://a")
	assert.Contains(t, err.Error(), "https://b")
}

func TestParseEnvironment(t *testing.T) {
	env, err := nfce.ParseEnvironment("")
	require.NoError(t, err)
	assert.Equal(t, nfce.Homologation, env, "el valor por defecto nunca es producción")

	env, err = nfce.ParseEnvironment("1")
	require.NoError(t, err)
	assert.Equal(t, nfce.Production, env)
	assert.Equal(t, "1", env.Code())

	env, err = nfce.ParseEnvironment("Homologation")
	require.NoError(t, err)
	assert.Equal(t, "2", env.Code())

	_, err = nfce.ParseEnvironment("3")
	assert.ErrorIs(t, err, nfce.ErrValidation)
}

func TestEndpointsPorAmbiente(t *testing.T) {
	assert.Equal(t, []string{nfce.AuthorizationURLProduction}, nfce.AuthorizationURLs(nfce.Production))
	assert.Equal(t, []string{nfce.AuthorizationURLHomologation}, nfce.AuthorizationURLs(nfce.Homologation))
	assert.Equal(t, nfce.QRCodeBaseURLHomologation, nfce.QRCodeBaseURL(nfce.Homologation))
	assert.Equal(t, nfce.QRCodeBaseURLProduction, nfce.QRCodeBaseURL(nfce.Production))
}
