package nfce_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainnfce "github.com/janssengh/ouvirtiba/internal/domain/nfce"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

const (
	testKey      = "42250156154376000105650010000000012500012345"
	testCSCID    = "000001"
	testCSCToken = "1A2B3C4D5E6F7G8H9I0J"
)

func pParam(t *testing.T, raw string) []string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return strings.Split(u.Query().Get("p"), "|")
}

// ── Generación ───────────────────────────────────────────────────────────────

func TestGenerateQRCodeURL_Escenario(t *testing.T) {
	raw, err := domainnfce.GenerateQRCodeURL(domainnfce.QRCodeParams{
		AccessKey:   testKey,
		Environment: nfce.Homologation,
		CSCID:       testCSCID,
		CSCToken:    testCSCToken,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, nfce.QRCodeBaseURLHomologation+"?p="))
	fields := pParam(t, raw)
	require.Len(t, fields, 5)
	assert.Equal(t, testKey, fields[0])
	assert.Equal(t, "2", fields[1])
	assert.Equal(t, "2", fields[2])
	assert.Equal(t, testCSCID, fields[3])
	assert.Len(t, fields[4], 40)
	assert.Equal(t, strings.ToUpper(fields[4]), fields[4], "hash en mayúsculas")
}

func TestGenerateQRCodeURL_TokenSoloEnHash(t *testing.T) {
	raw, err := domainnfce.GenerateQRCodeURL(domainnfce.QRCodeParams{
		AccessKey: testKey, Environment: nfce.Homologation, CSCID: testCSCID, CSCToken: testCSCToken,
	})
	require.NoError(t, err)

	assert.NotContains(t, raw, testCSCToken, "el CSC nunca debe aparecer en la URL")
	expected := domainnfce.QRCodeHash(testKey + "|2|2|" + testCSCID + "|" + testCSCToken)
	assert.Equal(t, expected, pParam(t, raw)[4])
}

func TestGenerateQRCodeURL_Produccion(t *testing.T) {
	raw, err := domainnfce.GenerateQRCodeURL(domainnfce.QRCodeParams{
		AccessKey: testKey, Environment: nfce.Production, CSCID: testCSCID, CSCToken: testCSCToken,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, nfce.QRCodeBaseURLProduction+"?p="))
	assert.Equal(t, "1", pParam(t, raw)[2])
}

func TestGenerateQRCodeURL_EntradasInvalidas(t *testing.T) {
	cases := map[string]domainnfce.QRCodeParams{
		"chave 43 dígitos":  {AccessKey: testKey[:43], Environment: nfce.Homologation, CSCID: testCSCID, CSCToken: testCSCToken},
		"chave con letras":  {AccessKey: "A" + testKey[1:], Environment: nfce.Homologation, CSCID: testCSCID, CSCToken: testCSCToken},
		"ambiente inválido": {AccessKey: testKey, Environment: nfce.Environment(3), CSCID: testCSCID, CSCToken: testCSCToken},
		"sin csc id":        {AccessKey: testKey, Environment: nfce.Homologation, CSCToken: testCSCToken},
		"sin csc token":     {AccessKey: testKey, Environment: nfce.Homologation, CSCID: testCSCID},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domainnfce.GenerateQRCodeURL(params)
			require.Error(t, err)
			assert.ErrorIs(t, err, nfce.ErrValidation)
		})
	}
}

// ── Validación ───────────────────────────────────────────────────────────────

func TestValidateQRCodeURL_RoundTrip(t *testing.T) {
	for _, env := range []nfce.Environment{nfce.Production, nfce.Homologation} {
		raw, err := domainnfce.GenerateQRCodeURL(domainnfce.QRCodeParams{
			AccessKey: testKey, Environment: env, CSCID: testCSCID, CSCToken: testCSCToken,
		})
		require.NoError(t, err)

		res := domainnfce.ValidateQRCodeURL(raw, "")
		assert.True(t, res.Valid, res.Message)
		assert.Empty(t, res.Check)
	}
}

func TestValidateQRCodeURL_ReportaComprobacion(t *testing.T) {
	hash := strings.Repeat("A", 40)
	base := nfce.QRCodeBaseURLHomologation
	cases := []struct {
		name  string
		url   string
		check string
	}{
		{"sin p", base, domainnfce.QRCheckParam},
		{"pocos campos", base + "?p=" + testKey + "|2|2|" + hash, domainnfce.QRCheckFieldCount},
		{"chave corta", base + "?p=" + testKey[:43] + "|2|2|1|" + hash, domainnfce.QRCheckAccessKey},
		{"versión", base + "?p=" + testKey + "|3|2|1|" + hash, domainnfce.QRCheckVersion},
		{"ambiente", base + "?p=" + testKey + "|2|5|1|" + hash, domainnfce.QRCheckEnvironment},
		{"hash corto", base + "?p=" + testKey + "|2|2|1|ABC", domainnfce.QRCheckHash},
		{"hash no hex", base + "?p=" + testKey + "|2|2|1|" + strings.Repeat("Z", 40), domainnfce.QRCheckHash},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := domainnfce.ValidateQRCodeURL(tc.url, "2")
			assert.False(t, res.Valid)
			assert.Equal(t, tc.check, res.Check, res.Message)
		})
	}
}
