package nfce_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// ──────────────────────────────────────────────────────────────────────────────
// Vector de referencia calculado a mano (módulo 11, pesos 2..9 desde la derecha):
//
//	base = 42 2510 56154376000105 65 001 000000123 123456781
//	DV   = 4
// ──────────────────────────────────────────────────────────────────────────────

func buildTestKeyParams() nfce.AccessKeyParams {
	return nfce.AccessKeyParams{
		UF:        "42",
		YearMonth: "2510",
		CNPJ:      "56.154.376/0001-05",
		Model:     nfce.ModelNFCe,
		Series:    "1",
		Number:    "123",
		Code:      "123456781",
	}
}

func TestGenerateAccessKey_VectorConocido(t *testing.T) {
	key, err := nfce.GenerateAccessKey(buildTestKeyParams())
	require.NoError(t, err)
	assert.Equal(t, "42251056154376000105650010000001231234567814", key)
	assert.Len(t, key, nfce.AccessKeyLength)
}

func TestGenerateAccessKey_DVCeroCuandoRestoEsMenorQueDos(t *testing.T) {
	p := buildTestKeyParams()
	p.Number = "5" // 11 - (suma mod 11) = 11 -> DV 0
	key, err := nfce.GenerateAccessKey(p)
	require.NoError(t, err)
	assert.Equal(t, "42251056154376000105650010000000051234567810", key)
}

func TestGenerateAccessKey_Determinista(t *testing.T) {
	k1, err1 := nfce.GenerateAccessKey(buildTestKeyParams())
	k2, err2 := nfce.GenerateAccessKey(buildTestKeyParams())
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, k1, k2)
}

func TestGenerateAccessKey_CamposFueraDeAncho(t *testing.T) {
	cases := map[string]func(p *nfce.AccessKeyParams){
		"serie larga":     func(p *nfce.AccessKeyParams) { p.Series = "1000" },
		"numero largo":    func(p *nfce.AccessKeyParams) { p.Number = "1234567890" },
		"cnpj con letras": func(p *nfce.AccessKeyParams) { p.CNPJ = "ABC" },
		"uf vacía":        func(p *nfce.AccessKeyParams) { p.UF = "" },
		"codigo largo":    func(p *nfce.AccessKeyParams) { p.Code = "1234567890" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := buildTestKeyParams()
			mutate(&p)
			_, err := nfce.GenerateAccessKey(p)
			require.Error(t, err)
			var verr *nfce.ValidationError
			assert.True(t, errors.As(err, &verr), "debe ser ValidationError: %v", err)
			assert.ErrorIs(t, err, nfce.ErrValidation)
		})
	}
}

func TestAccessKeyChecksum_SiempreUnDigito(t *testing.T) {
	bases := []string{
		strings.Repeat("0", 43),
		strings.Repeat("9", 43),
		"4225105615437600010565001000000123123456781",
		"4225015615437600010565001000000001250001234",
	}
	for _, b := range bases {
		dv, err := nfce.AccessKeyChecksum(b)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, dv, 0)
		assert.LessOrEqual(t, dv, 9)
		again, _ := nfce.AccessKeyChecksum(b)
		assert.Equal(t, dv, again)
	}

	_, err := nfce.AccessKeyChecksum("123")
	assert.ErrorIs(t, err, nfce.ErrValidation)
}

func TestParseAccessKey_RecuperaCampos(t *testing.T) {
	key, err := nfce.GenerateAccessKey(buildTestKeyParams())
	require.NoError(t, err)

	p, err := nfce.ParseAccessKey(key)
	require.NoError(t, err)
	assert.Equal(t, "42", p.UF)
	assert.Equal(t, "2510", p.YearMonth)
	assert.Equal(t, "56154376000105", p.CNPJ)
	assert.Equal(t, "65", p.Model)
	assert.Equal(t, "001", p.Series)
	assert.Equal(t, "000000123", p.Number)
	assert.Equal(t, "123456781", p.Code)
	assert.Equal(t, "12345678", nfce.CNF(key))
}

func TestValidateAccessKey_DVIncorrecto(t *testing.T) {
	err := nfce.ValidateAccessKey("42250156154376000105650010000000012500012345")
	assert.ErrorIs(t, err, nfce.ErrValidation)

	err = nfce.ValidateAccessKey("4225")
	assert.ErrorIs(t, err, nfce.ErrValidation)
}

func TestFormatAccessKey_BloquesDeCuatro(t *testing.T) {
	got := nfce.FormatAccessKey("42251012345678000123650010000000011000012345")
	assert.Equal(t, "4225 1012 3456 7800 0123 6500 1000 0000 0110 0001 2345", got)
	assert.Equal(t, "", nfce.FormatAccessKey(""))
}

func TestYearMonthYControlCode(t *testing.T) {
	assert.Equal(t, "2510", nfce.YearMonth(time.Date(2025, 10, 27, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, "000123451", nfce.ControlCode(12345, 1))
}

func TestUFCode(t *testing.T) {
	code, err := nfce.UFCode("sc")
	require.NoError(t, err)
	assert.Equal(t, "42", code)

	_, err = nfce.UFCode("XX")
	assert.ErrorIs(t, err, nfce.ErrValidation)

	assert.Equal(t, "SC", nfce.UFAbbreviation("42"))
	assert.Empty(t, nfce.UFAbbreviation("99"))
}
