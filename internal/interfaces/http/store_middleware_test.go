package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "github.com/janssengh/ouvirtiba/internal/interfaces/http"
)

// storeApp devuelve en JSON el StoreContext cargado por el middleware.
func storeApp() *fiber.App {
	app := fiber.New()
	app.Get("/ctx", apphttp.StoreMiddleware(1), func(c *fiber.Ctx) error {
		sc := apphttp.GetStoreContext(c)
		return c.JSON(fiber.Map{"store_id": sc.StoreID, "series": sc.Series})
	})
	return app
}

func doStore(t *testing.T, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ctx", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := storeApp().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestStoreMiddleware_CargaTiendaYSeriePorDefecto(t *testing.T) {
	resp := doStore(t, map[string]string{apphttp.HeaderStoreID: "3"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body["store_id"])
	assert.Equal(t, 1, body["series"])
}

func TestStoreMiddleware_SerieDelHeader(t *testing.T) {
	resp := doStore(t, map[string]string{apphttp.HeaderStoreID: "3", apphttp.HeaderSeries: "7"})
	defer resp.Body.Close()

	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 7, body["series"])
}

func TestStoreMiddleware_Rechazos(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		code    string
	}{
		{"sin tienda", nil, "STORE_REQUIRED"},
		{"tienda no numérica", map[string]string{apphttp.HeaderStoreID: "abc"}, "STORE_REQUIRED"},
		{"tienda cero", map[string]string{apphttp.HeaderStoreID: "0"}, "STORE_REQUIRED"},
		{"serie no numérica", map[string]string{apphttp.HeaderStoreID: "1", apphttp.HeaderSeries: "x"}, "VALIDATION"},
		{"serie fuera de rango", map[string]string{apphttp.HeaderStoreID: "1", apphttp.HeaderSeries: "1000"}, "VALIDATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doStore(t, tt.headers)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.code)
		})
	}
}
