package http

import (
	"github.com/gofiber/fiber/v2"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	CreateDocument DocumentCreator
	Pipeline       DocumentPipeline
	Danfe          DanfeRenderer
	DefaultSeries  int
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api/nfce")
	handler := NewFiscalHandler(deps.CreateDocument, deps.Pipeline, deps.Danfe)

	// Utilidades sin tienda
	api.Get("/qrcode/validate", handler.ValidateQRCode)
	api.Get("/access-keys/:key", handler.ParseAccessKey)

	// Documentos (requieren X-Store-ID)
	docs := api.Group("/documents", StoreMiddleware(deps.DefaultSeries))
	docs.Post("/", handler.Create)
	docs.Get("/", handler.List)
	docs.Get("/:id", handler.GetByID)
	docs.Post("/:id/xml", handler.GenerateXML)
	docs.Get("/:id/xml", handler.DownloadXML)
	docs.Post("/:id/sign", handler.Sign)
	docs.Get("/:id/signed", handler.DownloadSigned)
	docs.Post("/:id/transmit", handler.Transmit)
	docs.Post("/:id/receipt", handler.QueryReceipt)
	docs.Post("/:id/process", handler.Process)
	docs.Get("/:id/danfe", handler.Danfe)
}
