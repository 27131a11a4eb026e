package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/janssengh/ouvirtiba/internal/application/fiscal"
	infranfce "github.com/janssengh/ouvirtiba/internal/infrastructure/nfce"
	"github.com/janssengh/ouvirtiba/internal/infrastructure/nfce/signer"
	infrapdf "github.com/janssengh/ouvirtiba/internal/infrastructure/pdf"
	"github.com/janssengh/ouvirtiba/internal/infrastructure/postgres"
	httpRouter "github.com/janssengh/ouvirtiba/internal/interfaces/http"
	"github.com/janssengh/ouvirtiba/pkg/config"
	"github.com/janssengh/ouvirtiba/pkg/logger"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("nfce_environment", cfg.NFCe.Environment.String()).
		Bool("sandbox", cfg.NFCe.Sandbox).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("esquema ouvirtiba")
	}

	docRepo := postgres.NewFiscalDocumentRepository(pool)
	storeRepo := postgres.NewStoreRepository(pool)
	clientRepo := postgres.NewClientRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	digest, err := signer.ParseDigest(cfg.NFCe.Digest)
	if err != nil {
		log.Fatal().Err(err).Msg("NFCE_DIGEST")
	}
	c14nMode, err := signer.ParseC14NMode(cfg.NFCe.C14N)
	if err != nil {
		log.Fatal().Err(err).Msg("NFCE_C14N")
	}
	signerSvc := signer.NewService(signer.Options{
		Digest: digest,
		C14N:   c14nMode,
		Logger: log.Component("signer"),
	})
	certs := signer.FileSource{Path: cfg.NFCe.CertPath, Password: cfg.NFCe.CertPassword}

	// Gateway SEFAZ. El sandbox solo se elige por configuración, nunca como respaldo.
	var gateway infranfce.Gateway
	if cfg.NFCe.Sandbox {
		log.Warn().Msg("NFCE_SANDBOX activo: las respuestas de la SEFAZ son simuladas")
		gateway = infranfce.NewSandboxGateway(log.Component("sandbox"))
	} else {
		gateway = infranfce.NewSEFAZGateway(
			infranfce.TransportOptions{
				Endpoints:    map[nfce.Environment][]string{cfg.NFCe.Environment: cfg.NFCe.AuthorizationURLs},
				Timeout:      cfg.NFCe.AuthorizationTimeout,
				IncludeChain: cfg.NFCe.IncludeChain,
				Logger:       log.Component("sefaz_autorizacao"),
			},
			infranfce.ReceiptOptions{
				TransportOptions: infranfce.TransportOptions{
					Endpoints:    map[nfce.Environment][]string{cfg.NFCe.Environment: cfg.NFCe.ReceiptURLs},
					Timeout:      cfg.NFCe.ReceiptTimeout,
					IncludeChain: cfg.NFCe.IncludeChain,
					Logger:       log.Component("sefaz_ret_autorizacao"),
				},
				MinInterval: cfg.NFCe.ReceiptMinInterval,
				CacheTTL:    time.Hour,
			},
		)
	}

	pipelineCfg := fiscal.PipelineConfig{
		Environment: cfg.NFCe.Environment,
		CSCID:       cfg.NFCe.CSCID,
		CSCToken:    cfg.NFCe.CSCToken,
		VerProc:     cfg.NFCe.VerProc,
		QRBaseURL:   cfg.NFCe.QRBaseURL,
	}

	createUC := fiscal.NewCreateDocumentUseCase(
		txRunner, storeRepo, clientRepo, productRepo, orderRepo,
		log.Component("nfce_create"),
	)
	pipeline := fiscal.NewPipeline(
		docRepo, storeRepo, clientRepo,
		infranfce.NewXMLBuilderService(), signerSvc, certs, gateway,
		infranfce.NewArtifactStore(cfg.NFCe.XMLDir),
		pipelineCfg, log.Component("nfce_pipeline"),
	)

	// DANFE NFC-e 80mm
	danfeUC := fiscal.NewDanfeUseCase(docRepo, storeRepo, clientRepo, infrapdf.NewMarotoDanfeGenerator(), pipelineCfg)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.NFCe.AuthorizationTimeout + 10*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Ouvirtiba NFC-e API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		CreateDocument: createUC,
		Pipeline:       pipeline,
		Danfe:          danfeUC,
		DefaultSeries:  cfg.NFCe.Series,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
