package fiscal

import (
	"context"

	"github.com/janssengh/ouvirtiba/internal/domain/repository"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// FiscalTxRunner ejecuta fn en una transacción con los repos de documento y numeración.
// Si fn retorna error se hace rollback: el número reservado no se consume.
type FiscalTxRunner interface {
	RunFiscal(ctx context.Context, fn func(
		docRepo repository.FiscalDocumentRepository,
		seqRepo repository.SequenceRepository,
	) error) error
}

// CertificateSource entrega un bundle recién cargado por operación; el caller llama Release.
type CertificateSource interface {
	Load() (*nfce.CertificateBundle, error)
}

// CertificateSourceFunc adapta una función a CertificateSource.
type CertificateSourceFunc func() (*nfce.CertificateBundle, error)

// Load implementa CertificateSource.
func (f CertificateSourceFunc) Load() (*nfce.CertificateBundle, error) { return f() }

// ArtifactStore almacén de los XML firmados.
type ArtifactStore interface {
	Save(accessKey string, signedXML []byte) (string, error)
	Load(name string) ([]byte, error)
}

// DanfeGenerator representación gráfica (DANFE NFC-e) en PDF.
type DanfeGenerator interface {
	Generate(data DanfeData) ([]byte, error)
}
