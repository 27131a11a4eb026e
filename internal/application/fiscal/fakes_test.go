package fiscal_test

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/janssengh/ouvirtiba/internal/application/fiscal"
	"github.com/janssengh/ouvirtiba/internal/domain"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	"github.com/janssengh/ouvirtiba/internal/domain/repository"
	infranfce "github.com/janssengh/ouvirtiba/internal/infrastructure/nfce"
	"github.com/janssengh/ouvirtiba/internal/infrastructure/nfce/nfcetest"
	"github.com/janssengh/ouvirtiba/internal/infrastructure/nfce/signer"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// ── Base en memoria ───────────────────────────────────────────────────────────

// memDB implementa los repositorios y el TxRunner. RunFiscal restaura el estado
// previo si fn falla, igual que el rollback de Postgres.
type memDB struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	docs     map[string]entity.FiscalDocument
	items    map[string][]entity.FiscalDocumentItem
	seq      map[string]int64
	stores   map[int64]*entity.Store
	clients  map[int64]*entity.Client
	products map[int64]*entity.Product
	orders   map[int64][]*entity.OrderItem
	updates  int
	failNext error // siguiente Create falla con este error
}

func newMemDB() *memDB {
	db := &memDB{
		docs:     map[string]entity.FiscalDocument{},
		items:    map[string][]entity.FiscalDocumentItem{},
		seq:      map[string]int64{},
		stores:   map[int64]*entity.Store{},
		clients:  map[int64]*entity.Client{},
		products: map[int64]*entity.Product{},
		orders:   map[int64][]*entity.OrderItem{},
	}
	db.stores[1] = &entity.Store{
		ID: 1, Name: "JANSSEN APARELHOS AUDITIVOS LTDA", TradeName: "Ouvirtiba",
		CNPJ: "56.154.376/0001-05", IE: "262147718",
		Address: "Rua XV de Novembro", Number: "100", Neighborhood: "Centro",
		City: "Joinville", CityCode: "4209102", UF: "SC", ZipCode: "89201-600",
	}
	db.clients[10] = &entity.Client{ID: 10, StoreID: 1, Code: "123.456.789-09", Name: "Maria Souza",
		Address: "Rua das Flores", Number: "20", City: "Joinville", UF: "SC"}
	db.products[7] = &entity.Product{ID: 7, StoreID: 1, Name: "Aparelho auditivo retroauricular",
		Price: decimal.RequireFromString("3000.20"), NCM: "90214000", CFOP: "5102", CSOSN: "102"}
	db.products[8] = &entity.Product{ID: 8, StoreID: 1, Name: "Pilha 312", Price: decimal.RequireFromString("4.50")}
	return db
}

func (db *memDB) doc(id string) entity.FiscalDocument {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.docs[id]
}

func (db *memDB) updateCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.updates
}

// RunFiscal implementa fiscal.FiscalTxRunner.
func (db *memDB) RunFiscal(_ context.Context, fn func(repository.FiscalDocumentRepository, repository.SequenceRepository) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	docs, items, seq := cloneMap(db.docs), cloneMap(db.items), cloneMap(db.seq)
	db.mu.Unlock()

	if err := fn(docRepo{db}, seqRepo{db}); err != nil {
		db.mu.Lock()
		db.docs, db.items, db.seq = docs, items, seq
		db.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type docRepo struct{ db *memDB }

func (r docRepo) Create(_ context.Context, d *entity.FiscalDocument) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failNext; err != nil {
		r.db.failNext = nil
		return err
	}
	for _, other := range r.db.docs {
		if other.StoreID == d.StoreID && other.Series == d.Series && other.Number == d.Number {
			return domain.ErrDuplicate
		}
	}
	r.db.docs[d.ID] = *d
	return nil
}

func (r docRepo) CreateItem(_ context.Context, it *entity.FiscalDocumentItem) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.items[it.DocumentID] = append(r.db.items[it.DocumentID], *it)
	return nil
}

func (r docRepo) GetByID(_ context.Context, storeID int64, id string) (*entity.FiscalDocument, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.docs[id]
	if !ok || d.StoreID != storeID {
		return nil, nil
	}
	return &d, nil
}

func (r docRepo) GetItems(_ context.Context, documentID string) ([]*entity.FiscalDocumentItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.FiscalDocumentItem
	for _, it := range r.db.items[documentID] {
		it := it
		out = append(out, &it)
	}
	return out, nil
}

func (r docRepo) UpdateStatus(_ context.Context, d *entity.FiscalDocument, prev entity.FiscalStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.docs[d.ID]
	if !ok || cur.StoreID != d.StoreID || cur.Status != prev {
		return domain.ErrConflict
	}
	r.db.docs[d.ID] = *d
	r.db.updates++
	return nil
}

func (r docRepo) List(_ context.Context, storeID int64, f entity.FiscalDocumentFilter) ([]*entity.FiscalDocument, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.FiscalDocument
	for _, d := range r.db.docs {
		if d.StoreID == storeID && (f.Status == "" || d.Status == f.Status) {
			d := d
			out = append(out, &d)
		}
	}
	return out, nil
}

type seqRepo struct{ db *memDB }

func (r seqRepo) NextNumber(_ context.Context, storeID int64, series int) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	k := fmt.Sprintf("%d/%d", storeID, series)
	r.db.seq[k]++
	return r.db.seq[k], nil
}

type storeRepo struct{ db *memDB }

func (r storeRepo) GetByID(_ context.Context, id int64) (*entity.Store, error) {
	return r.db.stores[id], nil
}

type clientRepo struct{ db *memDB }

func (r clientRepo) GetByID(_ context.Context, storeID, id int64) (*entity.Client, error) {
	c := r.db.clients[id]
	if c == nil || c.StoreID != storeID {
		return nil, nil
	}
	return c, nil
}

type productRepo struct{ db *memDB }

func (r productRepo) GetByID(_ context.Context, storeID, id int64) (*entity.Product, error) {
	p := r.db.products[id]
	if p == nil || p.StoreID != storeID {
		return nil, nil
	}
	return p, nil
}

type orderRepo struct{ db *memDB }

func (r orderRepo) GetPricedItems(_ context.Context, _, orderID int64) ([]*entity.OrderItem, error) {
	return r.db.orders[orderID], nil
}

// ── Certificado ───────────────────────────────────────────────────────────────

// certSource entrega en cada Load una copia de la llave: Release la pone en cero.
type certSource struct {
	key    *rsa.PrivateKey
	bndl   *nfce.CertificateBundle
	err    error
	onLoad func() // se ejecuta al inicio de cada Load
}

func newCertSource(t *testing.T) *certSource {
	t.Helper()
	b := nfcetest.NewBundle(t)
	return &certSource{key: b.PrivateKey, bndl: b}
}

func (s *certSource) Load() (*nfce.CertificateBundle, error) {
	if s.onLoad != nil {
		s.onLoad()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &nfce.CertificateBundle{PrivateKey: cloneKey(s.key), Leaf: s.bndl.Leaf}, nil
}

func cloneKey(k *rsa.PrivateKey) *rsa.PrivateKey {
	c := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: new(big.Int).Set(k.N), E: k.E},
		D:         new(big.Int).Set(k.D),
	}
	for _, p := range k.Primes {
		c.Primes = append(c.Primes, new(big.Int).Set(p))
	}
	c.Precompute()
	return c
}

// ── Gateway programable ───────────────────────────────────────────────────────

type fakeGateway struct {
	transmit    *infranfce.TransmitResult
	transmitErr error
	receipt     *infranfce.ReceiptResult
	receiptErr  error
	calls       int
}

func (g *fakeGateway) Transmit(context.Context, []byte, *nfce.CertificateBundle, nfce.Environment) (*infranfce.TransmitResult, error) {
	g.calls++
	return g.transmit, g.transmitErr
}

func (g *fakeGateway) QueryReceipt(context.Context, string, *nfce.CertificateBundle, nfce.Environment) (*infranfce.ReceiptResult, error) {
	g.calls++
	return g.receipt, g.receiptErr
}

// ── Armado ────────────────────────────────────────────────────────────────────

var (
	storeCtx  = entity.StoreContext{StoreID: 1, Series: 1}
	issuedAt  = time.Date(2025, 10, 15, 13, 30, 0, 0, time.UTC)
	errNoCert = errors.New("sin certificado")
)

type harness struct {
	db        *memDB
	create    *fiscal.CreateDocumentUseCase
	pipeline  *fiscal.Pipeline
	certs     *certSource
	artifacts *infranfce.ArtifactStore
	fs        afero.Fs
}

func pipelineConfig() fiscal.PipelineConfig {
	return fiscal.PipelineConfig{
		Environment: nfce.Homologation,
		CSCID:       "000001",
		CSCToken:    "CSC-DE-TESTE",
		VerProc:     "Ouvirtiba-Teste",
	}
}

// newHarness arma creación + pipeline; gateway nil = sandbox.
func newHarness(t *testing.T, gateway infranfce.Gateway) *harness {
	t.Helper()
	db := newMemDB()
	fsys := afero.NewMemMapFs()
	if gateway == nil {
		gateway = infranfce.NewSandboxGateway(zerolog.Nop())
	}
	h := &harness{
		db:        db,
		certs:     newCertSource(t),
		artifacts: infranfce.NewArtifactStoreFs(fsys, "/xml"),
		fs:        fsys,
	}
	cnf := 12345678
	h.create = fiscal.NewCreateDocumentUseCase(db, storeRepo{db}, clientRepo{db}, productRepo{db}, orderRepo{db}, zerolog.Nop()).
		WithClock(func() time.Time { return issuedAt }, func() (int, error) { cnf++; return cnf, nil })
	h.pipeline = fiscal.NewPipeline(
		docRepo{db}, storeRepo{db}, clientRepo{db},
		infranfce.NewXMLBuilderService(),
		signer.NewService(signer.Options{}),
		h.certs, gateway, h.artifacts,
		pipelineConfig(), zerolog.Nop(),
	)
	return h
}
