package nfce_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janssengh/ouvirtiba/internal/domain"
	infranfce "github.com/janssengh/ouvirtiba/internal/infrastructure/nfce"
	"github.com/janssengh/ouvirtiba/internal/infrastructure/nfce/nfcetest"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

func TestArtifactStore_GuardaYLee(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := infranfce.NewArtifactStoreFs(fsys, "/xml")

	name, err := store.Save(nfcetest.TestAccessKey, []byte(nfcetest.SampleNFe))
	require.NoError(t, err)
	assert.Equal(t, "NFCe_"+nfcetest.TestAccessKey+"_assinado.xml", name)

	data, err := store.Load(name)
	require.NoError(t, err)
	assert.Equal(t, nfcetest.SampleNFe, string(data))

	entries, err := afero.ReadDir(fsys, "/xml")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no deben quedar temporales")
}

func TestArtifactStore_SobrescribeMismaChave(t *testing.T) {
	store := infranfce.NewArtifactStoreFs(afero.NewMemMapFs(), "/xml")

	_, err := store.Save(nfcetest.TestAccessKey, []byte("<NFe>v1</NFe>"))
	require.NoError(t, err)
	name, err := store.Save(nfcetest.TestAccessKey, []byte("<NFe>v2</NFe>"))
	require.NoError(t, err)

	data, err := store.Load(name)
	require.NoError(t, err)
	assert.Equal(t, "<NFe>v2</NFe>", string(data))
}

func TestArtifactStore_PermisosEnDisco(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "xml")
	store := infranfce.NewArtifactStore(dir)

	name, err := store.Save(nfcetest.TestAccessKey, []byte(nfcetest.SampleNFe))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestArtifactStore_Errores(t *testing.T) {
	store := infranfce.NewArtifactStoreFs(afero.NewMemMapFs(), "/xml")

	_, err := store.Save("123", []byte("x"))
	assert.ErrorIs(t, err, nfce.ErrValidation)

	_, err = store.Load("../etc/passwd")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.Load(infranfce.SignedFileName(nfcetest.TestAccessKey))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
