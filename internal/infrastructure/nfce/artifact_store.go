package nfce

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/janssengh/ouvirtiba/internal/domain"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

const artifactPerm os.FileMode = 0o600

// ArtifactStore guarda los XML firmados como NFCe_<chave>_assinado.xml.
type ArtifactStore struct {
	fs  afero.Fs
	dir string
}

// NewArtifactStore almacén sobre el disco local en dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return NewArtifactStoreFs(afero.NewOsFs(), dir)
}

// NewArtifactStoreFs almacén sobre un afero.Fs arbitrario (tests usan MemMapFs).
func NewArtifactStoreFs(fsys afero.Fs, dir string) *ArtifactStore {
	return &ArtifactStore{fs: fsys, dir: filepath.Clean(dir)}
}

// SignedFileName nombre del artefacto firmado para la chave.
func SignedFileName(accessKey string) string {
	return "NFCe_" + accessKey + "_assinado.xml"
}

// Save escribe el XML firmado de forma atómica (temporal + rename) con permisos 0600.
// Devuelve el nombre relativo que se guarda en xml_path.
func (s *ArtifactStore) Save(accessKey string, signedXML []byte) (string, error) {
	if err := nfce.ValidateAccessKey(accessKey); err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("nfce: crear directorio de XML: %w", err)
	}

	name := SignedFileName(accessKey)
	tmp, err := afero.TempFile(s.fs, s.dir, ".tmp-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("nfce: archivo temporal: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(signedXML); err != nil {
		tmp.Close()
		return "", fmt.Errorf("nfce: escribir XML firmado: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("nfce: sincronizar XML firmado: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("nfce: cerrar XML firmado: %w", err)
	}
	if err := s.fs.Chmod(tmpName, artifactPerm); err != nil {
		return "", fmt.Errorf("nfce: permisos del XML firmado: %w", err)
	}
	if err := s.fs.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("nfce: publicar XML firmado: %w", err)
	}
	committed = true
	return name, nil
}

// Load lee un artefacto por el nombre guardado en xml_path. Solo nombres planos dentro del directorio.
func (s *ArtifactStore) Load(name string) ([]byte, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("nfce: nombre de artefacto %q: %w", name, domain.ErrInvalidInput)
	}
	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("nfce: artefacto %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("nfce: leer artefacto %q: %w", name, err)
	}
	return data, nil
}
