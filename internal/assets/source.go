// Package assets locates the files the pipeline needs at start-up: the face
// cascade, the emotion model and its class catalog.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayusman/moodlens/internal/classifier"
)

// Default asset file names.
const (
	DefaultCascade = "haarcascade_frontalface_default.xml"
	DefaultModel   = "emotion_yolo11n_cls.onnx"
	DefaultCatalog = "classes.json"
)

// ErrAssetMissing is returned when an asset cannot be found or read.
var ErrAssetMissing = errors.New("asset missing")

// Source provides the start-up assets. Each method is called once.
type Source interface {
	// CascadePath returns a local file path for the Haar cascade; OpenCV
	// only loads cascades from disk.
	CascadePath() (string, error)
	Model() ([]byte, error)
	Catalog() (classifier.Catalog, error)
}

// DirSource reads assets from a directory.
type DirSource struct {
	Dir         string
	CascadeFile string
	ModelFile   string
	CatalogFile string
}

// NewDirSource returns a DirSource using the default file names.
func NewDirSource(dir string) *DirSource {
	return &DirSource{
		Dir:         dir,
		CascadeFile: DefaultCascade,
		ModelFile:   DefaultModel,
		CatalogFile: DefaultCatalog,
	}
}

func (s *DirSource) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.Dir, name)
}

// CascadePath returns the cascade path after checking it exists.
func (s *DirSource) CascadePath() (string, error) {
	p := s.path(s.CascadeFile)
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrAssetMissing, p, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrAssetMissing, p)
	}
	return p, nil
}

// Model reads the model file.
func (s *DirSource) Model() ([]byte, error) {
	return s.read(s.ModelFile)
}

// Catalog reads and parses the class catalog.
func (s *DirSource) Catalog() (classifier.Catalog, error) {
	data, err := s.read(s.CatalogFile)
	if err != nil {
		return classifier.Catalog{}, err
	}
	c, err := classifier.ParseCatalog(data)
	if err != nil {
		return classifier.Catalog{}, fmt.Errorf("%s: %w", s.path(s.CatalogFile), err)
	}
	return c, nil
}

func (s *DirSource) read(name string) ([]byte, error) {
	p := s.path(name)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetMissing, p, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrAssetMissing, p)
	}
	return data, nil
}
