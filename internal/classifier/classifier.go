// Package classifier runs the emotion model over a prepared tensor and
// decodes its raw scores into a labelled outcome.
package classifier

import (
	"context"
	"errors"

	"github.com/ayusman/moodlens/internal/native"
	"github.com/ayusman/moodlens/internal/preprocess"
)

var (
	// ErrInferenceFailed wraps any failure reported by the model runtime.
	ErrInferenceFailed = errors.New("inference failed")
	// ErrCatalogMismatch is returned when the number of model outputs does
	// not equal the number of catalog labels.
	ErrCatalogMismatch = errors.New("class catalog does not match model output")
)

// Classifier produces one raw score per class for a prepared tensor.
type Classifier interface {
	// Classify runs the model. Runtime tensors created for the call are
	// owned by scope.
	Classify(ctx context.Context, scope *native.Scope, input preprocess.Tensor) ([]float32, error)

	// OutputWidth returns the number of scores Classify produces.
	OutputWidth() int

	// Close releases the model session.
	Close() error
}

// Outcome is the decoded result of one classification.
type Outcome struct {
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities,omitempty"`
}
