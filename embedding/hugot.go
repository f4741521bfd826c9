package embedding

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/docrag/helper"
)

// DefaultModelName is the sentence transformer the corpus is indexed with.
const DefaultModelName = "sentence-transformers/all-MiniLM-L6-v2"

// DefaultModelDimension is the vector dimension of DefaultModelName.
const DefaultModelDimension = 384

// HugotEmbedder runs a sentence transformer in process through hugot. No
// external service is needed; the ONNX weights are downloaded on first use.
type HugotEmbedder struct {
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	modelName string
	dimension int
}

// NewHugotEmbedder creates an in-process embedder for the default
// all-MiniLM-L6-v2 model, downloading it into modelDir if needed.
func NewHugotEmbedder(modelDir string) (*HugotEmbedder, error) {
	return NewHugotEmbedderWithModel(DefaultModelName, DefaultModelDimension, modelDir)
}

// NewHugotEmbedderWithModel creates an in-process embedder for an arbitrary
// feature extraction model.
func NewHugotEmbedderWithModel(modelName string, dimension int, modelDir string) (*HugotEmbedder, error) {
	modelPath, err := helper.PrepareModel(modelName, modelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	embeddingPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	return &HugotEmbedder{
		session:   session,
		pipeline:  embeddingPipeline,
		modelName: modelName,
		dimension: dimension,
	}, nil
}

// Embed generates one embedding per input text.
func (e *HugotEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	return result.Embeddings, nil
}

// ModelID returns the model identifier recorded with every vector.
func (e *HugotEmbedder) ModelID() string {
	return e.modelName
}

// Dimension returns the embedding dimension of the model.
func (e *HugotEmbedder) Dimension() int {
	return e.dimension
}

// Close releases the hugot session.
func (e *HugotEmbedder) Close() error {
	return e.session.Destroy()
}
