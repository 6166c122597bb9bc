package embedding

import "context"

// Mock is a configurable Embedder for tests. Set the function fields to
// control behavior; unset fields return constant vectors of Dimensions width.
type Mock struct {
	EmbedFunc      func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the width of default vectors. Defaults to DefaultDimensions.
	Dimensions int

	// Call tracking for verification
	EmbedCalls      int
	EmbedBatchCalls int
}

var _ Embedder = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{Dimensions: DefaultDimensions}
}

func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	m.EmbedCalls++
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return m.vector(), nil
}

func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.EmbedBatchCalls++
	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector()
	}
	return out, nil
}

func (m *Mock) vector() []float32 {
	dims := m.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	v := make([]float32, dims)
	v[0] = 1
	return v
}
