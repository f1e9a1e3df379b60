package core

import "context"

// FetchRequest describes one call against a third-party provider API.
type FetchRequest struct {
	ProviderID   string
	ConnectionID string
	EndpointPath string
	Method       string
	Params       map[string]string
	Body         any
}

// FetchResult is the raw provider response handed to the ingestion
// transformer.
type FetchResult struct {
	Data   any
	Status int
}

// Fetcher calls a third-party provider API. Transport, auth, and retry
// concerns live behind this interface; the pipeline treats any fetch
// error as a terminal failure of the fetching-api-data step.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

// GenerateRequest carries the context the code generator needs to produce
// a transform function body.
type GenerateRequest struct {
	Kind            TransformerKind
	TemplateID      string
	SamplePayload   any    // representative provider response
	ExtractionHint  string // optional hand-written hint
	ValueLabel      string
	DataDescription string
}

// GenerateResult is the generator's output: the code body plus the
// descriptive metadata persisted alongside it.
type GenerateResult struct {
	Code            string
	ValueLabel      string
	DataDescription string
	FromHint        bool
}

// Generator produces transform code bodies. It is an opaque external
// call (an AI generation service) that may itself fail; failures are
// propagated as generating-*-transformer step failures.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
