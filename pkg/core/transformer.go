package core

import "time"

// TransformerKind distinguishes the two generated code bodies a template
// can carry.
type TransformerKind string

// Transformer kind constants.
const (
	// KindIngest maps a raw API payload to normalized data points.
	KindIngest TransformerKind = "ingest"
	// KindChart maps data points plus preferences to chart configuration.
	KindChart TransformerKind = "chart"
)

// Valid reports whether k is a known transformer kind.
func (k TransformerKind) Valid() bool {
	return k == KindIngest || k == KindChart
}

// Transformer is a generated code body keyed by template, shared by every
// metric of that template. Rows are immutable once created: the only
// update path is delete-and-recreate via regeneration, so a concurrent
// reader never observes partially written code.
type Transformer struct {
	TemplateID      string
	Kind            TransformerKind
	Code            string
	ValueLabel      string
	DataDescription string

	// FromHint records whether the code was generated from a
	// hand-written extraction hint rather than from the raw payload.
	FromHint bool

	CreatedAt time.Time
}
