// Package core defines the shared language of the LeapDash system.
//
// This package contains:
//   - Domain entities (Metric, Transformer, DataPoint, StepRecord)
//   - Service interfaces (Store, Fetcher, Generator)
//   - Pipeline step names and status constants
//
// The Golden Rule: pkg/core imports ONLY the stdlib.
// All other packages depend on core, not the reverse.
package core
