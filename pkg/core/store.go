package core

// Store defines the interface for persistence operations. The concrete
// implementation lives in internal/state; it is injected by reference so
// tests can substitute an in-memory database.
type Store interface {
	Close() error
	Migrate() error

	// Metric operations
	CreateMetric(m *Metric) error
	GetMetric(id string) (*Metric, error)
	ListMetrics() ([]*Metric, error)
	DeleteMetric(id string) error

	// Run state transitions on the metric row. BeginRun claims the soft
	// lock: it sets status to the first step name iff status is
	// currently null, returning ErrAlreadyRunning otherwise. FinishRun
	// clears status, records the terminal error (empty for success),
	// and optionally stamps last_fetched_at.
	BeginRun(metricID, firstStep string) error
	SetStatus(metricID, step string) error
	FinishRun(metricID, errMsg string, touchFetchedAt bool) error

	// Transformer operations. CreateTransformer must not clobber an
	// existing row for the same (kind, template) key: on conflict it
	// returns the winner's row unchanged.
	GetTransformer(kind TransformerKind, templateID string) (*Transformer, error)
	CreateTransformer(tr *Transformer) (*Transformer, error)
	DeleteTransformer(kind TransformerKind, templateID string) error

	// Data point operations
	UpsertTimeSeries(metricID string, points []DataPoint) error
	ReplaceSnapshot(metricID string, points []DataPoint) error
	ListDataPoints(metricID string) ([]DataPoint, error)

	// Chart config
	SaveChartConfig(metricID string, config []byte) error
	GetChartConfig(metricID string) (*ChartConfig, error)

	// Step log
	AppendStep(rec *StepRecord) error
	GetSteps(metricID, runID string) ([]*StepRecord, error)
	GetLatestRunID(metricID string) (string, error)
	ListRunIDs(metricID string, limit int) ([]string, error)
}
