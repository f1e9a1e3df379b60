package core

// Template names a (provider, endpoint, shape) tuple that many metrics
// can share. It determines which endpoint the pipeline fetches and which
// transformer code applies.
type Template struct {
	ID           string
	ProviderID   string
	ConnectionID string
	EndpointPath string
	Method       string
	Params       map[string]string

	// ExtractionHint is an optional hand-written hint passed to the
	// code generator instead of relying on the raw payload alone.
	ExtractionHint string

	ValueLabel      string
	DataDescription string
}

// FetchRequest builds the provider API request for this template.
func (t *Template) FetchRequest() FetchRequest {
	method := t.Method
	if method == "" {
		method = "GET"
	}
	return FetchRequest{
		ProviderID:   t.ProviderID,
		ConnectionID: t.ConnectionID,
		EndpointPath: t.EndpointPath,
		Method:       method,
		Params:       t.Params,
	}
}
