package translator

import "context"

// PassthroughClient is the degraded-mode Client used when no translation
// credentials are configured (spec.md §4.3): it returns each source
// string unchanged so the rewriter can still exercise its full
// insert/overwrite logic in development and CI without network access.
type PassthroughClient struct{}

// NewPassthroughClient returns the identity-mapping Client.
func NewPassthroughClient() *PassthroughClient {
	return &PassthroughClient{}
}

// Translate implements Client by returning batch unchanged.
func (p *PassthroughClient) Translate(_ context.Context, batch []string, _, _ string) ([]string, error) {
	out := make([]string, len(batch))
	copy(out, batch)
	return out, nil
}

// AnalyzeStyle implements Client by returning an empty hint: the
// coordinator treats an empty hint as "fall back to the neutral default".
func (p *PassthroughClient) AnalyzeStyle(_ context.Context, _ []string) (string, error) {
	return "", nil
}
