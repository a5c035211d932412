package insight

import "context"

// Provider generates a narrative report from a metrics bundle. Providers
// return an error rather than a degraded report; the generator owns the
// fallback chain.
type Provider interface {
	Name() string
	Generate(ctx context.Context, clientID string, bundle Bundle) (*Report, error)
}
