package reconcile

import (
	"context"

	"licensehub-engine/services/extapi"
	"licensehub-engine/services/license"
)

// MatchStrategy resolves an external record to at most one internal license
// along a single identity axis. Returning (nil, nil) means no match on this
// axis.
type MatchStrategy struct {
	Name string
	Fn   func(ctx context.Context, ext *extapi.ExternalLicense) (*license.License, error)
}

// Matcher tries an ordered list of strategies; first match wins. The order
// matters because identifiers are sparse and may collide when checked the
// wrong way round.
type Matcher struct {
	strategies []MatchStrategy
}

func NewMatcher(store license.Store) *Matcher {
	return &Matcher{
		strategies: []MatchStrategy{
			{
				Name: "appid",
				Fn: func(ctx context.Context, ext *extapi.ExternalLicense) (*license.License, error) {
					if ext.AppID == nil || *ext.AppID == "" {
						return nil, nil
					}
					return store.FindByAppID(ctx, *ext.AppID)
				},
			},
			{
				Name: "email",
				Fn: func(ctx context.Context, ext *extapi.ExternalLicense) (*license.License, error) {
					if ext.Email == nil || *ext.Email == "" {
						return nil, nil
					}
					return store.FindByEmail(ctx, *ext.Email)
				},
			},
			{
				Name: "countid",
				Fn: func(ctx context.Context, ext *extapi.ExternalLicense) (*license.License, error) {
					if ext.CountID == nil {
						return nil, nil
					}
					return store.FindByCountID(ctx, *ext.CountID)
				},
			},
		},
	}
}

// Match returns the first internal license any strategy resolves, along with
// the name of the winning strategy. (nil, "", nil) means no internal record
// matches and the caller should create one.
func (m *Matcher) Match(ctx context.Context, ext *extapi.ExternalLicense) (*license.License, string, error) {
	for _, strategy := range m.strategies {
		lic, err := strategy.Fn(ctx, ext)
		if err != nil {
			return nil, strategy.Name, err
		}
		if lic != nil {
			return lic, strategy.Name, nil
		}
	}

	return nil, "", nil
}
