package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/flw-audit/internal/source"
)

// --- Loader Mock ---

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) LoadVisits(ctx context.Context, domain string) (*source.VisitSet, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*source.VisitSet), args.Error(1)
}

func (m *mockLoader) LoadRegistrations(ctx context.Context, domain string) (*source.RegistrationSet, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*source.RegistrationSet), args.Error(1)
}
