package verify

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/communityroots/resource-cli/pkg/crossref"
	"github.com/communityroots/resource-cli/pkg/geocode"
	"github.com/communityroots/resource-cli/pkg/judge"
	"github.com/communityroots/resource-cli/pkg/probe"
)

// mockProbe is a testify mock for probe.Client.
type mockProbe struct {
	mock.Mock
}

func (m *mockProbe) Reachable(ctx context.Context, url string) (bool, int, error) {
	args := m.Called(ctx, url)
	return args.Bool(0), args.Int(1), args.Error(2)
}

func (m *mockProbe) FetchText(ctx context.Context, url string) (*probe.Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*probe.Page), args.Error(1)
}

// mockGeocoder is a testify mock for geocode.Client.
type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// mockJudge is a testify mock for judge.Judge.
type mockJudge struct {
	mock.Mock
}

func (m *mockJudge) JudgeConsistency(ctx context.Context, req judge.ConsistencyRequest) (*judge.Judgment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*judge.Judgment), args.Error(1)
}

func (m *mockJudge) RepairURL(ctx context.Context, req judge.RepairRequest) (*judge.Repair, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*judge.Repair), args.Error(1)
}

// mockSource is a testify mock for crossref.Source.
type mockSource struct {
	mock.Mock
	name string
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Lookup(ctx context.Context, q crossref.Query) (*crossref.Match, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crossref.Match), args.Error(1)
}
