package insight

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/concierge-labs/concierge/internal/inference"
	"github.com/concierge-labs/concierge/internal/ledger"
	"github.com/concierge-labs/concierge/internal/model"
	"github.com/concierge-labs/concierge/internal/persist"
	"github.com/concierge-labs/concierge/internal/provider"
	"github.com/concierge-labs/concierge/internal/store"
)

// --- Funder Mock ---

type mockFunder struct {
	mock.Mock
}

func (m *mockFunder) EnsureFunded(ctx context.Context, requiredUnits int64, _ ...ledger.FundOption) (ledger.Balance, error) {
	args := m.Called(ctx, requiredUnits)
	return args.Get(0).(ledger.Balance), args.Error(1)
}

// --- Selector Mock ---

type mockSelector struct {
	mock.Mock
}

func (m *mockSelector) Select(ctx context.Context, c provider.Criteria) (provider.Selection, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(provider.Selection), args.Error(1)
}

// --- Invoker Mock ---

type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) Invoke(ctx context.Context, sel provider.Selection, fileName, content string) (inference.Answer, error) {
	args := m.Called(ctx, sel, fileName, content)
	return args.Get(0).(inference.Answer), args.Error(1)
}

// --- Settler Mock ---

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) ProcessResponse(ctx context.Context, providerID, content, chatID string) (bool, error) {
	args := m.Called(ctx, providerID, content, chatID)
	return args.Bool(0), args.Error(1)
}

// --- Persister Mock ---

type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) Persist(ctx context.Context, rootHash, fileName, category, summary string) (persist.CIDs, error) {
	args := m.Called(ctx, rootHash, fileName, category, summary)
	return args.Get(0).(persist.CIDs), args.Error(1)
}

// --- Store recorder ---

type recordingStore struct {
	mu       sync.Mutex
	statuses []model.RunStatus
	result   *model.InsightResult
	failure  string
}

var _ store.Store = (*recordingStore)(nil)

func (s *recordingStore) CreateRun(_ context.Context, req model.InsightRequest) (*model.Run, error) {
	return &model.Run{ID: "run-1", RootHash: req.RootHash, FileName: req.FileName, Status: model.RunStatusIdle}, nil
}

func (s *recordingStore) UpdateRunStatus(_ context.Context, _ string, status model.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *recordingStore) CompleteRun(_ context.Context, _ string, result *model.InsightResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, model.RunStatusDone)
	s.result = result
	return nil
}

func (s *recordingStore) FailRun(_ context.Context, _ string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, model.RunStatusFailed)
	s.failure = reason
	return nil
}

func (s *recordingStore) GetRun(context.Context, string) (*model.Run, error) { return nil, nil }

func (s *recordingStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func (s *recordingStore) Migrate(context.Context) error { return nil }
func (s *recordingStore) Close() error                  { return nil }
