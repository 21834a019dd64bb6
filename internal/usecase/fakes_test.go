package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"bidsmith/internal/domain"
	"bidsmith/internal/ledger"
	"bidsmith/internal/pipeline"
	"bidsmith/internal/repository"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLedger struct {
	mu        sync.Mutex
	balance   int
	used      int
	chargeErr error
	charges   int
	refunds   []string
}

func (f *fakeLedger) ChargeOne(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chargeErr != nil {
		return 0, f.chargeErr
	}
	if f.balance <= 0 {
		return 0, ledger.ErrInsufficientBalance
	}
	f.balance--
	f.used++
	f.charges++
	return f.balance, nil
}

func (f *fakeLedger) Refund(_ context.Context, _ string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance++
	f.refunds = append(f.refunds, reason)
	return nil
}

func (f *fakeLedger) Balance(_ context.Context, identity string) (domain.UsageAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chargeErr != nil {
		return domain.UsageAccount{}, f.chargeErr
	}
	b := f.balance
	return domain.UsageAccount{Identity: identity, Balance: &b, OperationsUsed: f.used}, nil
}

// fakeStore enforces the same write-once draft rule as the repository.
type fakeStore struct {
	mu          sync.Mutex
	records     map[string]domain.SolicitationIntelligence
	saveErr     error
	getErr      error
	setDraftErr error
	saved       []domain.SolicitationIntelligence
}

func newFakeStore(recs ...domain.SolicitationIntelligence) *fakeStore {
	s := &fakeStore{records: map[string]domain.SolicitationIntelligence{}}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeStore) SaveAnalysis(_ context.Context, a domain.SolicitationIntelligence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records[a.ID] = a
	s.saved = append(s.saved, a)
	return nil
}

func (s *fakeStore) GetAnalysis(_ context.Context, id string) (domain.SolicitationIntelligence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return domain.SolicitationIntelligence{}, s.getErr
	}
	r, ok := s.records[id]
	if !ok {
		return domain.SolicitationIntelligence{}, repository.ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) SetDraftText(_ context.Context, id, draft string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setDraftErr != nil {
		return s.setDraftErr
	}
	r, ok := s.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.DraftText != nil || !r.IsValid {
		return repository.ErrConflict
	}
	r.DraftText = &draft
	s.records[id] = r
	return nil
}

type fakeRunner struct {
	rec   domain.SolicitationIntelligence
	err   error
	calls int
}

func (f *fakeRunner) Run(_ context.Context, _ string) (domain.SolicitationIntelligence, error) {
	f.calls++
	return f.rec, f.err
}

type chunkStream struct {
	chunks []string
	tail   error
}

func (s *chunkStream) Recv() (string, error) {
	if len(s.chunks) == 0 {
		if s.tail != nil {
			return "", s.tail
		}
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *chunkStream) Close() error { return nil }

type fakeDrafter struct {
	chunks   []string
	tail     error
	err      error
	feedback string
	requests []pipeline.DraftRequest
}

func (f *fakeDrafter) Run(_ context.Context, req pipeline.DraftRequest) (pipeline.DraftResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return pipeline.DraftResult{}, f.err
	}
	return pipeline.DraftResult{
		Stream:   &chunkStream{chunks: append([]string(nil), f.chunks...), tail: f.tail},
		Path:     pipeline.PathRefined,
		Feedback: f.feedback,
	}, nil
}

var errBoom = errors.New("boom")

func validRecord(id, owner string) domain.SolicitationIntelligence {
	return domain.SolicitationIntelligence{
		ID:                id,
		Owner:             owner,
		IsValid:           true,
		ProjectTitle:      "Zero Trust Rollout",
		Agency:            "DHS",
		ComplianceItems:   []string{"NIST 800-53 Rev 5"},
		WinThemes:         []string{"Depth"},
		KeyRisks:          []string{"Timeline"},
		ExecutiveBriefing: "Strong fit.",
		WinScore:          70,
		MatchScore:        "7.0/10",
	}
}

func user(id string) domain.Caller { return domain.Caller{Identity: id} }

func service() domain.Caller { return domain.Caller{Service: true} }
