package handlers

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bipbip/bips-backend/internal/models"
	"github.com/bipbip/bips-backend/internal/services"
)

type fakeBipService struct {
	mu       sync.Mutex
	added    []services.NewBip
	queries  []services.BipQuery
	addErr   error
	queryErr error
	results  []models.BipSummary
}

func (f *fakeBipService) Add(_ context.Context, in services.NewBip) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, in)
	return "bip-1", nil
}

func (f *fakeBipService) Query(_ context.Context, q services.BipQuery) ([]models.BipSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.results == nil {
		return []models.BipSummary{}, nil
	}
	return f.results, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.PushEvent
	err    error
}

func (f *fakeNotifier) NotifyAll(ctx context.Context, event models.PushEvent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.events = append(f.events, event)
	return 1, ctx.Err()
}

type fakeRegistrar struct {
	mu      sync.Mutex
	ids     map[string]bool
	failErr error
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{ids: make(map[string]bool)}
}

func (f *fakeRegistrar) Register(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "" {
		return errors.Wrap(services.ErrValidation, "connection id is required")
	}
	if f.failErr != nil {
		return f.failErr
	}
	f.ids[id] = true
	return nil
}

func (f *fakeRegistrar) Unregister(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "" {
		return errors.Wrap(services.ErrValidation, "connection id is required")
	}
	if f.failErr != nil {
		return f.failErr
	}
	delete(f.ids, id)
	return nil
}

func (f *fakeRegistrar) registered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.ids))
	for id := range f.ids {
		out = append(out, id)
	}
	return out
}

func storageDown() error {
	return &services.StorageError{Op: "test", Err: errors.New("connection refused")}
}
