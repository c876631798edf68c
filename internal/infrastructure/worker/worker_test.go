package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

type stubWorkflows struct {
	list []*entity.Workflow
	err  error
}

func (s *stubWorkflows) Create(context.Context, *entity.Workflow) error { return nil }
func (s *stubWorkflows) GetByID(context.Context, int64) (*entity.Workflow, error) {
	return nil, nil
}
func (s *stubWorkflows) GetByName(context.Context, string) (*entity.Workflow, error) {
	return nil, nil
}
func (s *stubWorkflows) List(context.Context) ([]*entity.Workflow, error) { return s.list, s.err }
func (s *stubWorkflows) Update(context.Context, *entity.Workflow) error   { return nil }
func (s *stubWorkflows) Delete(context.Context, int64) error              { return nil }

type stubSource struct {
	broken map[int64]bool
}

func (s *stubSource) LoadSnapshot(_ context.Context, id int64) (*domainwf.Snapshot, error) {
	if s.broken[id] {
		return nil, errors.New("boom")
	}
	return domainwf.NewSnapshot(entity.Workflow{ID: id}, nil, nil, nil, nil), nil
}

type setRecorder struct {
	mu  sync.Mutex
	ids []int64
}

func (r *setRecorder) Get(context.Context, int64) (*domainwf.Snapshot, error) { return nil, nil }
func (r *setRecorder) Invalidate(context.Context, int64) error               { return nil }
func (r *setRecorder) Set(_ context.Context, snap *domainwf.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, snap.Workflow.ID)
	return nil
}

func (r *setRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func TestCacheWarmer_Warm(t *testing.T) {
	wfs := &stubWorkflows{list: []*entity.Workflow{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}}}
	cache := &setRecorder{}
	w := NewCacheWarmer(CacheWarmerConfig{}, wfs, &stubSource{broken: map[int64]bool{2: true}}, cache, zap.NewNop())

	require.NoError(t, w.Warm(context.Background()))
	assert.Equal(t, []int64{1, 3}, cache.ids)
	assert.Equal(t, 2, w.WarmedCount())

	wfs.err = errors.New("db down")
	assert.Error(t, w.Warm(context.Background()))
}

func TestWorkerManager_RunsCacheWarmer(t *testing.T) {
	wfs := &stubWorkflows{list: []*entity.Workflow{{ID: 1, Name: "a"}}}
	cache := &setRecorder{}
	warmer := NewCacheWarmer(CacheWarmerConfig{Interval: 10 * time.Millisecond}, wfs, &stubSource{}, cache, zap.NewNop())

	m := NewWorkerManager(zap.NewNop())
	m.Register(warmer)
	assert.Equal(t, 1, m.GetWorkerCount())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	assert.Eventually(t, func() bool { return cache.count() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	settled := cache.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, cache.count())
	assert.NoError(t, warmer.LastError())
}
