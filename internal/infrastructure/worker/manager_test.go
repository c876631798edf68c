package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWorker struct {
	name     string
	startErr error
	stopErr  error
	log      *callLog
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (f *fakeWorker) Name() string { return f.name }

func (f *fakeWorker) Start(context.Context) error {
	f.log.add("start " + f.name)
	return f.startErr
}

func (f *fakeWorker) Stop() error {
	f.log.add("stop " + f.name)
	return f.stopErr
}

func TestWorkerManager_StopsInReverseOrder(t *testing.T) {
	log := &callLog{}
	m := NewWorkerManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", log: log})
	m.Register(&fakeWorker{name: "b", log: log})
	m.Register(&fakeWorker{name: "c", log: log})

	require.NoError(t, m.StartAll(context.Background()))
	require.NoError(t, m.StopAll())
	assert.Equal(t, []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}, log.calls)

	// already stopped
	assert.NoError(t, m.StopAll())
}

func TestWorkerManager_StartFailure(t *testing.T) {
	log := &callLog{}
	bad := errors.New("no redis")
	m := NewWorkerManager(zap.NewNop())
	m.Register(&fakeWorker{name: "ok", log: log})
	m.Register(&fakeWorker{name: "broken", startErr: bad, log: log})

	err := m.StartAll(context.Background())
	require.ErrorIs(t, err, bad)
	assert.ErrorContains(t, err, "broken")
	assert.True(t, m.IsRunning())
	assert.Equal(t, []Status{{Name: "ok", Running: true}, {Name: "broken", Running: false}}, m.Statuses())

	require.NoError(t, m.StopAll())
	// the broken worker never started so it is not stopped
	assert.Equal(t, []string{"start ok", "start broken", "stop ok"}, log.calls)
	assert.Equal(t, []Status{{Name: "ok"}, {Name: "broken"}}, m.Statuses())
}

func TestWorkerManager_StopErrorsJoined(t *testing.T) {
	log := &callLog{}
	m := NewWorkerManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", stopErr: errors.New("a stuck"), log: log})
	m.Register(&fakeWorker{name: "b", stopErr: errors.New("b stuck"), log: log})

	require.NoError(t, m.StartAll(context.Background()))
	err := m.StopAll()
	require.Error(t, err)
	assert.ErrorContains(t, err, "a stuck")
	assert.ErrorContains(t, err, "b stuck")
	assert.False(t, m.IsRunning())
}

func TestWorkerManager_AlreadyRunning(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	require.NoError(t, m.StartAll(context.Background()))
	assert.ErrorIs(t, m.StartAll(context.Background()), ErrAlreadyRunning)
	require.NoError(t, m.StopAll())
}
