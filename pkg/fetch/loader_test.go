package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/descriptions/pkg/entity"
)

// scripted is a request function whose calls block until released.
type scripted struct {
	mu     sync.Mutex
	calls  []map[string]interface{}
	gates  []chan result
	called chan int
}

type result struct {
	data entity.Entity
	err  error
}

func newScripted() *scripted {
	return &scripted{called: make(chan int, 16)}
}

func (s *scripted) request(ctx context.Context, params map[string]interface{}) (entity.Entity, error) {
	gate := make(chan result, 1)
	s.mu.Lock()
	s.calls = append(s.calls, params)
	s.gates = append(s.gates, gate)
	n := len(s.calls) - 1
	s.mu.Unlock()
	s.called <- n

	select {
	case r := <-gate:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scripted) release(t *testing.T, n int, r result) {
	t.Helper()
	s.mu.Lock()
	gate := s.gates[n]
	s.mu.Unlock()
	gate <- r
}

func (s *scripted) waitCall(t *testing.T) int {
	t.Helper()
	select {
	case n := <-s.called:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("request was not issued")
		return -1
	}
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recorder struct {
	mu       sync.Mutex
	loading  []bool
	commits  []entity.Entity
	errs     []error
	discards int
}

func (r *recorder) config(cfg Config) Config {
	cfg.OnLoadingChange = func(b bool) { r.mu.Lock(); r.loading = append(r.loading, b); r.mu.Unlock() }
	cfg.OnDataSourceChange = func(e entity.Entity) { r.mu.Lock(); r.commits = append(r.commits, e); r.mu.Unlock() }
	cfg.OnRequestError = func(err error) { r.mu.Lock(); r.errs = append(r.errs, err); r.mu.Unlock() }
	return cfg
}

func (r *recorder) FetchStarted(Fingerprint, uint64)                        {}
func (r *recorder) FetchCompleted(Fingerprint, uint64, time.Duration, error) {}
func (r *recorder) FetchDiscarded(Fingerprint, uint64) {
	r.mu.Lock()
	r.discards++
	r.mu.Unlock()
}

var ctx = context.Background()

func TestFingerprintOf(t *testing.T) {
	a, err := FingerprintOf(map[string]interface{}{"b": 1, "a": []interface{}{"x"}})
	require.NoError(t, err)
	b, err := FingerprintOf(map[string]interface{}{"a": []interface{}{"x"}, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	empty, err := FingerprintOf(nil)
	require.NoError(t, err)
	also, err := FingerprintOf(map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, empty, also)

	_, err = FingerprintOf(map[string]interface{}{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestMountFetches(t *testing.T) {
	s := newScripted()
	rec := &recorder{}
	l := NewLoader(rec.config(Config{Request: s.request, Params: map[string]interface{}{"id": 1}}))

	assert.Equal(t, StatusIdle, l.State().Status)
	l.Mount(ctx)
	l.Mount(ctx)
	n := s.waitCall(t)
	assert.True(t, l.Loading())
	assert.Equal(t, StatusLoading, l.State().Status)

	s.release(t, n, result{data: entity.Entity{"name": "web-01"}})
	l.Wait()

	assert.False(t, l.Loading())
	st := l.State()
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, "web-01", st.DataSource["name"])
	assert.Equal(t, 1, s.count())
	assert.Equal(t, []bool{true, false}, rec.loading)
	assert.Len(t, rec.commits, 1)
}

func TestManualDoesNotFetch(t *testing.T) {
	s := newScripted()
	l := NewLoader(Config{Request: s.request, Manual: true})
	l.Mount(ctx)
	_, err := l.Load(ctx, map[string]interface{}{"id": 2})
	require.NoError(t, err)
	l.Wait()
	assert.Equal(t, 0, s.count())

	require.NoError(t, l.Reload(ctx))
	s.release(t, s.waitCall(t), result{data: entity.Entity{}})
	l.Wait()
	assert.Equal(t, 1, s.count())
}

func TestStaticDataSource(t *testing.T) {
	s := newScripted()
	static := entity.Entity{"name": "fixed"}
	l := NewLoader(Config{Request: s.request, DataSource: static})
	l.Mount(ctx)
	require.NoError(t, l.Reload(ctx))
	_, err := l.Load(ctx, map[string]interface{}{"x": 1})
	require.NoError(t, err)
	l.Wait()

	assert.Equal(t, 0, s.count())
	assert.True(t, l.Static())
	assert.Equal(t, StatusSuccess, l.State().Status)
	assert.Equal(t, static, l.DataSource())
	assert.False(t, l.Loading())
}

func TestNoRequest(t *testing.T) {
	l := NewLoader(Config{})
	l.Mount(ctx)
	assert.True(t, errors.Is(l.Reload(ctx), ErrNoRequest))
	assert.Equal(t, StatusIdle, l.State().Status)
}

func TestParamsChangeFetchesOnce(t *testing.T) {
	s := newScripted()
	l := NewLoader(Config{Request: s.request, Params: map[string]interface{}{"id": 1}})
	l.Mount(ctx)
	s.release(t, s.waitCall(t), result{data: entity.Entity{"id": 1}})
	l.Wait()

	// same params in a different key order
	_, err := l.Load(ctx, map[string]interface{}{"id": 1})
	require.NoError(t, err)
	l.Wait()
	assert.Equal(t, 1, s.count())

	_, err = l.Load(ctx, map[string]interface{}{"id": 2})
	require.NoError(t, err)
	_, err = l.Load(ctx, map[string]interface{}{"id": 2})
	require.NoError(t, err)
	n := s.waitCall(t)
	assert.Equal(t, map[string]interface{}{"id": 2}, s.calls[n])
	s.release(t, n, result{data: entity.Entity{"id": 2}})
	l.Wait()

	assert.Equal(t, 2, s.count())
	assert.Equal(t, 2, l.DataSource()["id"])
}

func TestSupersededResponseDiscarded(t *testing.T) {
	s := newScripted()
	rec := &recorder{}
	cfg := rec.config(Config{Request: s.request, Manual: true})
	cfg.Observer = rec
	l := NewLoader(cfg)
	l.Mount(ctx)

	require.NoError(t, l.Reload(ctx))
	first := s.waitCall(t)
	require.NoError(t, l.Reload(ctx))
	second := s.waitCall(t)

	// the newer request settles first, the older one last
	s.release(t, second, result{data: entity.Entity{"v": "new"}})
	s.release(t, first, result{data: entity.Entity{"v": "old"}})
	l.Wait()

	assert.Equal(t, "new", l.DataSource()["v"])
	assert.Len(t, rec.commits, 1, "two quick reloads commit once")
	assert.Equal(t, 1, rec.discards)
	assert.Equal(t, []bool{true, false}, rec.loading)
	assert.Equal(t, uint64(2), l.State().Token)
}

func TestLastSettledWins(t *testing.T) {
	s := newScripted()
	rec := &recorder{}
	l := NewLoader(rec.config(Config{Request: s.request, Manual: true, StalePolicy: LastSettledWins}))
	l.Mount(ctx)

	require.NoError(t, l.Reload(ctx))
	first := s.waitCall(t)
	require.NoError(t, l.Reload(ctx))
	second := s.waitCall(t)

	s.release(t, second, result{data: entity.Entity{"v": "new"}})
	// wait for the first commit before releasing the stale one
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.commits) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, l.Loading())

	s.release(t, first, result{data: entity.Entity{"v": "old"}})
	l.Wait()

	assert.Equal(t, "old", l.DataSource()["v"])
	assert.Len(t, rec.commits, 2)
	assert.False(t, l.Loading())
}

func TestRequestErrorKeepsData(t *testing.T) {
	s := newScripted()
	rec := &recorder{}
	l := NewLoader(rec.config(Config{Request: s.request}))
	l.Mount(ctx)
	s.release(t, s.waitCall(t), result{data: entity.Entity{"name": "web-01"}})
	l.Wait()

	boom := errors.New("backend down")
	require.NoError(t, l.Reload(ctx))
	s.release(t, s.waitCall(t), result{err: boom})
	l.Wait()

	st := l.State()
	assert.Equal(t, StatusError, st.Status)
	assert.True(t, errors.Is(st.Err, boom))
	assert.Equal(t, "web-01", st.DataSource["name"])
	assert.False(t, l.Loading())
	require.Len(t, rec.errs, 1)
	var reqErr *RequestError
	require.True(t, errors.As(rec.errs[0], &reqErr))
	assert.Equal(t, ErrorClassPermanent, reqErr.Class)
	assert.False(t, IsTransient(reqErr))
}

func TestCancelledRequestIsTransient(t *testing.T) {
	s := newScripted()
	rec := &recorder{}
	l := NewLoader(rec.config(Config{Request: s.request, Manual: true}))

	cctx, cancel := context.WithCancel(ctx)
	require.NoError(t, l.Reload(cctx))
	s.waitCall(t)
	cancel()
	l.Wait()

	require.Len(t, rec.errs, 1)
	assert.True(t, IsTransient(rec.errs[0]))
}

func TestSetDataSource(t *testing.T) {
	rec := &recorder{}
	l := NewLoader(rec.config(Config{}))
	l.SetDataSource(entity.Entity{"a": 1})
	assert.Equal(t, StatusSuccess, l.State().Status)
	assert.Equal(t, 1, l.DataSource()["a"])
	assert.Len(t, rec.commits, 1)
}

func TestSetDataSourceSupersedesInflight(t *testing.T) {
	s := newScripted()
	rec := &recorder{}
	cfg := rec.config(Config{Request: s.request})
	cfg.Observer = rec
	l := NewLoader(cfg)
	l.Mount(ctx)
	n := s.waitCall(t)

	l.SetDataSource(entity.Entity{"name": "saved"})
	assert.False(t, l.Loading())
	assert.Equal(t, StatusSuccess, l.State().Status)

	s.release(t, n, result{data: entity.Entity{"name": "fetched"}})
	l.Wait()

	assert.Equal(t, "saved", l.DataSource()["name"])
	assert.Equal(t, 1, rec.discards)
	assert.Len(t, rec.commits, 1)
	assert.Equal(t, []bool{true, false}, rec.loading)

	// A later reload is committed as usual.
	require.NoError(t, l.Reload(ctx))
	s.release(t, s.waitCall(t), result{data: entity.Entity{"name": "fresh"}})
	l.Wait()
	assert.Equal(t, "fresh", l.DataSource()["name"])
}

func TestSetDataSourceLastSettledWins(t *testing.T) {
	s := newScripted()
	l := NewLoader(Config{Request: s.request, StalePolicy: LastSettledWins})
	l.Mount(ctx)
	n := s.waitCall(t)

	l.SetDataSource(entity.Entity{"name": "saved"})
	s.release(t, n, result{data: entity.Entity{"name": "fetched"}})
	l.Wait()

	assert.Equal(t, "fetched", l.DataSource()["name"])
}
