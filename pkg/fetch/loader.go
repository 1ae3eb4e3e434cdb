package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/descriptions/pkg/entity"
)

// Observer receives fetch lifecycle notifications.
type Observer interface {
	FetchStarted(fp Fingerprint, token uint64)
	FetchCompleted(fp Fingerprint, token uint64, d time.Duration, err error)
	FetchDiscarded(fp Fingerprint, token uint64)
}

// Config configures a Loader.
type Config struct {
	Request RequestFunc
	Params  map[string]interface{}

	// DataSource, when set, is used as-is and no request is ever issued.
	DataSource entity.Entity

	// Manual disables the fetch on mount and on params changes. Reload
	// still fetches.
	Manual bool

	StalePolicy StalePolicy

	OnRequestError     func(err error)
	OnLoadingChange    func(loading bool)
	OnDataSourceChange func(e entity.Entity)

	Observer Observer
	Logger   zerolog.Logger
}

// Loader owns the data source of one view and the requests that fill it.
type Loader struct {
	cfg    Config
	logger zerolog.Logger
	static bool

	mu       sync.Mutex
	state    RequestState
	params   map[string]interface{}
	mounted  bool
	latest   uint64
	inflight int
	loading  bool

	wg sync.WaitGroup
}

// NewLoader returns an unmounted loader.
func NewLoader(cfg Config) *Loader {
	l := &Loader{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "fetch-loader").Logger(),
		static: cfg.DataSource != nil,
		params: cfg.Params,
		state:  RequestState{Status: StatusIdle},
	}
	if fp, err := FingerprintOf(cfg.Params); err == nil {
		l.state.Fingerprint = fp
	}
	if l.static {
		l.state.Status = StatusSuccess
		l.state.DataSource = cfg.DataSource
		l.state.UpdatedAt = time.Now()
	}
	return l
}

// Mount issues the initial request unless the loader is static, manual or
// has no request function. Mounting twice is a no-op.
func (l *Loader) Mount(ctx context.Context) {
	l.mu.Lock()
	if l.mounted {
		l.mu.Unlock()
		return
	}
	l.mounted = true
	auto := !l.static && !l.cfg.Manual && l.cfg.Request != nil
	l.mu.Unlock()

	if auto {
		l.dispatch(ctx)
	}
}

// Load sets new params. When their fingerprint differs from the current
// one, exactly one request is issued (unless manual or static). It returns
// the state right after the call.
func (l *Loader) Load(ctx context.Context, params map[string]interface{}) (RequestState, error) {
	fp, err := FingerprintOf(params)
	if err != nil {
		return l.State(), err
	}

	l.mu.Lock()
	changed := fp != l.state.Fingerprint
	l.params = params
	l.state.Fingerprint = fp
	auto := changed && l.mounted && !l.static && !l.cfg.Manual && l.cfg.Request != nil
	l.mu.Unlock()

	if auto {
		l.logger.Debug().Str("fingerprint", string(fp)).Msg("Params changed, refetching")
		l.dispatch(ctx)
	}
	return l.State(), nil
}

// Reload issues a request with the current params.
func (l *Loader) Reload(ctx context.Context) error {
	if l.static {
		return nil
	}
	if l.cfg.Request == nil {
		return ErrNoRequest
	}
	l.dispatch(ctx)
	return nil
}

// SetDataSource replaces the data source locally. Under DiscardSuperseded
// requests still in flight are superseded by the local commit.
func (l *Loader) SetDataSource(e entity.Entity) {
	l.mu.Lock()
	stopped := false
	if l.cfg.StalePolicy == DiscardSuperseded {
		l.latest++
		stopped = l.loading
		l.loading = false
	}
	l.state.DataSource = e
	l.state.Status = StatusSuccess
	l.state.Err = nil
	l.state.UpdatedAt = time.Now()
	l.mu.Unlock()

	if stopped && l.cfg.OnLoadingChange != nil {
		l.cfg.OnLoadingChange(false)
	}
	if l.cfg.OnDataSourceChange != nil {
		l.cfg.OnDataSourceChange(e)
	}
}

// DataSource returns the committed entity.
func (l *Loader) DataSource() entity.Entity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.DataSource
}

// State returns a snapshot of the loader.
func (l *Loader) State() RequestState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Loading reports whether a request the loader will commit is in flight.
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Static reports whether the loader serves a fixed data source.
func (l *Loader) Static() bool { return l.static }

// HasRequest reports whether a request function is configured.
func (l *Loader) HasRequest() bool { return l.cfg.Request != nil }

// Wait blocks until every issued request has settled.
func (l *Loader) Wait() {
	l.wg.Wait()
}

func (l *Loader) dispatch(ctx context.Context) {
	l.mu.Lock()
	l.latest++
	token := l.latest
	fp := l.state.Fingerprint
	params := l.params
	l.inflight++
	started := !l.loading
	l.loading = true
	l.state.Status = StatusLoading
	l.state.Token = token
	l.wg.Add(1)
	l.mu.Unlock()

	if started && l.cfg.OnLoadingChange != nil {
		l.cfg.OnLoadingChange(true)
	}
	if l.cfg.Observer != nil {
		l.cfg.Observer.FetchStarted(fp, token)
	}
	l.logger.Debug().Uint64("token", token).Str("fingerprint", string(fp)).Msg("Request issued")

	go l.run(ctx, token, fp, params)
}

func (l *Loader) run(ctx context.Context, token uint64, fp Fingerprint, params map[string]interface{}) {
	defer l.wg.Done()

	start := time.Now()
	data, err := l.cfg.Request(ctx, params)
	elapsed := time.Since(start)

	if l.cfg.Observer != nil {
		l.cfg.Observer.FetchCompleted(fp, token, elapsed, err)
	}

	l.mu.Lock()
	l.inflight--
	if l.cfg.StalePolicy == DiscardSuperseded && token != l.latest {
		l.mu.Unlock()
		l.logger.Debug().Uint64("token", token).Msg("Discarding superseded response")
		if l.cfg.Observer != nil {
			l.cfg.Observer.FetchDiscarded(fp, token)
		}
		return
	}

	var reqErr *RequestError
	if err != nil {
		reqErr = &RequestError{Class: classify(err), Fingerprint: fp, Token: token, Err: err}
		l.state.Status = StatusError
		l.state.Err = reqErr
	} else {
		l.state.Status = StatusSuccess
		l.state.Err = nil
		l.state.DataSource = data
	}
	l.state.Token = token
	l.state.UpdatedAt = time.Now()

	wasLoading := l.loading
	if l.cfg.StalePolicy == DiscardSuperseded {
		l.loading = false
	} else {
		l.loading = l.inflight > 0
	}
	if l.loading {
		l.state.Status = StatusLoading
	}
	stopped := wasLoading && !l.loading
	l.mu.Unlock()

	if stopped && l.cfg.OnLoadingChange != nil {
		l.cfg.OnLoadingChange(false)
	}
	if reqErr != nil {
		l.logger.Warn().Err(err).Uint64("token", token).Msg("Request failed, keeping previous data")
		if l.cfg.OnRequestError != nil {
			l.cfg.OnRequestError(reqErr)
		}
		return
	}
	if l.cfg.OnDataSourceChange != nil {
		l.cfg.OnDataSourceChange(data)
	}
}
