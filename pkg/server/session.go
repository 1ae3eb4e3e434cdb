package server

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/descriptions/pkg/config"
	"github.com/openfroyo/descriptions/pkg/descriptions"
	"github.com/openfroyo/descriptions/pkg/editable"
	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/policy"
	"github.com/openfroyo/descriptions/pkg/stores"
	"github.com/openfroyo/descriptions/pkg/telemetry"
)

// DefaultIdleTimeout is how long an unused session is kept.
const DefaultIdleTimeout = 15 * time.Minute

// ErrViewNotFound is returned for views missing from the catalog.
var ErrViewNotFound = errors.New("view not found")

type sessionKey struct {
	view     string
	entityID string
	subject  string
}

func subjectKey(s policy.Subject) string {
	roles := append([]string(nil), s.Roles...)
	sort.Strings(roles)
	return s.User + "|" + strings.Join(roles, ",")
}

// Session is one mounted descriptions view for an entity and a subject.
type Session struct {
	ID       string
	View     string
	EntityID string
	Subject  policy.Subject

	Descriptions *descriptions.Descriptions

	version    atomic.Int64
	lastActive atomic.Int64
}

// Version returns the store version of the loaded entity.
func (s *Session) Version() int64 { return s.version.Load() }

func (s *Session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

func (s *Session) idle(timeout time.Duration) bool {
	return time.Since(time.Unix(0, s.lastActive.Load())) > timeout
}

// SessionManager creates and expires sessions.
type SessionManager struct {
	catalog     *Catalog
	store       stores.Store
	authorizer  descriptions.Authorizer
	tel         *telemetry.Telemetry
	logger      zerolog.Logger
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewSessionManager creates a session manager. authorizer may be nil.
func NewSessionManager(catalog *Catalog, store stores.Store, authorizer descriptions.Authorizer, tel *telemetry.Telemetry, logger zerolog.Logger, idleTimeout time.Duration) *SessionManager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &SessionManager{
		catalog:     catalog,
		store:       store,
		authorizer:  authorizer,
		tel:         tel,
		logger:      logger.With().Str("component", "sessions").Logger(),
		idleTimeout: idleTimeout,
		sessions:    make(map[sessionKey]*Session),
	}
}

// Get returns the session for view, entity and subject, mounting a new one
// and waiting for its first load when none exists.
func (m *SessionManager) Get(ctx context.Context, view, entityID string, subject policy.Subject) (*Session, error) {
	key := sessionKey{view: view, entityID: entityID, subject: subjectKey(subject)}

	m.mu.Lock()
	if s, ok := m.sessions[key]; ok && !s.idle(m.idleTimeout) {
		m.mu.Unlock()
		s.touch()
		return s, nil
	}
	cv, ok := m.catalog.Get(view)
	if !ok {
		m.mu.Unlock()
		return nil, ErrViewNotFound
	}
	s := m.newSession(cv, entityID, subject)
	m.sessions[key] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.tel.Metrics.SetActiveSessions(count)
	m.logger.Debug().Str("session", s.ID).Str("view", view).Str("entity_id", entityID).Msg("Session created")

	// Requests must outlive the HTTP request that created the session.
	s.Descriptions.Mount(context.WithoutCancel(ctx))
	s.Descriptions.Wait()
	return s, nil
}

func (m *SessionManager) newSession(cv *config.CompiledView, entityID string, subject policy.Subject) *Session {
	s := &Session{
		ID:       uuid.New().String(),
		View:     cv.Name,
		EntityID: entityID,
		Subject:  subject,
	}
	s.touch()

	params := make(map[string]interface{}, len(cv.Params)+1)
	for k, v := range cv.Params {
		params[k] = v
	}
	params[stores.IDParam] = entityID

	cfg := descriptions.FromCompiledView(cv, descriptions.Config{
		EntityID: entityID,
		Params:   params,
		Request: stores.VersionedRequestFunc(m.store, func(_ string, version int64) {
			s.version.Store(version)
		}),
		Editable: &descriptions.EditableConfig{
			Reject:     editable.RejectError,
			ShowDelete: true,
			OnSave:     m.persistSave(s),
			OnDelete:   m.persistDelete(s),
		},
		Subject:   subject,
		Telemetry: m.tel,
		Logger:    m.logger.With().Str("session", s.ID).Logger(),
	})
	if m.authorizer != nil {
		cfg.Policy = m.authorizer
	}
	s.Descriptions = descriptions.New(cfg)
	return s
}

// persistSave writes a saved field back to the store. A concurrent write
// by another session fails with stores.ErrVersionConflict and the field
// stays in edit mode.
func (m *SessionManager) persistSave(s *Session) func(context.Context, entity.Key, interface{}, entity.Entity) error {
	return func(ctx context.Context, key entity.Key, value interface{}, record entity.Entity) error {
		old, _ := entity.Resolve(s.Descriptions.DataSource(), entity.ParsePath(key.Name()))
		return m.commit(ctx, s, key, stores.AuditActionSave, old, value, record)
	}
}

func (m *SessionManager) persistDelete(s *Session) func(context.Context, entity.Key, entity.Entity) error {
	return func(ctx context.Context, key entity.Key, record entity.Entity) error {
		old, _ := entity.Resolve(s.Descriptions.DataSource(), entity.ParsePath(key.Name()))
		return m.commit(ctx, s, key, stores.AuditActionRemove, old, nil, record)
	}
}

func (m *SessionManager) commit(ctx context.Context, s *Session, key entity.Key, action stores.AuditAction, old, value interface{}, record entity.Entity) error {
	rec, err := m.store.PutIfVersion(ctx, s.EntityID, record, s.version.Load())
	if err != nil {
		if errors.Is(err, stores.ErrVersionConflict) {
			_ = s.Descriptions.Reload(context.WithoutCancel(ctx))
		}
		return err
	}
	s.version.Store(rec.Version)

	entry := &stores.AuditEntry{
		EntityID: s.EntityID,
		View:     s.View,
		Field:    key.String(),
		Action:   action,
		Actor:    s.Subject.User,
		OldValue: stores.AuditValue(old),
		NewValue: stores.AuditValue(value),
		Version:  rec.Version,
	}
	if err := m.store.AppendAudit(ctx, entry); err != nil {
		m.logger.Error().Err(err).Str("entity_id", s.EntityID).Msg("Failed to record audit entry")
	}

	m.Invalidate(context.WithoutCancel(ctx), s.EntityID, s.ID)
	return nil
}

// Invalidate reloads every session showing entityID except the one with
// id except.
func (m *SessionManager) Invalidate(ctx context.Context, entityID, except string) {
	for _, s := range m.matching(func(s *Session) bool {
		return s.EntityID == entityID && s.ID != except
	}) {
		if err := s.Descriptions.Reload(ctx); err != nil {
			m.logger.Warn().Err(err).Str("session", s.ID).Msg("Reload failed")
		}
	}
}

// Drop removes every session showing entityID.
func (m *SessionManager) Drop(entityID string) {
	m.mu.Lock()
	for k := range m.sessions {
		if k.entityID == entityID {
			delete(m.sessions, k)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()
	m.tel.Metrics.SetActiveSessions(count)
}

// Remove removes one session.
func (m *SessionManager) Remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, sessionKey{view: s.View, entityID: s.EntityID, subject: subjectKey(s.Subject)})
	count := len(m.sessions)
	m.mu.Unlock()
	m.tel.Metrics.SetActiveSessions(count)
}

// ApplySchema swaps the columns of every session of the reloaded views.
func (m *SessionManager) ApplySchema(views []*config.CompiledView) {
	for _, cv := range views {
		name := cv.Name
		for _, s := range m.matching(func(s *Session) bool { return s.View == name }) {
			s.Descriptions.SetColumns(cv.Columns)
		}
		_ = m.tel.Events.PublishSchemaReloaded(cv.Name, cv.Source)
	}
}

// Cleanup removes idle sessions and returns how many were removed.
func (m *SessionManager) Cleanup() int {
	m.mu.Lock()
	removed := 0
	for k, s := range m.sessions {
		if s.idle(m.idleTimeout) {
			delete(m.sessions, k)
			removed++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		m.tel.Metrics.SetActiveSessions(count)
		m.logger.Debug().Int("removed", removed).Msg("Expired idle sessions")
	}
	return removed
}

// Len returns the number of sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) matching(pred func(*Session) bool) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}
