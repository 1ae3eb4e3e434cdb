package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/fetch"
	"github.com/openfroyo/descriptions/pkg/stores"
)

// SaveRequest is the body of a save action.
type SaveRequest struct {
	Value interface{} `json:"value"`
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	class := errorToHTTP(w, s.logger, err)
	s.tel.Metrics.RecordError(class)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"views":    len(s.catalog.Names()),
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"views": s.catalog.Names()})
}

// session resolves the session of the request. An entity that is missing
// from the store fails with stores.ErrNotFound and leaves no session.
func (s *Server) session(r *http.Request) (*Session, error) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "view"), chi.URLParam(r, "id"), subjectFrom(r))
	if err != nil {
		return nil, err
	}
	if st := sess.Descriptions.State(); st.Status == fetch.StatusError && errors.Is(st.Err, stores.ErrNotFound) {
		s.sessions.Remove(sess)
		return nil, fmt.Errorf("entity %s: %w", sess.EntityID, stores.ErrNotFound)
	}
	return sess, nil
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Descriptions.Render(r.Context()))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := sess.Descriptions.Reload(context.WithoutCancel(r.Context())); err != nil {
		s.fail(w, err)
		return
	}
	sess.Descriptions.Wait()
	writeJSON(w, http.StatusOK, sess.Descriptions.Render(r.Context()))
}

func (s *Server) handleFieldAction(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_KEY", err.Error())
		return
	}
	key, err := entity.ParseKey(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_KEY", err.Error())
		return
	}

	sess, err := s.session(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	d := sess.Descriptions
	ctx := r.Context()

	switch action := chi.URLParam(r, "action"); action {
	case "start":
		err = d.StartEditable(key)
	case "cancel":
		err = d.Cancel(key)
	case "save":
		var req SaveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		if err = d.SetValue(key, req.Value); err == nil {
			err = d.Save(ctx, key)
		}
	case "delete":
		err = d.Delete(ctx, key)
	default:
		writeError(w, http.StatusBadRequest, "UNKNOWN_ACTION", fmt.Sprintf("unknown action %q", action))
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Descriptions.Render(ctx))
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	records, err := s.cfg.Store.List(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entities": records, "limit": limit, "offset": offset})
}

func (s *Server) handlePutEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var data entity.Entity
	if err := decodeJSON(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if data == nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "entity must be a JSON object")
		return
	}

	var old interface{}
	if prev, err := s.cfg.Store.Get(r.Context(), id); err == nil {
		old = prev.Data
	}
	rec, err := s.cfg.Store.Put(r.Context(), id, data)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.audit(r, &stores.AuditEntry{
		EntityID: id,
		Action:   stores.AuditActionPut,
		OldValue: stores.AuditValue(old),
		NewValue: stores.AuditValue(data),
		Version:  rec.Version,
	})
	s.sessions.Invalidate(context.WithoutCancel(r.Context()), id, "")
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cfg.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.cfg.Store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.cfg.Store.Delete(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	s.audit(r, &stores.AuditEntry{
		EntityID: id,
		Action:   stores.AuditActionDelete,
		OldValue: stores.AuditValue(rec.Data),
		Version:  rec.Version,
	})
	s.sessions.Drop(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	entries, err := s.cfg.Store.ListAudit(r.Context(), stores.AuditFilter{
		EntityID: chi.URLParam(r, "id"),
		Action:   stores.AuditAction(r.URL.Query().Get("action")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) audit(r *http.Request, entry *stores.AuditEntry) {
	entry.Actor = subjectFrom(r).User
	if err := s.cfg.Store.AppendAudit(r.Context(), entry); err != nil {
		s.logger.Error().Err(err).Str("entity_id", entry.EntityID).Msg("Failed to record audit entry")
	}
}
