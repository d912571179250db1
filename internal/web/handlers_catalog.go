package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/localfinder/internal/core"
)

// maxFormBytes caps JSON request bodies.
const maxFormBytes = 1 << 20

// CategorySummary is one entry of the category list.
type CategorySummary struct {
	core.Category
	Count int  `json:"count"`
	Ready bool `json:"ready"`
}

// RecordView is a record with the helpers of the detail screen.
type RecordView struct {
	core.Record
	Tag       string `json:"tag"`
	PrimaryIP string `json:"primaryIp,omitempty"`
	MapsURL   string `json:"mapsUrl,omitempty"`
}

// MarshalJSON flattens the record and appends the view helpers.
func (v RecordView) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(v.Record)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	extra := map[string]string{"tag": v.Tag, "primaryIp": v.PrimaryIP, "mapsUrl": v.MapsURL}
	for k, val := range extra {
		if val == "" {
			continue
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}

func newRecordView(r core.Record) RecordView {
	v := RecordView{Record: r, Tag: r.Tag(), PrimaryIP: r.PrimaryIP()}
	if r.Coordinates != nil {
		v.MapsURL = r.Coordinates.MapsURL()
	}
	return v
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	out := make([]CategorySummary, 0, len(s.order))
	for _, id := range s.order {
		c := s.catalogs[id]
		out = append(out, CategorySummary{
			Category: c.Category(),
			Count:    c.Len(),
			Ready:    c.Err() == nil,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Fields())
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := c.WaitReady(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := c.Err(); err != nil {
		s.respondError(w, r, err)
		return
	}

	records := c.Search(r.URL.Query().Get("q"))
	views := make([]RecordView, len(records))
	for i, rec := range records {
		views[i] = newRecordView(rec)
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(views)))
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var form core.CreateForm
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
	if err := dec.Decode(&form); err != nil {
		s.respondError(w, r, badRequest("invalid record form: "+err.Error()))
		return
	}

	created, err := c.Create(r.Context(), form)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRecordView(created))
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := c.WaitReady(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, ok := c.Get(chi.URLParam(r, "recordID"))
	if !ok {
		s.respondError(w, r, core.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(rec))
}

// handleDeleteRecord removes a record. The caller confirms with
// ?confirm=true; anything else leaves the record in place.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := c.WaitReady(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, ok := c.Get(chi.URLParam(r, "recordID"))
	if !ok {
		s.respondError(w, r, core.ErrNotFound)
		return
	}

	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	removed, err := c.Remove(r.Context(), rec, func(core.Record) bool { return confirmed })
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !removed {
		s.respondError(w, r, core.ErrConfirmationRequired)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAuditLog lists recent audit entries, newest first, optionally
// filtered by ?category= and ?action=.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, []core.AuditEntry{})
		return
	}
	limit := parseIntParam(r, "limit", 100)
	category := r.URL.Query().Get("category")
	action := core.AuditAction(r.URL.Query().Get("action"))

	fetch := limit
	if category != "" || action != "" {
		fetch = 0
	}
	entries, err := s.audit.RecentAudit(r.Context(), fetch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]core.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if category != "" && e.CategoryID != category {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
