package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/JonMunkholm/localfinder/internal/core"
	"github.com/JonMunkholm/localfinder/internal/logging"
)

// ImportStatus is returned by the status endpoint. Session is set while a
// session exists; Last holds the most recent finished commit.
type ImportStatus struct {
	Session *core.ImportSnapshot `json:"session,omitempty"`
	Last    *core.ImportResult   `json:"last,omitempty"`
}

// MappingRequest overrides field mappings. An empty header clears a field.
type MappingRequest struct {
	Mapping map[string]string `json:"mapping"`
}

// handleImportUpload parses a multipart "file" into a fresh import session.
func (s *Server) handleImportUpload(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	maxSize := s.cfg.Import.MaxFileSize
	if r.ContentLength > maxSize {
		s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize))
			return
		}
		s.respondError(w, r, badRequest("invalid upload form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, badRequest("no file provided"))
		return
	}
	defer file.Close()

	session, err := s.importer.Upload(c.Category(), header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import uploaded",
		"category", c.Category().ID,
		"import_id", session.ID(),
		"file", header.Filename,
	)
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	id := c.Category().ID

	var status ImportStatus
	if session, err := s.importer.Session(id); err == nil {
		snap := session.Snapshot()
		status.Session = &snap
	}
	if last, ok := s.importer.LastResult(id); ok {
		status.Last = &last
	}
	if status.Session == nil && status.Last == nil {
		s.respondError(w, r, fmt.Errorf("%w: %s", core.ErrNoImportSession, id))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleImportMapping(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	id := c.Category().ID

	var req MappingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req); err != nil {
		s.respondError(w, r, badRequest("invalid mapping: "+err.Error()))
		return
	}

	fields := make([]string, 0, len(req.Mapping))
	for f := range req.Mapping {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if err := s.importer.SetMapping(id, f, req.Mapping[f]); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	session, err := s.importer.Session(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// handleImportCommit starts the commit in the background and returns 202.
// With ?wait=true it blocks until the commit ends and returns the result.
func (s *Server) handleImportCommit(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	id := c.Category().ID
	log := logging.WithFields(r.Context(), "category", id)

	// The commit runs over every row even if this request is cancelled.
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		result, err := s.importer.Commit(r.Context(), id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		log.Info("import commit completed",
			"import_id", result.SessionID,
			"state", result.State,
			"inserted", result.Inserted,
		)
		writeJSON(w, http.StatusOK, result)
		return
	}

	session, err := s.importer.Start(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	log.Info("import commit started", "import_id", session.ID())
	writeJSON(w, http.StatusAccepted, session.Snapshot())
}

func (s *Server) handleImportCancel(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.importer.Cancel(c.Category().ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleImportDiscard(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.importer.Discard(c.Category().ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportProgress streams commit progress as server-sent events. The
// stream ends with a complete event carrying the final session snapshot.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	id := c.Category().ID

	session, err := s.importer.Session(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"))
		return
	}

	progressCh, stop := session.SubscribeProgress()
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				data, _ := json.Marshal(session.Snapshot())
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Current, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
