package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/localfinder/internal/core"
	"github.com/JonMunkholm/localfinder/internal/logging"
)

// handleDownloadTemplate serves an empty workbook with the category's
// column headers.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	f, err := core.TemplateWorkbook(c.Category())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeWorkbook(w, r, f, fileSlug(c.Category().Name)+"_template.xlsx")
}

// handleExportRecords serves the category's records, filtered by ?q=, as a
// workbook.
func (s *Server) handleExportRecords(w http.ResponseWriter, r *http.Request) {
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
	f, err := core.ExportWorkbook(c.Category(), records)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	name := fmt.Sprintf("%s_%s.xlsx", fileSlug(c.Category().Name), time.Now().Format("20060102_150405"))
	s.writeWorkbook(w, r, f, name)
}

func (s *Server) writeWorkbook(w http.ResponseWriter, r *http.Request, f *excelize.File, name string) {
	defer f.Close()

	w.Header().Set("Content-Type", core.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := f.Write(w); err != nil {
		logging.FromContext(r.Context()).Warn("workbook write failed", "file", name, "error", err)
	}
}

// fileSlug turns a category name into a download file name.
func fileSlug(name string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	if slug == "" {
		return "catalog"
	}
	return slug
}
