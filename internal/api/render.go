package api

import (
	"bytes"
	"fmt"
	"html"
	"net/http"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/history"
)

// handleNotesHTML renders an operation's purpose, comments and history
// notes as a single HTML page. Purpose and notes are treated as
// markdown.
func (s *Server) handleNotesHTML(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}
	op, found := s.engine.GetOperation(id)
	if !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}

	md := goldmark.New()
	render := func(src string) (string, error) {
		var buf bytes.Buffer
		if err := md.Convert([]byte(src), &buf); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head><meta charset=\"UTF-8\"><title>%s</title></head>\n<body>\n", html.EscapeString(op.Title))
	fmt.Fprintf(&page, "<h1>%s</h1>\n", html.EscapeString(op.Title))

	if op.Purpose != "" {
		rendered, err := render(op.Purpose)
		if err != nil {
			s.logger.Error("markdown render failed", zap.Error(err), zap.String("request_id", requestID))
			s.writeErrorResponse(w, http.StatusInternalServerError, "internal", nil, requestID)
			return
		}
		page.WriteString("<section class=\"purpose\">\n" + rendered + "</section>\n")
	}

	if len(op.Comments) > 0 {
		page.WriteString("<h2>Comments</h2>\n")
		for _, c := range op.Comments {
			rendered, err := render(c.Body)
			if err != nil {
				s.logger.Error("markdown render failed", zap.Error(err), zap.String("request_id", requestID))
				s.writeErrorResponse(w, http.StatusInternalServerError, "internal", nil, requestID)
				return
			}
			fmt.Fprintf(&page, "<article class=\"comment\"><header>%s at %s</header>\n%s</article>\n",
				html.EscapeString(c.Actor), c.Timestamp.UTC().Format("2006-01-02 15:04:05"), rendered)
		}
	}

	records, err := s.engine.QueryHistory(r.Context(), history.Filter{OpID: id})
	if err == nil && len(records) > 0 {
		page.WriteString("<h2>History</h2>\n<ul>\n")
		for _, rec := range records {
			note := ""
			if rec.Note != "" {
				rendered, rerr := render(rec.Note)
				if rerr == nil {
					note = rendered
				}
			}
			fmt.Fprintf(&page, "<li>%s: %s &rarr; %s by %s %s</li>\n",
				rec.Timestamp.UTC().Format("2006-01-02 15:04:05"),
				html.EscapeString(string(rec.From)), html.EscapeString(string(rec.To)),
				html.EscapeString(rec.Actor), note)
		}
		page.WriteString("</ul>\n")
	}

	page.WriteString("</body>\n</html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page.Bytes())
}
