package web

import (
	"net/http"
)

func (s *Server) handleGetItemPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	rc, mimeType, err := s.service.OpenItemPhoto(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.streamPhoto(w, rc, mimeType)
}

func (s *Server) handleUpdateItemPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !s.parseForm(w, r) {
		return
	}
	photo, err := photoFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid photo upload")
		return
	}
	if photo != nil {
		defer closeWithLog(photo.file, "upload file", s.logger)
	}

	item, err := s.service.UpdatePhoto(r.Context(), id, photo.upload())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleStoredPhoto serves a landed photo by file name, the URL form recorded
// on items.
func (s *Server) handleStoredPhoto(w http.ResponseWriter, r *http.Request) {
	rc, mimeType, err := s.service.OpenStoredPhoto(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.streamPhoto(w, rc, mimeType)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.service.ListUploads(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploads)
}
