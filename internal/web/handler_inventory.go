package web

import (
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/vbonduro/inventory/internal/service"
)

const maxJSONBody = 1 << 20

type updateItemRequest struct {
	Name        *string `json:"inventory_name"`
	Description *string `json:"description"`
}

type deleteItemResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
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

	item, err := s.service.RegisterItem(r.Context(), r.FormValue("inventory_name"), r.FormValue("description"), photo.upload())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListItems(r.Context()))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	item, err := s.service.GetItem(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req updateItemRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		if !s.parseForm(w, r) {
			return
		}
		// Only fields present in the form are changed.
		if v, ok := r.PostForm["inventory_name"]; ok && len(v) > 0 {
			req.Name = &v[0]
		}
		if v, ok := r.PostForm["description"]; ok && len(v) > 0 {
			req.Description = &v[0]
		}
	}

	item, err := s.service.UpdateItem(r.Context(), id, req.Name, req.Description)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.service.DeleteItem(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteItemResponse{Message: "deleted", ID: id})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	id, err := parsePositiveID(r.FormValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	includePhoto := parseFlag(r.FormValue("includePhoto")) || parseFlag(r.FormValue("has_photo"))

	item, rc, mimeType, err := s.service.Search(r.Context(), id, includePhoto)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if rc != nil {
		s.streamPhoto(w, rc, mimeType)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// parseForm reads url-encoded or multipart bodies up to the upload limit. It
// reports false after writing an error response.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if r.ContentLength > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid form body")
	return false
}

type formPhoto struct {
	file    multipart.File
	content service.PhotoUpload
}

func (p *formPhoto) upload() *service.PhotoUpload {
	if p == nil {
		return nil
	}
	return &p.content
}

// photoFromForm returns the "photo" part of a parsed form, or nil when none was
// attached. An empty part counts as none.
func photoFromForm(r *http.Request) (*formPhoto, error) {
	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if header.Size == 0 {
		_ = file.Close()
		return nil, nil
	}
	return &formPhoto{
		file:    file,
		content: service.PhotoUpload{Filename: header.Filename, Content: file},
	}, nil
}
