package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/motorlot/motorlot-server/internal/domain"
	"github.com/motorlot/motorlot-server/internal/http/response"
	"github.com/motorlot/motorlot-server/internal/service"
	"github.com/motorlot/motorlot-server/internal/uploads"
)

// Multipart endpoints stay plain chi handlers since Huma doesn't easily
// support multipart forms. They share the envelope via the response package.
func (s *Server) registerUploadRoutes() {
	s.router.Post("/api/v1/cars", s.handleCreateCar)
	s.router.Put("/api/v1/cars/{id}", s.handleUpdateCar)
	s.router.Get("/uploads/{ownerID}/{filename}", s.handleServeUpload)
}

// createCarForm is the multipart form shape for creating a listing.
type createCarForm struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

// handleCreateCar creates a car listing from a multipart form.
// Fields: title, description, tags (repeated or comma-separated), images (files).
func (s *Server) handleCreateCar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := GetUserID(ctx)
	if err != nil {
		response.Unauthorized(w, "Authentication required", s.logger)
		return
	}

	if !s.uploadLimiter.Allow(r.RemoteAddr) {
		response.TooManyRequests(w, "Too many upload requests", s.logger)
		return
	}

	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		response.BadRequest(w, "Failed to parse form data", s.logger)
		return
	}

	form := createCarForm{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	if err := s.validator.Validate(form); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	files, err := s.collectFiles(r)
	if err != nil {
		response.BadRequest(w, err.Error(), s.logger)
		return
	}

	car, err := s.cars.Create(ctx, userID, service.CreateCarInput{
		Title:       form.Title,
		Description: form.Description,
		Tags:        collectTags(r.MultipartForm.Value["tags"]),
		Files:       files,
	})
	if err != nil {
		s.logger.Error("Failed to create car", "error", err, "user_id", userID)
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, toCarResponse(car), s.logger)
}

// handleUpdateCar applies a partial update from a multipart form.
// Absent or empty fields keep their current values, and uploaded images
// are appended after the existing ones.
func (s *Server) handleUpdateCar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := GetUserID(ctx)
	if err != nil {
		response.Unauthorized(w, "Authentication required", s.logger)
		return
	}

	carID := chi.URLParam(r, "id")
	if carID == "" {
		response.BadRequest(w, "Car ID is required", s.logger)
		return
	}

	if !s.uploadLimiter.Allow(r.RemoteAddr) {
		response.TooManyRequests(w, "Too many upload requests", s.logger)
		return
	}

	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		response.BadRequest(w, "Failed to parse form data", s.logger)
		return
	}

	update := domain.CarUpdate{
		Title:       formValuePtr(r, "title"),
		Description: formValuePtr(r, "description"),
	}
	if tags := collectTags(r.MultipartForm.Value["tags"]); len(tags) > 0 {
		update.Tags = &tags
	}

	if update.Title != nil && len(*update.Title) > 200 {
		response.BadRequest(w, "title must not exceed 200 characters", s.logger)
		return
	}

	files, err := s.collectFiles(r)
	if err != nil {
		response.BadRequest(w, err.Error(), s.logger)
		return
	}

	car, err := s.cars.Update(ctx, userID, carID, update, files)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, toCarResponse(car), s.logger)
}

// handleServeUpload streams a stored image back to the client.
func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	filename := chi.URLParam(r, "filename")
	if ownerID == "" || filename == "" {
		response.BadRequest(w, "Owner and filename are required", s.logger)
		return
	}

	data, err := s.uploads.Get(uploads.RefPrefix + "/" + ownerID + "/" + filename)
	if err != nil {
		response.NotFound(w, "File not found", s.logger)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("Failed to write upload response", "error", err)
	}
}

// collectFiles reads the uploaded images from the multipart form in the
// order the client sent them.
func (s *Server) collectFiles(r *http.Request) ([]uploads.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	headers := r.MultipartForm.File["images"]
	if len(headers) > s.maxUploadFiles {
		return nil, fmt.Errorf("too many files, maximum is %d", s.maxUploadFiles)
	}

	files := make([]uploads.File, 0, len(headers))
	for _, header := range headers {
		if header.Size > s.maxUploadSize {
			return nil, fmt.Errorf("file %s too large, maximum is %d bytes", header.Filename, s.maxUploadSize)
		}

		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open uploaded file %s", header.Filename)
		}

		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read uploaded file %s", header.Filename)
		}

		files = append(files, uploads.File{Name: header.Filename, Data: data})
	}

	return files, nil
}

// formValuePtr returns a pointer to the form value, or nil when the field
// is absent or empty. Empty form fields never overwrite stored values.
func formValuePtr(r *http.Request, key string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values := r.MultipartForm.Value[key]
	if len(values) == 0 || values[0] == "" {
		return nil
	}
	return &values[0]
}

// collectTags flattens repeated and comma-separated tag values.
func collectTags(values []string) []string {
	var tags []string
	for _, v := range values {
		for _, tag := range strings.Split(v, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}
