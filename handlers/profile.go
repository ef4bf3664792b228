package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/camden-git/eventfaces/models"
	"github.com/camden-git/eventfaces/services"
	"gorm.io/gorm"
)

const maxSelfieUploadBytes = 20 << 20

// SelfieRegistrar registers and removes a user's reference selfie
type SelfieRegistrar interface {
	RegisterSelfie(ctx context.Context, userID uint, filename string, data io.Reader) (*models.User, error)
	RemoveSelfie(ctx context.Context, userID uint) error
}

type ProfileHandler struct {
	Registrar SelfieRegistrar
}

type messageResponse struct {
	Message string `json:"message"`
}

// UploadSelfie accepts a multipart "file" field and registers it as the
// caller's reference face.
func (h *ProfileHandler) UploadSelfie(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSelfieUploadBytes)
	if err := r.ParseMultipartForm(maxSelfieUploadBytes); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid multipart upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	_, err = h.Registrar.RegisterSelfie(r.Context(), caller.UserID, header.Filename, file)
	if err != nil {
		var validationErr *services.ValidationError
		switch {
		case errors.As(err, &validationErr):
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidSelfie, validationErr.Error()+". Please upload a clear selfie.")
		case errors.Is(err, gorm.ErrRecordNotFound):
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "User not found")
		default:
			log.Printf("handlers: selfie upload for user %d failed: %v", caller.UserID, err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to upload profile photo")
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Profile photo uploaded and face registered successfully"})
}

// DeleteSelfie removes the caller's selfie file
func (h *ProfileHandler) DeleteSelfie(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentication required")
		return
	}

	if err := h.Registrar.RemoveSelfie(r.Context(), caller.UserID); err != nil {
		switch {
		case errors.Is(err, services.ErrNoSelfie):
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "No profile photo found")
		case errors.Is(err, gorm.ErrRecordNotFound):
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "User not found")
		default:
			log.Printf("handlers: selfie removal for user %d failed: %v", caller.UserID, err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to delete profile photo")
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Profile photo deleted successfully"})
}
