package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oakpoint/schoolhub/internal/api/dto"
	"github.com/oakpoint/schoolhub/internal/api/middleware"
	"github.com/oakpoint/schoolhub/internal/database/models"
	"github.com/oakpoint/schoolhub/pkg/crypto"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsHandler manages per-tenant configuration. The third-party API key
// is stored encrypted and only ever returned masked.
type SettingsHandler struct {
	db     *gorm.DB
	cipher *crypto.Cipher
}

func NewSettingsHandler(db *gorm.DB, cipher *crypto.Cipher) *SettingsHandler {
	return &SettingsHandler{db: db, cipher: cipher}
}

func (h *SettingsHandler) GetAPIKey(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var setting models.OrganizationSetting
	err := h.db.WithContext(r.Context()).Where("organization_id = ?", orgID).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusOK, dto.APIKeyResponse{})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
		return
	}

	plaintext, err := h.cipher.DecryptString(setting.APIKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dto.APIKeyResponse{
		APIKey:    maskKey(plaintext),
		Encrypted: crypto.IsEncrypted(setting.APIKey),
	})
}

func (h *SettingsHandler) PutAPIKey(w http.ResponseWriter, r *http.Request) {
	var req dto.APIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	encrypted, err := h.cipher.EncryptString(req.APIKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
		return
	}

	orgID := middleware.GetOrganizationID(r.Context())
	setting := models.OrganizationSetting{
		OrganizationID: orgID,
		APIKey:         encrypted,
	}
	err = h.db.WithContext(r.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dto.APIKeyResponse{
		APIKey:    maskKey(req.APIKey),
		Encrypted: true,
	})
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
