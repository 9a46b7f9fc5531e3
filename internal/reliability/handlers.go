package reliability

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles backup and restore HTTP requests. The cloud pieces
// are nil when no S3 bucket is configured.
type Handler struct {
	jsonBackup *JSONBackupService
	s3Backup   *S3BackupService
	restore    *RestoreService
	dataDir    string
	log        zerolog.Logger
}

// NewHandler creates a new backup handler
func NewHandler(jsonBackup *JSONBackupService, s3Backup *S3BackupService, restore *RestoreService, dataDir string, log zerolog.Logger) *Handler {
	return &Handler{
		jsonBackup: jsonBackup,
		s3Backup:   s3Backup,
		restore:    restore,
		dataDir:    dataDir,
		log:        log.With().Str("handler", "backup").Logger(),
	}
}

// HandleExport handles GET /api/backup/export: downloads the full data
// graph as a JSON document.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("hestia-export-%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	if err := h.jsonBackup.Export(w); err != nil {
		h.log.Error().Err(err).Msg("Failed to export backup")
	}
}

// HandleImport handles POST /api/backup/import: replaces all data with
// an uploaded JSON export.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if err := h.jsonBackup.Restore(r.Body); err != nil {
		h.log.Error().Err(err).Msg("Failed to import backup")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"imported": true})
}

// HandleCloudBackup handles POST /api/backup/cloud
func (h *Handler) HandleCloudBackup(w http.ResponseWriter, r *http.Request) {
	if h.s3Backup == nil {
		http.Error(w, "Cloud backup is not configured", http.StatusServiceUnavailable)
		return
	}

	if err := h.s3Backup.CreateAndUploadBackup(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to run cloud backup")
		http.Error(w, "Failed to run cloud backup", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"uploaded": true})
}

// HandleCloudList handles GET /api/backup/cloud
func (h *Handler) HandleCloudList(w http.ResponseWriter, r *http.Request) {
	if h.s3Backup == nil {
		http.Error(w, "Cloud backup is not configured", http.StatusServiceUnavailable)
		return
	}

	backups, err := h.s3Backup.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list cloud backups")
		http.Error(w, "Failed to list cloud backups", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, backups)
}

// HandleStageRestore handles POST /api/backup/restore/{filename}: it
// downloads an archive from the bucket and stages it for the next
// startup.
func (h *Handler) HandleStageRestore(w http.ResponseWriter, r *http.Request) {
	if h.s3Backup == nil {
		http.Error(w, "Cloud backup is not configured", http.StatusServiceUnavailable)
		return
	}

	filename := chi.URLParam(r, "filename")
	downloadDir := filepath.Join(h.dataDir, "downloads")
	archivePath, err := h.s3Backup.DownloadBackup(r.Context(), filename, downloadDir)
	if err != nil {
		h.log.Error().Err(err).Str("filename", filename).Msg("Failed to download backup")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer os.Remove(archivePath)

	if err := h.restore.StageArchive(archivePath); err != nil {
		h.log.Error().Err(err).Msg("Failed to stage restore")
		http.Error(w, "Failed to stage restore", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"staged":  filename,
		"message": "Restore will be applied on next restart",
	})
}

// HandleRestoreStatus handles GET /api/backup/restore
func (h *Handler) HandleRestoreStatus(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, map[string]interface{}{"pending": h.restore.Pending()})
}

// HandleCancelRestore handles DELETE /api/backup/restore
func (h *Handler) HandleCancelRestore(w http.ResponseWriter, r *http.Request) {
	if err := h.restore.CancelStaged(); err != nil {
		h.log.Error().Err(err).Msg("Failed to cancel staged restore")
		http.Error(w, "Failed to cancel staged restore", http.StatusInternalServerError)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{"cancelled": true})
}

// RegisterRoutes registers all backup routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backup", func(r chi.Router) {
		r.Get("/export", h.HandleExport)
		r.Post("/import", h.HandleImport)
		r.Post("/cloud", h.HandleCloudBackup)
		r.Get("/cloud", h.HandleCloudList)
		r.Get("/restore", h.HandleRestoreStatus)
		r.Delete("/restore", h.HandleCancelRestore)
		r.Post("/restore/{filename}", h.HandleStageRestore)
	})
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
