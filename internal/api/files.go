package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/model"
)

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			writeError(w, http.StatusBadRequest, msgNoFiles)
			return
		}
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, msgNoFiles)
		return
	}
	addToVault, _ := strconv.ParseBool(r.FormValue("addToVault"))

	items := make([]UploadItem, len(headers))
	for i, fh := range headers {
		items[i] = UploadItem{Name: fh.Filename, Read: func() ([]byte, error) { return readPart(fh) }}
	}

	up := &Uploader{Storage: s.deps.Storage, Concurrency: s.opts.UploadConcurrency}
	if s.deps.Vault != nil {
		up.Vault = s.deps.Vault
	}
	uploaded, err := up.Upload(r.Context(), items, addToVault)
	if err != nil {
		zap.L().Error("api: upload failed", zap.Error(err))
		writeFailure(w, err, "Upload failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"uploaded": uploaded})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", fh.Filename)
	}
	defer f.Close() //nolint:errcheck
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", fh.Filename)
	}
	return data, nil
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "Missing owner")
		return
	}
	if !common.IsHexAddress(owner) {
		writeError(w, http.StatusBadRequest, "Invalid owner")
		return
	}

	files, err := s.deps.Vault.FilesByUser(r.Context(), owner)
	if err != nil {
		writeFailure(w, err, "Failed to fetch files")
		return
	}
	if files == nil {
		files = []model.VaultFile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	rootHash := chi.URLParam(r, "rootHash")
	content, err := s.deps.Storage.Download(r.Context(), rootHash)
	if err != nil {
		writeFailure(w, err, "Failed to fetch file content")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"rootHash": rootHash,
		"content":  content,
	})
}
