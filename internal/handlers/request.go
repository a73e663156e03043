package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/logging"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = 32 << 20
	multipartMemory  = 8 << 20
)

// decodeJSON reads a single JSON object from the request body. An empty body
// leaves dst untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	return nil
}

// spooler writes multipart file parts to a scratch directory so the blob
// store can upload them from disk.
type spooler struct {
	dir   string
	paths []string
}

func (s *spooler) parse(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid multipart form", err)
	}
	return nil
}

// spool copies the named file part to disk and returns its path, or "" when
// the request has no such part.
func (s *spooler) spool(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", apperr.Wrap(apperr.KindValidation, fmt.Sprintf("invalid %s upload", field), err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	dst, err := os.CreateTemp(s.dir, field+"-*"+ext)
	if err != nil {
		return "", apperr.Internal("failed to store upload", err)
	}
	s.paths = append(s.paths, dst.Name())

	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		return "", apperr.Internal("failed to store upload", err)
	}
	if err := dst.Close(); err != nil {
		return "", apperr.Internal("failed to store upload", err)
	}
	return dst.Name(), nil
}

// cleanup removes spooled files the blob store did not consume.
func (s *spooler) cleanup(r *http.Request) {
	for _, path := range s.paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.FromContext(r.Context()).Warn("remove spooled upload", "path", path, "error", err)
		}
	}
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
