package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/menta2k/webar-studio/internal/storage"
	"github.com/menta2k/webar-studio/internal/utils"
	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/raster"
	"github.com/menta2k/webar-studio/pkg/types"
)

// CompileResponse is returned by the compile endpoint and listed per project
type CompileResponse struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	ArtifactURL string    `json:"artifactUrl,omitempty"`
	Strategy    string    `json:"strategy,omitempty"`
	Points      int       `json:"points"`
	LowTexture  bool      `json:"lowTexture"`
	Placeholder bool      `json:"placeholder"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type compileRequest struct {
	ImageURL string `json:"imageUrl"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	var req types.CredentialRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, errs.InvalidParameterf("issue credential", "decode request: %v", err))
		return
	}
	if strings.TrimSpace(req.FileName) == "" {
		writeError(w, errs.InvalidParameterf("issue credential", "fileName is required"))
		return
	}

	rec, err := s.store.IssueCredential(r.Context(), req.FileName, req.ContentType, s.credentialTTL)
	if err != nil {
		writeError(w, err)
		return
	}

	base := s.baseURL()
	fields := map[string]string{"key": rec.ObjectKey}
	if rec.ContentType != "" {
		fields["Content-Type"] = rec.ContentType
	}
	writeJSON(w, http.StatusOK, types.Credential{
		URL:       base + "/storage/upload/" + rec.Token,
		Fields:    fields,
		PublicURL: objectURL(base, rec.ObjectKey),
	})
}

func (s *Server) handleStorageUpload(w http.ResponseWriter, r *http.Request) {
	const op = "storage upload"
	rec, err := s.store.ConsumeCredential(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		writeError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	var size int64
	contentType := rec.ContentType
	if r.Method == http.MethodPut {
		size, err = s.objects.Put(rec.ObjectKey, r.Body)
		if ct := r.Header.Get("Content-Type"); ct != "" {
			contentType = ct
		}
	} else {
		var ct string
		size, ct, err = s.receiveFilePart(r, op, func(fieldName, value string) error {
			if fieldName == "key" && value != rec.ObjectKey {
				return errs.New(errs.ErrCredential, op, errors.New("key does not match credential"))
			}
			return nil
		}, func(string) string { return rec.ObjectKey })
		if ct != "" {
			contentType = ct
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.RecordObject(r.Context(), storage.ObjectRecord{
		Key:         rec.ObjectKey,
		FileName:    rec.FileName,
		ContentType: contentType,
		Size:        size,
		Source:      "direct",
	}); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("object stored", "key", rec.ObjectKey, "size", humanize.Bytes(uint64(size)), "source", "direct")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFallbackUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	var key, fileName string
	size, contentType, err := s.receiveFilePart(r, "fallback upload", nil, func(name string) string {
		fileName = name
		if fileName == "" {
			fileName = "upload"
		}
		key = storage.NewObjectKey("uploads", fileName)
		return key
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.RecordObject(r.Context(), storage.ObjectRecord{
		Key:         key,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		Source:      "fallback",
	}); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("object stored", "key", key, "size", humanize.Bytes(uint64(size)), "source", "fallback")
	writeJSON(w, http.StatusOK, types.UploadResponse{URL: objectURL(s.baseURL(), key)})
}

// receiveFilePart streams the multipart "file" part into the object store.
// Fields preceding it go to field; keyFor maps the part's file name to the
// object key.
func (s *Server) receiveFilePart(r *http.Request, op string, field func(name, value string) error, keyFor func(fileName string) string) (int64, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return 0, "", errs.InvalidParameterf(op, "%v", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return 0, "", errs.InvalidParameterf(op, "missing file part")
		}
		if err != nil {
			return 0, "", errs.InvalidParameterf(op, "read multipart: %v", err)
		}

		if part.FormName() == "file" {
			n, err := s.objects.Put(keyFor(part.FileName()), part)
			part.Close()
			return n, part.Header.Get("Content-Type"), err
		}

		if field != nil {
			value, err := io.ReadAll(io.LimitReader(part, 64<<10))
			if err != nil {
				part.Close()
				return 0, "", errs.InvalidParameterf(op, "read field %s: %v", part.FormName(), err)
			}
			if err := field(part.FormName(), string(value)); err != nil {
				part.Close()
				return 0, "", err
			}
		}
		part.Close()
	}
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	rec, err := s.store.Object(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := s.objects.Open(key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	http.ServeContent(w, r, rec.FileName, rec.CreatedAt, f)
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(mux.Vars(r)["projectID"])
	start := time.Now()

	data, imageURL, err := s.readImageSource(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	img, err := raster.DecodeImage(data)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.compiler.Compile(r.Context(), img, func(p float64) {
		s.log.Debug("compile progress", "project", projectID, "percent", p)
	})
	if err != nil {
		if _, rerr := s.store.RecordCompilation(r.Context(), storage.CompilationRecord{ProjectID: projectID, ImageURL: imageURL, Error: err.Error()}); rerr != nil {
			s.log.Error("recording failed compilation", "project", projectID, "error", rerr)
		}
		s.log.Error("compile failed", "project", projectID, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		writeError(w, err)
		return
	}

	key := storage.NewObjectKey("artifacts/"+utils.SanitizeFilename(projectID), "target"+res.Artifact.Format.Extension())
	size, err := s.objects.Put(key, bytes.NewReader(res.Artifact.Data))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.RecordObject(r.Context(), storage.ObjectRecord{
		Key:         key,
		FileName:    "target" + res.Artifact.Format.Extension(),
		ContentType: res.Artifact.ContentType,
		Size:        size,
		Source:      "artifact",
	}); err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.store.RecordCompilation(r.Context(), storage.CompilationRecord{
		ProjectID:   projectID,
		ImageURL:    imageURL,
		ArtifactKey: key,
		ArtifactURL: objectURL(s.baseURL(), key),
		Strategy:    res.Strategy,
		Points:      res.PointCount(),
		LowTexture:  res.LowTexture,
		Placeholder: res.Artifact.Placeholder,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.Info("compile finished",
		"project", projectID,
		"strategy", res.Strategy,
		"points", rec.Points,
		"low_texture", rec.LowTexture,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, compileResponse(rec))
}

// readImageSource returns the target bytes from a multipart "image" part or
// from the imageUrl of a JSON body
func (s *Server) readImageSource(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	const op = "compile"
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, "", errs.InvalidParameterf(op, "%v", err)
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil, "", errs.InvalidParameterf(op, "missing image part")
			}
			if err != nil {
				return nil, "", errs.InvalidParameterf(op, "read multipart: %v", err)
			}
			if part.FormName() != "image" {
				part.Close()
				continue
			}
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return nil, "", err
			}
			return data, "", nil
		}
	}

	var req compileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		return nil, "", errs.InvalidParameterf(op, "decode request: %v", err)
	}
	u, err := url.Parse(req.ImageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", errs.InvalidParameterf(op, "imageUrl must be an absolute http(s) URL")
	}

	fetch, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", errs.InvalidParameterf(op, "%v", err)
	}
	resp, err := s.client.Do(fetch)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", errs.InvalidParameterf(op, "fetch image: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxUploadSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	if int64(len(data)) > s.maxUploadSize {
		return nil, "", errs.InvalidParameterf(op, "image exceeds %s", humanize.Bytes(uint64(s.maxUploadSize)))
	}
	return data, req.ImageURL, nil
}

func (s *Server) handleListCompilations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.Compilations(r.Context(), mux.Vars(r)["projectID"], 100)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]CompileResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, compileResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func compileResponse(rec storage.CompilationRecord) CompileResponse {
	return CompileResponse{
		ID:          rec.ID,
		ProjectID:   rec.ProjectID,
		ImageURL:    rec.ImageURL,
		ArtifactURL: rec.ArtifactURL,
		Strategy:    rec.Strategy,
		Points:      rec.Points,
		LowTexture:  rec.LowTexture,
		Placeholder: rec.Placeholder,
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt.UTC(),
	}
}

func objectURL(base, key string) string {
	return base + "/files/" + key
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error to the HTTP status the backend answers with
func StatusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errs.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrCredential):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), map[string]string{"error": err.Error()})
}
