// Package upload moves files into object storage using short-lived presigned
// credentials, with bounded retries and a server-side fallback.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/menta2k/webar-studio/pkg/errs"
	"github.com/menta2k/webar-studio/pkg/types"
)

// maxResponseBody bounds the JSON responses read from the backend
const maxResponseBody = 1 << 20

// File is a payload to upload
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Optimizer shrinks oversized payloads before upload
type Optimizer interface {
	Optimize(data []byte, contentType string) ([]byte, string, error)
}

// Orchestrator uploads files with the credential → transfer → retry →
// fallback state machine. It holds no per-upload state and is safe for
// concurrent use.
type Orchestrator struct {
	config    Config
	client    *http.Client
	optimizer Optimizer
	log       *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator talking to the backend at backendURL with
// default configuration
func New(backendURL string) *Orchestrator {
	return NewWithConfig(DefaultConfig(strings.TrimSuffix(backendURL, "/")))
}

// NewWithConfig creates an Orchestrator with custom configuration
func NewWithConfig(config Config) *Orchestrator {
	return &Orchestrator{
		config:    config,
		client:    &http.Client{},
		optimizer: NewImageOptimizer(),
		log:       slog.Default(),
		sleep:     sleepContext,
	}
}

// SetHTTPClient replaces the HTTP client. Timeouts are applied per step via
// contexts, so the client should not set its own Timeout.
func (o *Orchestrator) SetHTTPClient(client *http.Client) {
	if client != nil {
		o.client = client
	}
}

// SetOptimizer replaces the optimizer; nil disables optimization
func (o *Orchestrator) SetOptimizer(optimizer Optimizer) {
	o.optimizer = optimizer
}

// SetLogger replaces the logger
func (o *Orchestrator) SetLogger(log *slog.Logger) {
	if log != nil {
		o.log = log
	}
}

// Config returns the active configuration
func (o *Orchestrator) Config() Config {
	return o.config
}

// Upload stores f and returns its public URL. Transient credential and
// transfer failures are retried up to MaxAttempts, then the server fallback
// is tried once. Cancelling ctx aborts immediately with errs.ErrAbort.
func (o *Orchestrator) Upload(ctx context.Context, f File) (string, error) {
	if err := o.config.Validate(); err != nil {
		return "", errs.InvalidParameterf("upload", "%v", err)
	}
	if len(f.Data) == 0 {
		return "", errs.InvalidParameterf("upload", "empty file %q", f.Name)
	}
	if strings.TrimSpace(f.Name) == "" {
		return "", errs.InvalidParameterf("upload", "file name is required")
	}
	if f.ContentType == "" {
		f.ContentType = DetectContentType(f.Name, f.Data)
	}

	f = o.optimizeCheck(f)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		attempts = attempt
		o.log.Info("upload attempt",
			"file", f.Name,
			"size", humanize.Bytes(uint64(len(f.Data))),
			"attempt", attempt,
			"max_attempts", o.config.MaxAttempts,
		)

		url, err := o.direct(ctx, f)
		if err == nil {
			return url, nil
		}
		if errors.Is(err, errs.ErrAbort) || ctx.Err() != nil {
			return "", abortError(ctx, err)
		}
		lastErr = err

		if attempt < o.config.MaxAttempts {
			o.log.Warn("upload retry", "file", f.Name, "attempt", attempt, "delay", o.config.RetryDelay, "error", err)
			if err := o.sleep(ctx, o.config.RetryDelay); err != nil {
				return "", errs.New(errs.ErrAbort, "upload", err)
			}
		}
	}

	if o.config.FallbackURL == "" {
		return "", &errs.Error{Kind: errs.ErrUpload, Op: "upload " + f.Name, Attempts: attempts, Err: lastErr}
	}

	o.log.Warn("upload fallback", "file", f.Name, "attempts", attempts, "error", lastErr)
	url, err := o.fallback(ctx, f)
	if err == nil {
		return url, nil
	}
	if errors.Is(err, errs.ErrAbort) || ctx.Err() != nil {
		return "", abortError(ctx, err)
	}
	return "", &errs.Error{Kind: errs.ErrUpload, Op: "upload " + f.Name, Attempts: attempts + 1, Err: err}
}

// optimizeCheck shrinks large images; any failure leaves f unchanged
func (o *Orchestrator) optimizeCheck(f File) File {
	if o.config.OptimizeThreshold <= 0 || int64(len(f.Data)) <= o.config.OptimizeThreshold {
		return f
	}
	if !strings.HasPrefix(f.ContentType, "image/") || o.optimizer == nil {
		o.log.Warn("large non-image payload uploaded unchanged",
			"file", f.Name,
			"content_type", f.ContentType,
			"size", humanize.Bytes(uint64(len(f.Data))),
		)
		return f
	}

	data, contentType, err := o.optimizer.Optimize(f.Data, f.ContentType)
	if err != nil {
		o.log.Warn("image optimization failed, uploading original", "file", f.Name, "error", err)
		return f
	}
	if len(data) == 0 || len(data) >= len(f.Data) {
		return f
	}
	o.log.Info("image optimized",
		"file", f.Name,
		"before", humanize.Bytes(uint64(len(f.Data))),
		"after", humanize.Bytes(uint64(len(data))),
	)
	f.Data = data
	f.ContentType = contentType
	return f
}

// direct runs one credential request followed by one transfer
func (o *Orchestrator) direct(ctx context.Context, f File) (string, error) {
	session, err := o.requestCredential(ctx, f)
	if err != nil {
		return "", err
	}
	if err := o.transfer(ctx, session, f.Data); err != nil {
		return "", err
	}
	return session.PublicURL(), nil
}

func (o *Orchestrator) requestCredential(ctx context.Context, f File) (*Session, error) {
	const op = "request credential"
	cctx, cancel := context.WithTimeout(ctx, o.config.CredentialTimeout)
	defer cancel()

	body, err := json.Marshal(types.CredentialRequest{FileName: f.Name, ContentType: f.ContentType})
	if err != nil {
		return nil, errs.New(errs.ErrCredential, op, err)
	}
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, o.config.CredentialURL, bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.ErrCredential, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.New(errs.ErrAbort, op, ctx.Err())
		}
		return nil, errs.New(errs.ErrCredential, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.New(errs.ErrCredential, op, statusError(resp))
	}

	var cred types.Credential
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&cred); err != nil {
		return nil, errs.New(errs.ErrCredential, op, fmt.Errorf("decode response: %w", err))
	}
	if cred.URL == "" || cred.PublicURL == "" {
		return nil, errs.New(errs.ErrCredential, op, errors.New("response is missing url or publicUrl"))
	}
	return &Session{FileName: f.Name, ContentType: f.ContentType, Credential: cred}, nil
}

func (o *Orchestrator) transfer(ctx context.Context, session *Session, data []byte) error {
	const op = "transfer"
	cred, err := session.take()
	if err != nil {
		return errs.New(errs.ErrTransfer, op, err)
	}

	tctx, cancel := context.WithTimeout(ctx, o.config.TransferTimeout)
	defer cancel()

	var req *http.Request
	if strings.EqualFold(cred.Method, http.MethodPut) {
		req, err = http.NewRequestWithContext(tctx, http.MethodPut, cred.URL, bytes.NewReader(data))
		if err != nil {
			return errs.New(errs.ErrTransfer, op, err)
		}
		req.Header.Set("Content-Type", session.ContentType)
		req.ContentLength = int64(len(data))
	} else {
		body, err := newMultipartBody(cred.Fields, "file", session.FileName, session.ContentType, data)
		if err != nil {
			return errs.New(errs.ErrTransfer, op, err)
		}
		req, err = http.NewRequestWithContext(tctx, http.MethodPost, cred.URL, body.reader)
		if err != nil {
			return errs.New(errs.ErrTransfer, op, err)
		}
		req.Header.Set("Content-Type", body.contentType)
		req.ContentLength = body.length
	}

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errs.New(errs.ErrAbort, op, ctx.Err())
		}
		if tctx.Err() != nil {
			return errs.New(errs.ErrAbort, op, fmt.Errorf("transfer timed out after %s: %w", o.config.TransferTimeout, tctx.Err()))
		}
		return errs.New(errs.ErrTransfer, op, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.New(errs.ErrTransfer, op, fmt.Errorf("storage responded %s", resp.Status))
	}
	return nil
}

// fallback routes the bytes through the backend itself
func (o *Orchestrator) fallback(ctx context.Context, f File) (string, error) {
	const op = "fallback upload"
	fctx, cancel := context.WithTimeout(ctx, o.config.FallbackTimeout)
	defer cancel()

	body, err := newMultipartBody(nil, "file", f.Name, f.ContentType, f.Data)
	if err != nil {
		return "", errs.New(errs.ErrTransfer, op, err)
	}
	req, err := http.NewRequestWithContext(fctx, http.MethodPost, o.config.FallbackURL, body.reader)
	if err != nil {
		return "", errs.New(errs.ErrTransfer, op, err)
	}
	req.Header.Set("Content-Type", body.contentType)
	req.ContentLength = body.length

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.New(errs.ErrAbort, op, ctx.Err())
		}
		return "", errs.New(errs.ErrTransfer, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errs.New(errs.ErrTransfer, op, statusError(resp))
	}

	var out types.UploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		return "", errs.New(errs.ErrTransfer, op, fmt.Errorf("decode response: %w", err))
	}
	if out.URL == "" {
		return "", errs.New(errs.ErrTransfer, op, errors.New("response is missing url"))
	}
	return out.URL, nil
}

// DetectContentType guesses the MIME type from the file extension, then from
// the content.
func DetectContentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".glb":
		return "model/gltf-binary"
	case ".gltf":
		return "model/gltf+json"
	case ".mind":
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}

func abortError(ctx context.Context, err error) error {
	if errors.Is(err, errs.ErrAbort) {
		return err
	}
	return errs.New(errs.ErrAbort, "upload", ctx.Err())
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if s := strings.TrimSpace(string(msg)); s != "" {
		return fmt.Errorf("backend responded %s: %s", resp.Status, s)
	}
	return fmt.Errorf("backend responded %s", resp.Status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
