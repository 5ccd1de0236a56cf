package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/api/responses"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront/pkg/redis"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	orderIdempotencyTTL  = 24 * time.Hour
	maxIdempotencyKeyLen = 255
)

// Order-creating routes. A retried request with the same key replays the first
// response instead of placing a second order.
var idempotentRoutes = map[string]time.Duration{
	http.MethodPost + " /api/v1/cart/orders":   orderIdempotencyTTL,
	http.MethodPost + " /api/v1/cart/checkout": orderIdempotencyTTL,
}

// Response headers restored on replay; the checkout redirect needs Location.
var replayedHeaders = []string{"Content-Type", "Location"}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        []byte            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

func (rec *idempotencyRecord) replay(w http.ResponseWriter) {
	for name, value := range rec.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// Idempotency replays stored responses for order routes that carry an
// Idempotency-Key header. Requests without the header pass straight through.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			id := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || store == nil || id == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(id) > maxIdempotencyKeyLen {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := hashBody(body)
			key := store.IdempotencyKey(requestScope(r), id)

			prior, err := lookupRecord(r.Context(), store, key)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if prior != nil {
				if prior.RequestHash != hash {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				if logg != nil {
					logg.Info(logg.WithField(r.Context(), "idempotency_key", id), "idempotency.replay")
				}
				prior.replay(w)
				return
			}

			cp := &Checkpoint{store: store, key: key + ":checkpoint:" + hash[:16], ttl: ttl}
			r = r.WithContext(context.WithValue(r.Context(), ctxCheckpoint, cp))

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// Server-side failures stay retryable under the same key.
			if capture.statusCode() >= http.StatusInternalServerError {
				return
			}
			if err := saveRecord(r.Context(), store, key, capture.record(hash), ttl); err != nil && logg != nil {
				logg.Error(logg.WithField(r.Context(), "idempotency_key", id), "idempotency.persist_failed", err)
			}
		})
	}
}

// Checkpoint holds intermediate state of an idempotent request under its key. It
// outlives failed responses, so a retry resumes after the side effects the first
// attempt already completed.
type Checkpoint struct {
	store pkgredis.IdempotencyStore
	key   string
	ttl   time.Duration
}

// CheckpointFromContext returns the checkpoint for the current request, or nil when
// the request carries no Idempotency-Key.
func CheckpointFromContext(ctx context.Context) *Checkpoint {
	cp, _ := ctx.Value(ctxCheckpoint).(*Checkpoint)
	return cp
}

// Load decodes the saved state into dest and reports whether there was any.
func (c *Checkpoint) Load(ctx context.Context, dest any) (bool, error) {
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, pkgredis.Nil) || (err == nil && raw == "") {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency checkpoint")
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency checkpoint")
	}
	return true, nil
}

// Save stores v unless a value is already saved; the first write wins.
func (c *Checkpoint) Save(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency checkpoint")
	}
	if _, err := c.store.SetNX(ctx, c.key, string(payload), c.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save idempotency checkpoint")
	}
	return nil
}

func lookupRecord(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*idempotencyRecord, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, pkgredis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var rec idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &rec, nil
}

// saveRecord keeps the first response when two requests with one key race.
func saveRecord(ctx context.Context, store pkgredis.IdempotencyStore, key string, rec idempotencyRecord, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = store.SetNX(ctx, key, string(payload), ttl)
	return err
}

// requestScope keeps keys from colliding across profiles, routes and query strings.
func requestScope(r *http.Request) string {
	return strings.Join([]string{ProfileIDFromContext(r.Context()), r.Method, r.URL.Path, r.URL.RawQuery}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func routeTTL(method, path string) (time.Duration, bool) {
	ttl, ok := idempotentRoutes[method+" "+strings.TrimSuffix(path, "/")]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) record(hash string) idempotencyRecord {
	rec := idempotencyRecord{Status: c.statusCode(), Body: c.body.Bytes(), RequestHash: hash}
	for _, name := range replayedHeaders {
		if v := c.Header().Get(name); v != "" {
			if rec.Headers == nil {
				rec.Headers = map[string]string{}
			}
			rec.Headers[name] = v
		}
	}
	return rec
}
