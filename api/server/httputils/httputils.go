// Package httputils holds the small pieces shared by every router package:
// the handler signature, API-version context plumbing, and response
// helpers for the Docker Engine API v1.51 surface.
package httputils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIFunc is the signature every route handler implements. Returning an
// error lets the server's error handler translate it to the right status
// code and body in one place, instead of every handler doing it inline.
type APIFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request, vars map[string]string) error

type versionKey struct{}

// WithVersion stores the negotiated API version (e.g. "1.51") on ctx.
func WithVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, versionKey{}, version)
}

// VersionFromContext returns the negotiated API version, or "" if none was
// set (direct calls that bypassed the version-normalizing middleware).
func VersionFromContext(ctx context.Context) string {
	v, _ := ctx.Value(versionKey{}).(string)
	return v
}

// WriteJSON sets the JSON content type and encodes v as the response body.
func WriteJSON(w http.ResponseWriter, code int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// WriteRawJSON writes pre-encoded JSON bytes as-is, for callers building
// the body themselves (e.g. streaming multiple objects).
func WriteRawJSON(w http.ResponseWriter, code int, b []byte) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err := w.Write(b)
	return err
}

// Standard writes a single complete JSON response: status code, extra
// headers (e.g. Content-Type overrides), then the encoded body.
func Standard(w http.ResponseWriter, status int, headers map[string]string, body interface{}) error {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	if body == nil {
		w.WriteHeader(status)
		return nil
	}
	return WriteJSON(w, status, body)
}

// ChunkWriter is handed to a Streaming callback: each Write call flushes
// immediately, matching the newline-delimited-JSON / multiplexed-stream
// framing used for pull progress and log/attach output.
type ChunkWriter interface {
	io.Writer
	Flush()
}

type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) { return fw.w.Write(p) }
func (fw flushWriter) Flush() {
	if fw.f != nil {
		fw.f.Flush()
	}
}

// Streaming writes status and headers once, then runs callback with a
// ChunkWriter until it returns or errors; used for log/attach framing and
// image-pull progress streams.
func Streaming(w http.ResponseWriter, status int, headers map[string]string, callback func(ChunkWriter) error) error {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	fl, _ := w.(http.Flusher)
	cw := flushWriter{w: w, f: fl}
	cw.Flush()
	return callback(cw)
}

// ParseForm populates r.Form from the query string and, for form-encoded
// bodies, the body too. Handlers call this before reading any query
// parameter via BoolValue/IntValue/etc.
func ParseForm(r *http.Request) error {
	if err := r.ParseMultipartForm(4096); err != nil && err != http.ErrNotMultipart {
		return r.ParseForm()
	}
	return nil
}

// ReadJSON decodes the request body into v, rejecting trailing garbage
// after the JSON value (a second object, stray bytes) the way encoding/json
// alone would silently ignore.
func ReadJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("unexpected end of JSON input")
		}
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

// VersionLessThan reports whether a is an older API version than b, both
// given as "MAJOR.MINOR" strings.
func VersionLessThan(a, b string) bool {
	var aMaj, aMin, bMaj, bMin int
	fmt.Sscanf(a, "%d.%d", &aMaj, &aMin)
	fmt.Sscanf(b, "%d.%d", &bMaj, &bMin)
	if aMaj != bMaj {
		return aMaj < bMaj
	}
	return aMin < bMin
}
