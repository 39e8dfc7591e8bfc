package gateapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"guildgate/cmd/internal/discordid"
)

var (
	errEmptyBody     = errors.New("empty body")
	errBodyTooLarge  = errors.New("body too large")
	errInvalidJSON   = errors.New("invalid JSON body")
	errGuildMismatch = errors.New("guild_id does not match the path")
)

// fieldError names a body key that was required but absent, or present but
// not part of the request shape.
type fieldError struct {
	Field   string
	Unknown bool
}

func (e *fieldError) Error() string {
	if e.Unknown {
		return "unknown field " + e.Field
	}
	return "missing " + e.Field
}

// description is the user-facing wording.
func (e *fieldError) description() string {
	if e.Unknown {
		return "Unknown field " + e.Field
	}
	return "Missing " + e.Field
}

func missing(field string) error { return &fieldError{Field: field} }

// envelope is the uniform body of every admin and error response.
type envelope struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func newEnvelope(status int, name, description string) envelope {
	if name == "" {
		name = http.StatusText(status)
	}
	return envelope{Code: status, Name: name, Description: description}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, name, description string) {
	writeJSON(w, status, newEnvelope(status, name, description))
}

// writeError uses the status text as the envelope name.
func writeError(w http.ResponseWriter, status int, description string) {
	writeEnvelope(w, status, "", description)
}

// writeRequestError maps body and identifier errors to a 400 envelope.
func writeRequestError(w http.ResponseWriter, err error) {
	var (
		ve *discordid.ValidationError
		fe *fieldError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "Invalid Discord ID: "+ve.Field)
	case errors.As(err, &fe):
		writeError(w, http.StatusBadRequest, fe.description())
	case errors.Is(err, errEmptyBody):
		writeError(w, http.StatusBadRequest, "Missing request body")
	case errors.Is(err, errInvalidJSON):
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
	case errors.Is(err, errGuildMismatch):
		writeError(w, http.StatusBadRequest, "guild_id does not match the path")
	case errors.Is(err, errBodyTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// decodeBody reads one JSON object into dst. Every top-level key ending in
// "_id" must hold a valid snowflake before the typed decode runs, and unknown
// keys are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return errBodyTooLarge
		}
		return errInvalidJSON
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return errEmptyBody
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return errInvalidJSON
	}
	if err := validateIDFields(fields); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if f, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			return &fieldError{Field: strings.Trim(f, `"`), Unknown: true}
		}
		return errInvalidJSON
	}
	return nil
}

func validateIDFields(fields map[string]json.RawMessage) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.HasSuffix(k, "_id") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := discordid.FromJSON(k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}

// hasBody reports whether the request announces a body.
func hasBody(r *http.Request) bool {
	return r.ContentLength > 0 || len(r.TransferEncoding) > 0
}

func isJSONContentType(v string) bool {
	mt, _, err := mime.ParseMediaType(v)
	return err == nil && mt == "application/json"
}
