package resource

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const maxBodyBytes = 1 << 20

// input is the decoded request: every parameter flattened to a string, plus
// the search flag that may arrive at the top level or under custom_filters.
type input struct {
	params   map[string]string
	notExact bool
}

// readInput merges query string values with the request body. Body values
// win on conflict. JSON bodies must be objects; anything else is read as
// form values.
func readInput(r *http.Request) (input, error) {
	in := input{params: make(map[string]string)}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			in.params[key] = values[0]
		}
	}
	if r.Body == nil || r.Body == http.NoBody {
		in.notExact = truthy(in.params["not_exact"])
		return in, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" || mediaType == "" {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return in, fmt.Errorf("read body: %w", err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			in.notExact = truthy(in.params["not_exact"])
			return in, nil
		}
		raw, err := decodeObject(body)
		if err != nil {
			return in, err
		}
		for key, value := range raw {
			if s, ok := flatten(value); ok {
				in.params[key] = s
			}
		}
		in.notExact = notExactFlag(raw) || truthy(in.params["not_exact"])
		return in, nil
	}

	if err := r.ParseForm(); err != nil {
		return in, fmt.Errorf("parse form: %w", err)
	}
	for key, values := range r.PostForm {
		if len(values) > 0 {
			in.params[key] = values[0]
		}
	}
	in.notExact = truthy(in.params["not_exact"])
	return in, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("request body must be a JSON object: %w", err)
	}
	return raw, nil
}

// flatten renders a decoded JSON value as the string the database receives.
// Nulls are dropped; nested values are re-encoded as JSON text.
func flatten(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(encoded), true
	}
}

func notExactFlag(raw map[string]any) bool {
	if jsonTruthy(raw["not_exact"]) {
		return true
	}
	filters, ok := raw["custom_filters"].(map[string]any)
	if !ok {
		return false
	}
	return jsonTruthy(filters["not_exact"])
}

func jsonTruthy(value any) bool {
	s, ok := flatten(value)
	return ok && truthy(s)
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// pagination reads limit and offset. A missing limit means no LIMIT clause.
func pagination(params map[string]string, errs ValidationErrors) (limit, offset int, ok bool) {
	if raw, present := params["limit"]; present && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs.Add("limit", "Limit must be a non-negative integer.")
		} else {
			limit, ok = n, true
		}
	}
	if raw, present := params["offset"]; present && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs.Add("offset", "Offset must be a non-negative integer.")
		} else {
			offset = n
		}
	}
	return limit, offset, ok
}

// parseID accepts positive decimal integers only.
func parseID(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
