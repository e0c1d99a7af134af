package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// canonicalJSON returns the tuning file as JSON. YAML files (.yaml, .yml)
// are decoded and re-encoded so both formats share one strict decoder and
// one content hash.
func canonicalJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return json.Marshal(stringKeys(doc))
}

// stringKeys rewrites YAML maps with non-string keys into JSON objects.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stringKeys(e)
		}
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = stringKeys(e)
		}
		return m
	case []any:
		for i, e := range x {
			x[i] = stringKeys(e)
		}
	}
	return v
}

// decodeStrict decodes exactly one object, rejecting unknown fields and
// trailing data.
func decodeStrict(data []byte) (*Tuning, error) {
	var t Tuning
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return nil, err
	}
	switch err := dec.Decode(&struct{}{}); {
	case err == nil:
		return nil, errors.New("invalid config: trailing data")
	case !errors.Is(err, io.EOF):
		return nil, err
	}
	return &t, nil
}

// parseDuration reads a non-negative duration. set is false for an empty value.
func parseDuration(path, raw string) (d time.Duration, set bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	if d, err = time.ParseDuration(raw); err != nil {
		return 0, false, fmt.Errorf("%s: %q is not a duration: %w", path, raw, err)
	}
	if d < 0 {
		return 0, false, fmt.Errorf("%s: negative duration %s", path, d)
	}
	return d, true, nil
}
