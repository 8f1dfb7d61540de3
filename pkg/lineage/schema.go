package lineage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// uploadSchema is the shape contract for uploaded log files: a JSON array
// of entry objects, or an envelope object with an "entries" array. Field
// contents stay loosely typed; classification is heuristic by design.
const uploadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "oneOf": [
    {
      "type": "array",
      "items": {"type": "object"}
    },
    {
      "type": "object",
      "required": ["entries"],
      "properties": {
        "entries": {
          "type": "array",
          "items": {"type": "object"}
        },
        "type": {"type": "string"}
      }
    }
  ]
}`

var compiledUploadSchema = jsonschema.MustCompileString("orbit://schemas/log-upload.json", uploadSchema)

// ParseUpload validates raw uploaded bytes against the upload schema and
// returns the parsed entries plus any self-declared log type. Invalid
// uploads are rejected at ingestion; they never reach the ledger.
func ParseUpload(raw []byte) ([]Entry, LogType, error) {
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, "", fmt.Errorf("lineage: upload is not valid JSON: %w", err)
	}

	if err := compiledUploadSchema.Validate(generic); err != nil {
		return nil, "", fmt.Errorf("lineage: upload failed schema validation: %w", err)
	}

	switch t := generic.(type) {
	case []interface{}:
		return toEntries(t), "", nil
	case map[string]interface{}:
		entries, _ := t["entries"].([]interface{})
		declared, _ := t["type"].(string)
		logType := LogType(strings.ToLower(declared))
		if declared != "" && !logType.Valid() {
			logType = LogGeneric
		}
		return toEntries(entries), logType, nil
	default:
		return nil, "", fmt.Errorf("lineage: unsupported upload shape")
	}
}

func toEntries(items []interface{}) []Entry {
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			entries = append(entries, Entry(m))
		}
	}
	return entries
}

// DetectType infers a log type from the filename and entry shape when the
// upload did not declare one.
func DetectType(filename string, entries []Entry) LogType {
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(name, "cloudtrail"):
		return LogCloudTrail
	case strings.Contains(name, "training"):
		return LogModelTraining
	case strings.Contains(name, "inference") || strings.Contains(name, "model"):
		return LogModelInference
	case strings.Contains(name, "idp") || strings.Contains(name, "sso") || strings.Contains(name, "auth"):
		return LogIDP
	case strings.Contains(name, "api"):
		return LogAPI
	}

	for _, e := range entries {
		if _, ok := e["eventSource"]; ok {
			return LogCloudTrail
		}
		if _, ok := e["modelVersion"]; ok {
			return LogModelInference
		}
		if _, ok := e["statusCode"]; ok {
			return LogAPI
		}
	}
	return LogGeneric
}
