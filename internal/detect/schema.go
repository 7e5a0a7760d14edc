package detect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentResultSchema is the contract a finished job's per-document payload
// must satisfy. A payload that fails validation is a content error for that
// document, never a run-level failure.
const documentResultSchema = `{
  "type": "object",
  "required": ["document_id", "page_count", "matches"],
  "properties": {
    "document_id": {"type": "string", "minLength": 1},
    "page_count": {"type": "integer", "minimum": 1},
    "matches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["page", "kind"],
        "properties": {
          "page": {"type": "integer", "minimum": 1},
          "kind": {"type": "string", "minLength": 1},
          "payload": {"type": "object"}
        }
      }
    }
  }
}`

var resultSchema = mustCompile(documentResultSchema)

func mustCompile(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("failed to load result schema: %v", err))
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile result schema: %v", err))
	}
	return schema
}

// decodeDocumentResult validates raw against the result schema and decodes
// it. A validation failure is reported through DocumentResult.Invalid with a
// best-effort document id so the caller can attribute the content error.
func decodeDocumentResult(raw json.RawMessage) DocumentResult {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return DocumentResult{Invalid: fmt.Sprintf("result is not valid JSON: %v", err)}
	}

	if err := resultSchema.Validate(doc); err != nil {
		res := DocumentResult{Invalid: fmt.Sprintf("result does not match schema: %v", err)}
		if m, ok := doc.(map[string]any); ok {
			if id, ok := m["document_id"].(string); ok {
				res.DocumentID = id
			}
		}
		return res
	}

	var res DocumentResult
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&res); err != nil {
		return DocumentResult{Invalid: fmt.Sprintf("failed to decode result: %v", err)}
	}
	return res
}
