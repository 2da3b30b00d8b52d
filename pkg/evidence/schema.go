package evidence

import "github.com/santhosh-tekuri/jsonschema/v5"

// snapshotSchema is the structural contract a stored artifact must meet
// before this build will read fields out of it. The version check is
// separate so an unknown version reports as a schema mismatch, not a
// generic validation error.
const snapshotSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "timestamp", "snapshot", "ai_gate"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "minLength": 1},
    "snapshot": {
      "type": "object",
      "required": ["stage", "outcome", "findings"],
      "properties": {
        "stage": {"enum": ["PRE_WRITE", "PRE_COMMIT", "PRE_PUSH", "CI"]},
        "outcome": {"enum": ["BLOCK", "WARN", "PASS"]},
        "findings": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["ruleId", "severity", "file"],
            "properties": {
              "ruleId": {"type": "string", "minLength": 1},
              "severity": {"enum": ["INFO", "WARN", "ERROR", "CRITICAL"]},
              "file": {"type": "string"}
            }
          }
        }
      }
    },
    "ledger": {"type": "array"},
    "rulesets": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["platform", "bundle", "hash"]
      }
    },
    "ai_gate": {
      "type": "object",
      "required": ["status", "violations"],
      "properties": {
        "status": {"enum": ["ALLOWED", "BLOCKED"]},
        "violations": {"type": "array"}
      }
    },
    "severity_metrics": {
      "type": "object",
      "properties": {
        "total_violations": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("evidence-snapshot.json", snapshotSchema)
