package config

// workflowSchema is the JSON schema every definition file must satisfy
// before field-level validation runs.
const workflowSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "trigger", "steps"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 3},
    "description": {"type": "string"},
    "trigger": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "enum": ["blob", "queue", "schedule"]},
        "configuration": {"type": "object"}
      }
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "prompt"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 3},
          "prompt": {"type": "string", "minLength": 1},
          "model": {"type": "string"},
          "max_tokens": {"type": "integer", "minimum": 1},
          "timeout_seconds": {"type": "integer", "minimum": 1},
          "retry_attempts": {"type": "integer", "minimum": 1}
        }
      }
    },
    "artifact_template": {"type": "string"},
    "max_attempts": {"type": "integer", "minimum": 1},
    "variables": {"type": "object"}
  }
}`
