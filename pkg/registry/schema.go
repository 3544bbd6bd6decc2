package registry

import (
	"encoding/json"
	"fmt"

	"github.com/machshop/approvalflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the wire-level contract for definition documents.
// Struct validation catches most of this too, but the schema rejects
// documents coming from external tooling before they reach the model layer.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "version", "stages"],
  "properties": {
    "name": {"type": "string", "minLength": 3},
    "version": {"type": "integer", "minimum": 1},
    "description": {"type": "string"},
    "stages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["number", "name", "policy", "strategy"],
        "properties": {
          "number": {"type": "integer", "minimum": 1},
          "name": {"type": "string", "minLength": 1},
          "policy": {"enum": ["all", "any", "threshold", "quorum"]},
          "threshold": {"type": "integer", "minimum": 1},
          "quorum_percent": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
          "strategy": {"enum": ["role_broadcast", "specific_user", "round_robin", "load_balanced"]},
          "required_roles": {"type": "array", "items": {"type": "string"}},
          "optional_roles": {"type": "array", "items": {"type": "string"}},
          "deadline": {"type": "string"},
          "escalations": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["after", "escalate_to"],
              "properties": {
                "after": {"type": "string"},
                "escalate_to": {"type": "string", "minLength": 1}
              }
            }
          }
        }
      }
    },
    "connections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from_stage", "to_stage"],
        "properties": {
          "from_stage": {"type": "integer", "minimum": 1},
          "to_stage": {"type": "integer", "minimum": 1},
          "on_outcome": {"enum": ["", "approved", "rejected", "escalated"]}
        }
      }
    },
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["condition", "action"],
        "properties": {
          "action": {"enum": ["skip_stage", "auto_approve", "route_to_stage", "set_priority"]},
          "active": {"type": "boolean"},
          "condition": {
            "type": "object",
            "required": ["field", "operator"],
            "properties": {
              "field": {"type": "string", "minLength": 1},
              "operator": {"enum": ["eq", "neq", "gt", "lt", "gte", "lte", "contains", "in"]}
            }
          },
          "priority": {"type": "integer"}
        }
      }
    }
  }
}`

func (r *Registry) validateDocument(definition *models.WorkflowDefinition) error {
	document, err := json.Marshal(definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewBytesLoader(document),
	)
	if err != nil {
		return fmt.Errorf("failed to run schema validation: %w", err)
	}

	if !result.Valid() {
		detail := ""
		for _, desc := range result.Errors() {
			if detail != "" {
				detail += "; "
			}

			detail += desc.String()
		}

		return fmt.Errorf("%w: %s", ErrSchemaViolation, detail)
	}

	return nil
}
