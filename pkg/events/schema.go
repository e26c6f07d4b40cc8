package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaRegistry validates event payloads against a compiled JSON Schema per
// event type. A payload that does not conform never reaches the log.
type SchemaRegistry struct {
	schemas map[EventType]*jsonschema.Schema
}

// entrySchema is shared by the posted and reversed entry events.
const entrySchema = `{
	"type": "object",
	"required": ["entry"],
	"properties": {
		"entry": {
			"type": "object",
			"required": ["entry_id", "tenant_id", "transaction_id", "fund_id", "account_code", "amount", "is_debit", "entry_date"],
			"properties": {
				"account_code": {"type": "string", "minLength": 1},
				"amount": {"type": "string", "pattern": "^-?[0-9]+\\.[0-9]{2}$"},
				"is_debit": {"type": "boolean"},
				"entry_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
			}
		}
	}
}`

var payloadSchemas = map[EventType]string{
	EventTransactionCreated: `{
		"type": "object",
		"required": ["transaction"],
		"properties": {
			"transaction": {
				"type": "object",
				"required": ["id", "tenant_id", "transaction_type", "amount", "transaction_date", "status"],
				"properties": {
					"amount": {"type": "string", "pattern": "^-?[0-9]+\\.[0-9]{2}$"},
					"transaction_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
				}
			}
		}
	}`,
	EventTransactionPosted: `{
		"type": "object",
		"required": ["transaction_id", "posted_date"]
	}`,
	EventTransactionVoided: `{
		"type": "object",
		"required": ["transaction_id"]
	}`,
	EventEntryPosted:   entrySchema,
	EventEntryReversed: entrySchema,
	EventMemberCreated: `{
		"type": "object",
		"required": ["property_id", "name"],
		"properties": {"name": {"type": "string", "minLength": 1}}
	}`,
	EventMemberUpdated: `{
		"type": "object"
	}`,
	EventMemberDeactivated: `{
		"type": "object"
	}`,
	EventPropertyCreated: `{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string", "minLength": 1}}
	}`,
	EventFundCreated: `{
		"type": "object",
		"required": ["fund"],
		"properties": {
			"fund": {
				"type": "object",
				"required": ["id", "tenant_id", "name", "fund_type"],
				"properties": {"name": {"type": "string", "minLength": 1}}
			}
		}
	}`,
	EventFundUpdated: `{
		"type": "object"
	}`,
	EventFundClosed: `{
		"type": "object"
	}`,
	EventPaymentReceived: `{
		"type": "object",
		"required": ["transaction_id", "member_id", "transaction_type", "amount", "date"],
		"properties": {
			"amount": {"type": "string", "pattern": "^-?[0-9]+\\.[0-9]{2}$"},
			"date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
		}
	}`,
	EventPaymentRefunded: `{
		"type": "object",
		"required": ["transaction_id", "member_id", "amount", "date"],
		"properties": {
			"amount": {"type": "string", "pattern": "^-?[0-9]+\\.[0-9]{2}$"}
		}
	}`,
	EventBalanceAdjusted: `{
		"type": "object",
		"required": ["amount", "date"],
		"properties": {
			"amount": {"type": "string", "pattern": "^-?[0-9]+\\.[0-9]{2}$"}
		}
	}`,
}

// NewSchemaRegistry compiles the payload schemas for every known event type.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	r := &SchemaRegistry{schemas: make(map[EventType]*jsonschema.Schema, len(payloadSchemas))}
	for et, src := range payloadSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://ledgercore.schemas.local/events/%s.schema.json", et)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("load schema for %s: %w", et, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", et, err)
		}
		r.schemas[et] = compiled
	}
	return r, nil
}

// Validate checks an event's payload against the schema for its type.
func (r *SchemaRegistry) Validate(e *Event) error {
	schema, ok := r.schemas[e.EventType]
	if !ok {
		return &SchemaError{EventType: e.EventType, Cause: fmt.Errorf("no schema registered")}
	}

	var decoded interface{}
	if err := json.Unmarshal(e.Payload, &decoded); err != nil {
		return &SchemaError{EventType: e.EventType, Cause: err}
	}
	if err := schema.Validate(decoded); err != nil {
		return &SchemaError{EventType: e.EventType, Cause: err}
	}
	return nil
}
