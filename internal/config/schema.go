package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema is the structural schema the decoded configuration must
// satisfy, over and above the semantic range checks in validation.go. It
// catches type mistakes (a string where a number belongs) with a message
// that names the offending path.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "version": { "type": "integer", "minimum": 1 },
    "passphrase": {
      "type": "object",
      "properties": {
        "encrypted": { "type": "string" }
      }
    },
    "timeouts": {
      "type": "object",
      "properties": {
        "auto_lock_sec": { "type": "integer", "minimum": 0 },
        "buffer_reset_sec": { "type": "integer", "minimum": 0 },
        "auto_unlock_sec": { "type": "integer", "minimum": 0 }
      }
    },
    "hotkeys": {
      "type": "object",
      "properties": {
        "lock_key": { "type": "string", "maxLength": 1 },
        "talk_key": { "type": "string", "maxLength": 1 }
      }
    },
    "ipc": {
      "type": "object",
      "properties": {
        "enabled": { "type": "boolean" },
        "socket_path": { "type": "string" },
        "max_connections": { "type": "integer", "minimum": 0 },
        "timeout_sec": { "type": "integer", "minimum": 0 }
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": { "type": "string" },
        "format": { "type": "string" },
        "output": { "type": "string" },
        "file_path": { "type": "string" },
        "max_size_mb": { "type": "integer", "minimum": 0 },
        "max_backups": { "type": "integer", "minimum": 0 },
        "max_age_days": { "type": "integer", "minimum": 0 },
        "compress": { "type": "boolean" }
      }
    },
    "history": {
      "type": "object",
      "properties": {
        "enabled": { "type": "boolean" },
        "path": { "type": "string" },
        "retention_days": { "type": "integer", "minimum": 0 }
      }
    },
    "notifications": {
      "type": "object",
      "properties": {
        "enabled": { "type": "boolean" }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.schema.json", strings.NewReader(configSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("config.schema.json")
	})
	return compiledSchema, schemaErr
}

// ValidateSchema checks the configuration against the structural schema.
func (c *Config) ValidateSchema() error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}

	// Round-trip through JSON so the validator sees the wire shape.
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config for validation: %w", err)
	}
	var instance any
	if err := json.NewDecoder(&buf).Decode(&instance); err != nil {
		return fmt.Errorf("decode config for validation: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}
