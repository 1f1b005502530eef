// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"encoding/json"
	"fmt"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

// FunctionSchema is the model-facing shape of one tool: the contract the
// orchestrator hands to the LLM provider.
type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// Schema renders the definition as a JSON-schema-like parameters object.
func (d *Definition) Schema() FunctionSchema {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Default) > 0 {
			var def any
			if err := json.Unmarshal(p.Default, &def); err == nil {
				prop["default"] = def
			}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return FunctionSchema{
		Name:        d.Name,
		Description: d.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// OpenAISchema renders the OpenAI function-calling envelope.
func (d *Definition) OpenAISchema() map[string]any {
	fs := d.Schema()
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        fs.Name,
			"description": fs.Description,
			"parameters":  fs.Parameters,
		},
	}
}

// AnthropicSchema renders the Anthropic tool envelope.
func (d *Definition) AnthropicSchema() map[string]any {
	fs := d.Schema()
	return map[string]any{
		"name":         fs.Name,
		"description":  fs.Description,
		"input_schema": fs.Parameters,
	}
}

// ValidateArguments checks args against the definition's parameters and
// returns a copy with defaults applied. Missing required fields, type
// mismatches and (under strict mode) unknown extra fields all fail with
// CodeInvalidArguments.
func (d *Definition) ValidateArguments(args map[string]any, strict bool) (map[string]any, error) {
	byName := make(map[string]Parameter, len(d.Parameters))
	for _, p := range d.Parameters {
		byName[p.Name] = p
	}

	if strict {
		for name := range args {
			if _, ok := byName[name]; !ok {
				return nil, errors.Newf(errors.CodeInvalidArguments,
					"tool %q: unknown argument %q", d.Name, name)
			}
		}
	}

	out := make(map[string]any, len(d.Parameters))
	for name, value := range args {
		if _, ok := byName[name]; ok || !strict {
			out[name] = value
		}
	}

	for _, p := range d.Parameters {
		value, present := out[p.Name]
		if !present {
			if p.Required {
				return nil, errors.Newf(errors.CodeInvalidArguments,
					"tool %q: missing required argument %q", d.Name, p.Name)
			}
			if len(p.Default) > 0 {
				var def any
				if err := json.Unmarshal(p.Default, &def); err != nil {
					return nil, errors.New(errors.CodeInvalidArguments,
						fmt.Sprintf("tool %q: bad default for %q", d.Name, p.Name), err)
				}
				out[p.Name] = def
			}
			continue
		}
		if !typeMatches(p.Type, value) {
			return nil, errors.Newf(errors.CodeInvalidArguments,
				"tool %q: argument %q expects %s", d.Name, p.Name, p.Type)
		}
	}
	return out, nil
}

func typeMatches(paramType string, value any) bool {
	if value == nil {
		return true
	}
	switch paramType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64, json.Number:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		case json.Number:
			_, err := v.Int64()
			return err == nil
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
