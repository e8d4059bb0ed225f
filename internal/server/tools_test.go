package server

import (
	"encoding/json"
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	if len(tools) == 0 {
		t.Fatal("GetToolDefinitions returned empty slice")
	}

	expectedTools := []string{
		"image_metadata",
		"image_stats",
		"image_process",
		"image_variants",
		"pipeline_counters",
		"pipeline_settings",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("tool count: got %d, want %d", len(tools), len(expectedTools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	tools := GetToolDefinitions()

	for _, tool := range tools {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}

			if tool.InputSchema == nil {
				t.Fatal("Tool InputSchema is nil")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			if _, ok := tool.InputSchema["properties"].(map[string]interface{}); !ok {
				t.Error("InputSchema properties should be a map")
			}
		})
	}
}

func TestToolDefinitions_SourceProperties(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		if tool.Name == "pipeline_counters" || tool.Name == "pipeline_settings" {
			continue
		}
		props := tool.InputSchema["properties"].(map[string]interface{})
		for _, key := range []string{"path", "data", "create", "raw"} {
			if _, ok := props[key]; !ok {
				t.Errorf("%s: missing source property %s", tool.Name, key)
			}
		}
	}
}

func TestToolDefinitions_RequiredFields(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		required, ok := tool.InputSchema["required"].([]string)
		if !ok {
			continue
		}
		props := tool.InputSchema["properties"].(map[string]interface{})
		for _, name := range required {
			if _, ok := props[name]; !ok {
				t.Errorf("%s: required field %s is not a property", tool.Name, name)
			}
		}
	}
}

func TestToolDefinitions_JSONSerializable(t *testing.T) {
	tools := GetToolDefinitions()

	data, err := json.Marshal(tools)
	if err != nil {
		t.Fatalf("Failed to marshal tools: %v", err)
	}

	var decoded []Tool
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal tools: %v", err)
	}
	if len(decoded) != len(tools) {
		t.Errorf("decoded tools: got %d, want %d", len(decoded), len(tools))
	}
}
