// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

const sampleSkill = `---
name: web-summarize
description: Summarize the content of a web page.
parameters:
  - name: url
    type: string
    description: Page to summarize
    required: true
  - name: max_words
    type: integer
    description: Summary length cap
    default: 200
allowed-hosts:
  - example.com
metadata:
  version: "1"
---

# Web summarize

Fetch the page and produce a short summary.
`

func writeSkill(t *testing.T, root, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "SKILL.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write skill: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "web-summarize", sampleSkill)

	spec, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if spec.Name != "web-summarize" {
		t.Errorf("expected name web-summarize, got %q", spec.Name)
	}
	if len(spec.Parameters) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(spec.Parameters))
	}
	if spec.Parameters[0].Name != "url" || !spec.Parameters[0].Required {
		t.Errorf("unexpected first parameter: %+v", spec.Parameters[0])
	}
	if string(spec.Parameters[1].Default) != "200" {
		t.Errorf("expected default 200, got %s", spec.Parameters[1].Default)
	}
	if len(spec.AllowedHosts) != 1 || spec.AllowedHosts[0] != "example.com" {
		t.Errorf("unexpected allowed hosts: %v", spec.AllowedHosts)
	}
	if spec.Body == "" {
		t.Error("expected body to be captured")
	}
}

func TestLoadFileValidation(t *testing.T) {
	root := t.TempDir()

	cases := map[string]string{
		"missing frontmatter": "just text",
		"empty name": `---
description: something
---
body`,
		"bad name": `---
name: Bad Name
description: something
---
body`,
	}
	for label, content := range cases {
		path := writeSkill(t, root, "bad-name", content)
		if _, err := LoadFile(path); err == nil {
			t.Errorf("%s: expected error", label)
		}
	}
}

func TestNameMustMatchDirectory(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "wrong-dir", `---
name: other-name
description: something
---
body`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected mismatch rejected")
	}
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "web-summarize", sampleSkill)
	writeSkill(t, root, "note-taker", `---
name: note-taker
description: Take notes.
---
Take notes carefully.
`)
	// A directory without SKILL.md is skipped.
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	specs, err := LoadDir(root)
	if err != nil {
		t.Fatalf("load dir failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(specs))
	}
}

func TestDefinitionConversion(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "web-summarize", sampleSkill)
	spec, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	def, err := spec.Definition()
	if err != nil {
		t.Fatalf("definition failed: %v", err)
	}
	if def.Source != tool.SourceSkill {
		t.Errorf("expected skill source, got %s", def.Source)
	}
	if def.Category != "skill" {
		t.Errorf("expected skill category, got %q", def.Category)
	}
	if len(def.Parameters) != 2 {
		t.Errorf("expected parameters carried over, got %d", len(def.Parameters))
	}
}

func TestRegistryProgramLookup(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Program("unknown"); err == nil {
		t.Fatal("expected unknown skill to fail")
	}

	reg.Bind("adder", func(_ context.Context, args map[string]any) (any, error) {
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return a + b, nil
	})
	program, err := reg.Program("adder")
	if err != nil {
		t.Fatalf("program lookup failed: %v", err)
	}
	value, err := program(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	if err != nil || value != 5.0 {
		t.Fatalf("expected 5, got %v err=%v", value, err)
	}
}

func TestActivationFallback(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "note-taker", `---
name: note-taker
description: Take notes.
---
Take notes carefully.
`)
	reg := NewRegistry()
	specs, err := LoadInto(root, reg)
	if err != nil {
		t.Fatalf("load into failed: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(specs))
	}

	program, err := reg.Program("note-taker")
	if err != nil {
		t.Fatalf("program lookup failed: %v", err)
	}
	value, err := program(context.Background(), nil)
	if err != nil {
		t.Fatalf("activation failed: %v", err)
	}
	act, ok := value.(Activation)
	if !ok {
		t.Fatalf("expected Activation, got %T", value)
	}
	if act.Instructions != "Take notes carefully." {
		t.Errorf("unexpected instructions: %q", act.Instructions)
	}
}

func TestResourceTraversalRejected(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "note-taker", `---
name: note-taker
description: Take notes.
---
body`)
	spec, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	for _, bad := range []string{"", "../outside.txt", "/etc/passwd"} {
		if _, err := spec.Resource(bad); err == nil {
			t.Errorf("expected %q rejected", bad)
		}
	}
}
