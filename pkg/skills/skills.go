// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

// Package skills loads skill specifications from SKILL.md files and binds
// them to sandboxed programs. A skill directory holds one SKILL.md with YAML
// frontmatter (name, description, parameters, allowed hosts) followed by the
// skill's instruction body.
package skills

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/lamwimham/neuroflow-sub001/pkg/tool"
)

// SkillSpec describes one skill as declared in its SKILL.md.
type SkillSpec struct {
	Name         string
	Description  string
	Parameters   []tool.Parameter
	AllowedHosts []string
	Metadata     map[string]string
	Body         string
	Path         string
	Dir          string
}

const (
	maxNameLen        = 64
	maxDescriptionLen = 1024
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// LoadDir scans a directory for skill subdirectories with SKILL.md.
func LoadDir(root string) ([]SkillSpec, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []SkillSpec
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(root, entry.Name(), "SKILL.md")
		if _, err := os.Stat(skillPath); err != nil {
			continue
		}
		skill, err := LoadFile(skillPath)
		if err != nil {
			return nil, err
		}
		out = append(out, skill)
	}
	return out, nil
}

// LoadFile parses a single SKILL.md file.
func LoadFile(path string) (SkillSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SkillSpec{}, err
	}
	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return SkillSpec{}, fmt.Errorf("%s: %w", path, err)
	}
	var parsed frontmatter
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		return SkillSpec{}, fmt.Errorf("%s: parse frontmatter: %w", path, err)
	}
	params, err := convertParameters(parsed.Parameters)
	if err != nil {
		return SkillSpec{}, fmt.Errorf("%s: %w", path, err)
	}
	spec := SkillSpec{
		Name:         strings.TrimSpace(parsed.Name),
		Description:  strings.TrimSpace(parsed.Description),
		Parameters:   params,
		AllowedHosts: dedupe(parsed.AllowedHosts),
		Metadata:     parsed.Metadata,
		Body:         strings.TrimSpace(body),
		Path:         path,
		Dir:          filepath.Dir(path),
	}
	if err := validate(spec); err != nil {
		return SkillSpec{}, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

type frontmatter struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Parameters   []paramSpec       `yaml:"parameters"`
	AllowedHosts []string          `yaml:"allowed-hosts"`
	Metadata     map[string]string `yaml:"metadata"`
}

type paramSpec struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Required    bool     `yaml:"required"`
	Default     any      `yaml:"default"`
	Enum        []string `yaml:"enum"`
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", errors.New("missing frontmatter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return "", "", errors.New("invalid frontmatter")
	}
	return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
}

func convertParameters(specs []paramSpec) ([]tool.Parameter, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]tool.Parameter, 0, len(specs))
	for _, ps := range specs {
		p := tool.Parameter{
			Name:        strings.TrimSpace(ps.Name),
			Type:        strings.TrimSpace(ps.Type),
			Description: ps.Description,
			Required:    ps.Required,
			Enum:        ps.Enum,
		}
		if p.Type == "" {
			p.Type = "string"
		}
		if ps.Default != nil {
			raw, err := json.Marshal(ps.Default)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: encode default: %w", ps.Name, err)
			}
			p.Default = raw
		}
		out = append(out, p)
	}
	return out, nil
}

func validate(spec SkillSpec) error {
	if spec.Name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(spec.Name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(spec.Name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	if dirName := filepath.Base(spec.Dir); dirName != spec.Name {
		return fmt.Errorf("name must match directory name (%s)", dirName)
	}
	if spec.Description == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(spec.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	return nil
}

// Definition converts the spec into a registrable tool definition.
func (s SkillSpec) Definition() (*tool.Definition, error) {
	b := tool.NewBuilder(s.Name).
		Description(s.Description).
		Source(tool.SourceSkill).
		Category("skill")
	for _, p := range s.Parameters {
		b.Param(p)
	}
	for k, v := range s.Metadata {
		b.Meta(k, v)
	}
	return b.Build()
}

// Resource reads a file from the skill directory, rejecting paths that
// escape it.
func (s SkillSpec) Resource(resourcePath string) (string, error) {
	if resourcePath == "" {
		return "", errors.New("resource path is required")
	}
	cleanPath := filepath.Clean(resourcePath)
	if strings.HasPrefix(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("invalid resource path: %s", resourcePath)
	}
	fullPath := filepath.Join(s.Dir, cleanPath)
	absDir, _ := filepath.Abs(s.Dir)
	absPath, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absPath, absDir) {
		return "", errors.New("resource path outside skill directory")
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("load resource %s: %w", resourcePath, err)
	}
	return string(data), nil
}

// Resources lists files under the skill's scripts/, references/ and assets/
// subdirectories.
func (s SkillSpec) Resources() []string {
	var resources []string
	for _, subdir := range []string{"scripts", "references", "assets"} {
		entries, err := os.ReadDir(filepath.Join(s.Dir, subdir))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				resources = append(resources, filepath.Join(subdir, entry.Name()))
			}
		}
	}
	return resources
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
