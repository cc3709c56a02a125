// internal/driver/files.go
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/pagecheck/api/schemas"
)

// LoadScript reads a script from a JSON or YAML file. A leading ~ is expanded.
func LoadScript(path string) (*schemas.Script, error) {
	var s schemas.Script
	if err := load(path, &s); err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}
	return &s, nil
}

// LoadBatch reads a batch from a JSON or YAML file. A leading ~ is expanded.
func LoadBatch(path string) (*schemas.Batch, error) {
	var b schemas.Batch
	if err := load(path, &b); err != nil {
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}
	return &b, nil
}

func load(path string, out any) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("could not resolve path '%s': %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".yaml", ".yml":
		// YAML is converted to JSON so acts decode through their flat JSON form.
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("invalid YAML in %s: %w", expanded, err)
		}
		if data, err = json.Marshal(generic); err != nil {
			return fmt.Errorf("failed to convert %s: %w", expanded, err)
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", expanded, err)
	}
	return nil
}

// WriteReport writes the report as report-<id>.json under dir and returns the file path.
func WriteReport(dir string, report *schemas.Report, indent bool) (string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("could not resolve report directory '%s': %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	var data []byte
	if indent {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(expanded, fmt.Sprintf("report-%s.json", report.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
