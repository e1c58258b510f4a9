package trigger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/questscript/pkg/script"
	"gopkg.in/yaml.v3"
)

type document struct {
	ID          string          `json:"id"`
	Description string          `json:"description,omitempty"`
	Once        bool            `json:"once,omitempty"`
	Conditions  json.RawMessage `json:"conditions,omitempty"`
	Actions     json.RawMessage `json:"actions,omitempty"`
}

type Loader struct {
	parser *script.Parser
	logger *slog.Logger
}

// NewLoader returns a loader that parses nodes with parser. A nil parser uses
// one without extensions.
func NewLoader(parser *script.Parser, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if parser == nil {
		parser = script.NewParser(logger)
	}
	return &Loader{parser: parser, logger: logger}
}

// ParseJSON reads either an array of triggers or an object with a
// "triggers" array. Triggers and nodes that fail to parse are skipped and
// reported in Set.Skipped; only a malformed document is an error.
func (l *Loader) ParseJSON(data []byte) (*Set, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Triggers json.RawMessage `json:"triggers"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", script.ErrParse, err)
		}
		trimmed = wrapper.Triggers
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("%w: triggers must be an array: %v", script.ErrParse, err)
	}

	set := &Set{}
	seen := make(map[string]bool, len(raws))
	for i, raw := range raws {
		t, errs := l.parseTrigger(raw)
		set.Skipped = append(set.Skipped, errs...)
		if t == nil {
			l.logger.Warn("Skipping trigger", "index", i, "errors", len(errs))
			continue
		}
		if seen[t.ID] {
			err := fmt.Errorf("%w: duplicate trigger id %q", script.ErrParse, t.ID)
			l.logger.Warn("Skipping trigger", "index", i, "error", err)
			set.Skipped = append(set.Skipped, err)
			continue
		}
		seen[t.ID] = true
		set.Triggers = append(set.Triggers, t)
	}
	return set, nil
}

// ParseYAML reads the same document shapes as ParseJSON written in YAML.
func (l *Loader) ParseYAML(data []byte) (*Set, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", script.ErrParse, err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: yaml document is not representable as json: %v", script.ErrParse, err)
	}
	return l.ParseJSON(js)
}

// parseTrigger returns nil when the trigger itself is unusable, including a
// conditions or actions value that is not a list. Bad condition or action
// nodes are dropped from an otherwise valid trigger.
func (l *Loader) parseTrigger(raw json.RawMessage) (*Trigger, []error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, []error{fmt.Errorf("%w: %v", script.ErrParse, err)}
	}
	if doc.ID == "" {
		return nil, []error{fmt.Errorf("%w: trigger without id", script.ErrParse)}
	}

	t := &Trigger{ID: doc.ID, Description: doc.Description, Once: doc.Once}
	var errs []error
	if present(doc.Conditions) {
		conds, cerrs, err := l.parser.ParseConditionList(doc.Conditions)
		if err != nil {
			return nil, []error{fmt.Errorf("trigger %s conditions: %w", doc.ID, err)}
		}
		t.Conditions = conds
		for _, err := range cerrs {
			errs = append(errs, fmt.Errorf("trigger %s condition: %w", doc.ID, err))
		}
	}
	if present(doc.Actions) {
		actions, aerrs, err := l.parser.ParseMicroscriptList(doc.Actions)
		if err != nil {
			return nil, []error{fmt.Errorf("trigger %s actions: %w", doc.ID, err)}
		}
		t.Actions = actions
		for _, err := range aerrs {
			errs = append(errs, fmt.Errorf("trigger %s action: %w", doc.ID, err))
		}
	}
	return t, errs
}

// present reports whether an optional list field was given. An explicit null
// counts as absent.
func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// LoadFile parses a .json, .yaml or .yml file.
func (l *Loader) LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("trigger file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read trigger file: %w", err)
	}

	l.logger.Debug("Loading triggers", "path", path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.ParseYAML(data)
	case ".json":
		return l.ParseJSON(data)
	}
	return nil, fmt.Errorf("%w: unsupported trigger file %s", script.ErrParse, path)
}

// LoadDir loads every trigger file under dir. Files that fail to load are
// logged and reported in Set.Skipped.
func (l *Loader) LoadDir(dir string) (*Set, error) {
	set := &Set{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
		default:
			return nil
		}

		fileSet, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn("Failed to load trigger file", "path", path, "error", err)
			set.Skipped = append(set.Skipped, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		set.merge(fileSet)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk trigger directory: %w", err)
	}
	return set, nil
}
