package rules

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/core"
)

// ruleFile is the on-disk shape of a project or user rule overlay.
type ruleFile struct {
	Sources    []SourceRule    `yaml:"sources"`
	Sinks      []SinkRule      `yaml:"sinks"`
	Sanitizers []SanitizerRule `yaml:"sanitizers"`
}

// Loader layers rule files onto a Set. Individual malformed entries are
// dropped and counted; the load as a whole always succeeds as long as the
// file itself parses.
type Loader struct {
	logger  *zap.Logger
	set     *Set
	skipped int
}

// NewLoader wraps the given Set for overlay loading.
func NewLoader(logger *zap.Logger, set *Set) *Loader {
	return &Loader{logger: logger.Named("rule_loader"), set: set}
}

// Skipped returns the number of individual definitions dropped so far.
func (l *Loader) Skipped() int { return l.skipped }

// LoadFile reads one YAML rule file and registers its valid entries,
// overriding earlier definitions by ID. The returned error is non-nil only
// when the file cannot be read or is not valid YAML.
func (l *Loader) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rule file %s: %w", path, err)
	}
	return l.Load(raw, path)
}

// Load registers the valid entries of an in-memory rule document.
func (l *Loader) Load(raw []byte, origin string) error {
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parsing rule file %s: %w", origin, err)
	}

	for _, def := range file.Sources {
		if reason := validateMeta(def.Meta, def.Pattern); reason != "" {
			l.skip(origin, def.ID, reason)
			continue
		}
		def.Label = core.ParseLabel(def.LabelName)
		l.set.Sources.Register(def)
	}

	for _, def := range file.Sinks {
		if reason := validateMeta(def.Meta, def.Pattern); reason != "" {
			l.skip(origin, def.ID, reason)
			continue
		}
		if def.SinkType == "" {
			l.skip(origin, def.ID, "missing sink_type")
			continue
		}
		if def.Severity == "" {
			def.Severity = schemas.RiskHigh
		}
		l.set.Sinks.Register(def)
	}

	for _, def := range file.Sanitizers {
		if reason := validateMeta(def.Meta, def.Pattern); reason != "" {
			l.skip(origin, def.ID, reason)
			continue
		}
		if def.Kind == "" {
			l.skip(origin, def.ID, "missing sanitizer_type")
			continue
		}
		l.set.Sanitizers.Register(def)
	}

	l.logger.Info("Rule file loaded",
		zap.String("origin", origin),
		zap.Int("sources", l.set.Sources.Len()),
		zap.Int("sinks", l.set.Sinks.Len()),
		zap.Int("sanitizers", l.set.Sanitizers.Len()),
		zap.Int("skipped_total", l.skipped),
	)
	return nil
}

func validateMeta(m Meta, p Pattern) string {
	if m.ID == "" {
		return "missing id"
	}
	if !p.Validate() {
		return "invalid pattern"
	}
	return ""
}

func (l *Loader) skip(origin, id, reason string) {
	l.skipped++
	l.logger.Warn("Dropping invalid rule definition",
		zap.String("origin", origin),
		zap.String("id", id),
		zap.String("reason", reason),
	)
}
