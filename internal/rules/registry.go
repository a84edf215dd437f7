package rules

import "errors"

// ErrNoRules is the single fatal rule-loading condition: every registry is
// empty, so the engine has nothing to match against and a run would be a
// silent no-op.
var ErrNoRules = errors.New("rules: no source, sink, or sanitizer definitions loaded")

type definition interface {
	meta() Meta
	pattern() Pattern
}

// registry stores definitions in registration order, overriding by ID.
type registry[T definition] struct {
	order []string
	byID  map[string]T
}

func newRegistry[T definition]() *registry[T] {
	return &registry[T]{byID: make(map[string]T)}
}

// register adds the definition, replacing any earlier one with the same ID.
// A replaced definition keeps its original position so overriding a builtin
// does not reshuffle match order.
func (r *registry[T]) register(def T) {
	id := def.meta().ID
	if _, exists := r.byID[id]; !exists {
		r.order = append(r.order, id)
	}
	r.byID[id] = def
}

func (r *registry[T]) len() int { return len(r.byID) }

// all returns every definition in registration order.
func (r *registry[T]) all() []T {
	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// applicable returns the definitions to test for the given language and
// detected frameworks: language-generic definitions first (registration
// order), then framework-scoped definitions for each framework in detection
// order.
func (r *registry[T]) applicable(language string, frameworks []string) []T {
	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		def := r.byID[id]
		m := def.meta()
		if m.Language != "" && m.Language != language {
			continue
		}
		if m.Framework == "" {
			out = append(out, def)
		}
	}
	for _, fw := range frameworks {
		for _, id := range r.order {
			def := r.byID[id]
			m := def.meta()
			if m.Language != "" && m.Language != language {
				continue
			}
			if m.Framework == fw {
				out = append(out, def)
			}
		}
	}
	return out
}

// match returns the first applicable definition whose pattern matches ref.
func (r *registry[T]) match(ref ExprRef, language string, frameworks []string) (T, bool) {
	for _, def := range r.applicable(language, frameworks) {
		if def.pattern().Matches(ref) {
			return def, true
		}
	}
	var zero T
	return zero, false
}

// SourceRegistry resolves source definitions.
type SourceRegistry struct{ reg *registry[SourceRule] }

// SinkRegistry resolves sink definitions.
type SinkRegistry struct{ reg *registry[SinkRule] }

// SanitizerRegistry resolves sanitizer definitions.
type SanitizerRegistry struct{ reg *registry[SanitizerRule] }

// NewSourceRegistry returns an empty source registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{reg: newRegistry[SourceRule]()}
}

// NewSinkRegistry returns an empty sink registry.
func NewSinkRegistry() *SinkRegistry {
	return &SinkRegistry{reg: newRegistry[SinkRule]()}
}

// NewSanitizerRegistry returns an empty sanitizer registry.
func NewSanitizerRegistry() *SanitizerRegistry {
	return &SanitizerRegistry{reg: newRegistry[SanitizerRule]()}
}

// Register adds or overrides a source definition by ID.
func (r *SourceRegistry) Register(def SourceRule) { r.reg.register(def) }

// Register adds or overrides a sink definition by ID.
func (r *SinkRegistry) Register(def SinkRule) { r.reg.register(def) }

// Register adds or overrides a sanitizer definition by ID.
func (r *SanitizerRegistry) Register(def SanitizerRule) { r.reg.register(def) }

// Len returns the number of registered definitions.
func (r *SourceRegistry) Len() int    { return r.reg.len() }
func (r *SinkRegistry) Len() int      { return r.reg.len() }
func (r *SanitizerRegistry) Len() int { return r.reg.len() }

// All returns every registered definition in registration order.
func (r *SourceRegistry) All() []SourceRule       { return r.reg.all() }
func (r *SinkRegistry) All() []SinkRule           { return r.reg.all() }
func (r *SanitizerRegistry) All() []SanitizerRule { return r.reg.all() }

// Applicable returns the ordered definitions for an analysis context.
func (r *SourceRegistry) Applicable(language string, frameworks []string) []SourceRule {
	return r.reg.applicable(language, frameworks)
}

// Applicable returns the ordered definitions for an analysis context.
func (r *SinkRegistry) Applicable(language string, frameworks []string) []SinkRule {
	return r.reg.applicable(language, frameworks)
}

// Applicable returns the ordered definitions for an analysis context.
func (r *SanitizerRegistry) Applicable(language string, frameworks []string) []SanitizerRule {
	return r.reg.applicable(language, frameworks)
}

// Match returns the first source definition matching ref.
func (r *SourceRegistry) Match(ref ExprRef, language string, frameworks []string) (SourceRule, bool) {
	return r.reg.match(ref, language, frameworks)
}

// Match returns the first sink definition matching ref.
func (r *SinkRegistry) Match(ref ExprRef, language string, frameworks []string) (SinkRule, bool) {
	return r.reg.match(ref, language, frameworks)
}

// Match returns the first sanitizer definition matching ref.
func (r *SanitizerRegistry) Match(ref ExprRef, language string, frameworks []string) (SanitizerRule, bool) {
	return r.reg.match(ref, language, frameworks)
}

// Set bundles the three registries the engine consumes.
type Set struct {
	Sources    *SourceRegistry
	Sinks      *SinkRegistry
	Sanitizers *SanitizerRegistry
}

// NewSet returns a Set of empty registries.
func NewSet() *Set {
	return &Set{
		Sources:    NewSourceRegistry(),
		Sinks:      NewSinkRegistry(),
		Sanitizers: NewSanitizerRegistry(),
	}
}

// Validate returns ErrNoRules when every registry is empty. This is the one
// condition that aborts a run.
func (s *Set) Validate() error {
	if s == nil || s.Sources.Len()+s.Sinks.Len()+s.Sanitizers.Len() == 0 {
		return ErrNoRules
	}
	return nil
}
