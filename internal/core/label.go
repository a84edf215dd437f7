// Package core holds the shared vocabulary of the taint engine: taint
// labels, sink and sanitizer categories, and severity levels. It has no
// dependencies on the rest of the engine so that both the rule registries
// and the analysis passes can share it freely.
package core

import (
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// Label identifies the origin category of an untrusted value. A value may
// carry several labels at once; see LabelSet.
type Label uint8

const (
	LabelUserInput Label = iota
	LabelFileRead
	LabelEnvVar
	LabelDatabaseRead
	LabelAPIResponse
	LabelDeserialized
	LabelCommandOutput
	// LabelUnknownOrigin marks taint whose origin could not be determined,
	// for example the synthetic parameter taint used while summarizing a
	// function independent of any call site.
	LabelUnknownOrigin

	// LabelCustomBase is the first label available to user-defined rules.
	// Labels in [LabelCustomBase, 64) are reserved for custom sources.
	LabelCustomBase Label = 32
)

var labelNames = map[Label]string{
	LabelUserInput:     "user_input",
	LabelFileRead:      "file_read",
	LabelEnvVar:        "env_var",
	LabelDatabaseRead:  "database_read",
	LabelAPIResponse:   "api_response",
	LabelDeserialized:  "deserialized",
	LabelCommandOutput: "command_output",
	LabelUnknownOrigin: "unknown_origin",
}

// String returns the canonical name for the label. Custom labels render as
// "custom_N".
func (l Label) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	if l >= LabelCustomBase && l < 64 {
		return "custom_" + strconv.Itoa(int(l-LabelCustomBase))
	}
	return "label_" + strconv.Itoa(int(l))
}

// ParseLabel resolves a label name back to its Label. Unknown names map to
// LabelUnknownOrigin so that a stale rule file degrades instead of failing.
func ParseLabel(name string) Label {
	for l, n := range labelNames {
		if n == name {
			return l
		}
	}
	if rest, ok := strings.CutPrefix(name, "custom_"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 && Label(n)+LabelCustomBase < 64 {
			return LabelCustomBase + Label(n)
		}
	}
	return LabelUnknownOrigin
}

// LabelSet is a fixed-capacity set of labels with O(1) union and membership.
// The zero value is the empty set.
type LabelSet uint64

// NewLabelSet builds a set from the given labels.
func NewLabelSet(labels ...Label) LabelSet {
	var s LabelSet
	for _, l := range labels {
		s = s.Add(l)
	}
	return s
}

// Add returns the set with l included.
func (s LabelSet) Add(l Label) LabelSet {
	if l >= 64 {
		return s
	}
	return s | (1 << l)
}

// Has reports whether l is in the set.
func (s LabelSet) Has(l Label) bool {
	if l >= 64 {
		return false
	}
	return s&(1<<l) != 0
}

// Union returns the set containing every label of s and other.
func (s LabelSet) Union(other LabelSet) LabelSet { return s | other }

// Empty reports whether the set contains no labels.
func (s LabelSet) Empty() bool { return s == 0 }

// Len returns the number of labels in the set.
func (s LabelSet) Len() int { return bits.OnesCount64(uint64(s)) }

// Labels returns the members in ascending order.
func (s LabelSet) Labels() []Label {
	if s == 0 {
		return nil
	}
	out := make([]Label, 0, s.Len())
	for l := Label(0); l < 64; l++ {
		if s.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

// Names returns the sorted label names, primarily for reporting.
func (s LabelSet) Names() []string {
	labels := s.Labels()
	if labels == nil {
		return nil
	}
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.String()
	}
	sort.Strings(names)
	return names
}

// String renders the set as a pipe-joined list of names.
func (s LabelSet) String() string {
	return strings.Join(s.Names(), "|")
}
