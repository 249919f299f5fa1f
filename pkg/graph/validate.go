package graph

import "fmt"

// ValidationSeverity indicates whether a finding means the view is
// inconsistent or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // index and sockets disagree
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   int                // which node has the problem (-1 if view-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID < 0 {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %d: %s", e.Severity, e.NodeID, e.Message)
}

// ValidationResult bundles errors and warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// OK reports whether there are no error-severity findings.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Validate checks the view for internal consistency and returns every
// finding. It never mutates the view.
func Validate(v *View) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateNodeIDs(v)...)
	errs = append(errs, validateSocketIDs(v)...)
	errs = append(errs, validateIndex(v)...)
	errs = append(errs, validateUpstreams(v)...)
	return errs
}

// ValidateAll runs Validate and splits the findings by severity.
func ValidateAll(v *View) ValidationResult {
	var result ValidationResult
	for _, e := range Validate(v) {
		if e.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, e)
		} else {
			result.Errors = append(result.Errors, e)
		}
	}
	return result
}

// validateNodeIDs checks that no two nodes share an id.
func validateNodeIDs(v *View) []ValidationError {
	var errs []ValidationError
	seen := make(map[int]bool)
	for _, n := range v.nodes {
		if seen[n.id] {
			errs = append(errs, ValidationError{
				NodeID:   n.id,
				Message:  fmt.Sprintf("duplicate node id %d", n.id),
				Severity: SeverityError,
			})
		}
		seen[n.id] = true
	}
	return errs
}

// validateSocketIDs checks that every socket has a non-zero id that is unique
// within its node.
func validateSocketIDs(v *View) []ValidationError {
	var errs []ValidationError
	for _, n := range v.nodes {
		seen := make(map[uint32]bool)
		for _, s := range n.Sockets() {
			if s.id == 0 {
				errs = append(errs, ValidationError{
					NodeID:   n.id,
					Message:  fmt.Sprintf("socket %q has no id", s.name),
					Severity: SeverityError,
				})
				continue
			}
			if seen[s.id] {
				errs = append(errs, ValidationError{
					NodeID:   n.id,
					Message:  fmt.Sprintf("duplicate socket id %d", s.id),
					Severity: SeverityError,
				})
			}
			seen[s.id] = true
		}
	}
	return errs
}

// validateIndex checks every cached connection against the sockets it names.
func validateIndex(v *View) []ValidationError {
	var errs []ValidationError
	seen := make(map[*Socket]bool)
	for _, c := range v.conns {
		nodeID := -1
		if c.Sink.node != nil {
			nodeID = c.Sink.node.id
		}
		if seen[c.Sink] {
			errs = append(errs, ValidationError{
				NodeID:   nodeID,
				Message:  fmt.Sprintf("sink %s is indexed more than once", c.Sink),
				Severity: SeverityError,
			})
		}
		seen[c.Sink] = true

		if c.Sink.upstream != c.Source {
			errs = append(errs, ValidationError{
				NodeID:   nodeID,
				Message:  fmt.Sprintf("indexed link %s -> %s is not held by the sink", c.Source, c.Sink),
				Severity: SeverityError,
			})
			continue
		}
		if c.Sink.mode != ModeSink || c.Source.mode != ModeSource {
			errs = append(errs, ValidationError{
				NodeID:   nodeID,
				Message:  fmt.Sprintf("indexed link %s -> %s joins %s to %s", c.Source, c.Sink, c.Source.mode, c.Sink.mode),
				Severity: SeverityError,
			})
		}
		if !Compatible(c.Sink, c.Source) && c.Sink.mode == ModeSink && c.Source.mode == ModeSource {
			errs = append(errs, ValidationError{
				NodeID:   nodeID,
				Message:  fmt.Sprintf("indexed link %s -> %s has mismatched keys %d/%d", c.Source, c.Sink, c.Source.key, c.Sink.key),
				Severity: SeverityError,
			})
		}
		if c.Source.node != nil && !v.contains(c.Source.node) {
			errs = append(errs, ValidationError{
				NodeID:   nodeID,
				Message:  fmt.Sprintf("source %s belongs to a node outside the view", c.Source),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// validateUpstreams checks that every connected sink in the view is indexed.
func validateUpstreams(v *View) []ValidationError {
	var errs []ValidationError
	indexed := make(map[Connection]bool, len(v.conns))
	for _, c := range v.conns {
		indexed[c] = true
	}
	for _, n := range v.nodes {
		for _, s := range n.Sinks() {
			if s.upstream == nil {
				continue
			}
			if !indexed[Connection{Source: s.upstream, Sink: s}] {
				errs = append(errs, ValidationError{
					NodeID:   n.id,
					Message:  fmt.Sprintf("link %s -> %s is missing from the index", s.upstream, s),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

func (v *View) contains(n *Node) bool {
	_, ok := v.subs[n]
	return ok
}
