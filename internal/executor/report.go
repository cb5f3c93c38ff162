package executor

import (
	"fmt"
	"strings"
)

type Op string

const (
	OpAdd    Op = "add"
	OpLink   Op = "link"
	OpRemove Op = "remove"
	OpUpdate Op = "update"
	OpRecur  Op = "recur"
)

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomePlanned Outcome = "planned"
)

// Notice records what happened to one operation of a batch. Applied
// notices may still carry a Message, e.g. when a parent reference could
// not be resolved and the task was created at the top level instead.
type Notice struct {
	Op      Op      `json:"op"`
	Ref     string  `json:"ref"`
	TaskID  string  `json:"task_id,omitempty"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
}

func (n Notice) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %q: %s", n.Op, n.Ref, n.Outcome)
	if n.Message != "" {
		sb.WriteString(" (")
		sb.WriteString(n.Message)
		sb.WriteString(")")
	}
	return sb.String()
}

// Report is the aggregate, best-effort result of one batch.
type Report struct {
	Notices []Notice `json:"notices"`
	// Discarded counts entries the normalizer dropped before execution.
	Discarded int `json:"discarded,omitempty"`
}

func (r *Report) add(n Notice) {
	r.Notices = append(r.Notices, n)
}

func (r *Report) filter(o Outcome) []Notice {
	var out []Notice
	for _, n := range r.Notices {
		if n.Outcome == o {
			out = append(out, n)
		}
	}
	return out
}

func (r *Report) Applied() []Notice { return r.filter(OutcomeApplied) }
func (r *Report) Skipped() []Notice { return r.filter(OutcomeSkipped) }
func (r *Report) Failed() []Notice  { return r.filter(OutcomeFailed) }
func (r *Report) Planned() []Notice { return r.filter(OutcomePlanned) }

// Empty reports whether nothing was attempted.
func (r *Report) Empty() bool {
	return len(r.Notices) == 0
}

// Summary renders the counts shown to the operator.
func (r *Report) Summary() string {
	if r.Empty() {
		return "no action identified"
	}
	if planned := len(r.Planned()); planned > 0 {
		return fmt.Sprintf("%d planned, %d skipped", planned, len(r.Skipped()))
	}
	s := fmt.Sprintf("%d applied, %d skipped, %d failed", len(r.Applied()), len(r.Skipped()), len(r.Failed()))
	if r.Discarded > 0 {
		s += fmt.Sprintf(", %d ignored", r.Discarded)
	}
	return s
}
