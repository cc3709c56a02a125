// api/schemas/report.go
package schemas

import (
	"time"
)

// Script is the declarative program the executor runs.
type Script struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Description string `json:"description" yaml:"description"`
	// Strict makes an unrequested navigation redirect an error.
	Strict   bool   `json:"strict" yaml:"strict"`
	Commands []*Act `json:"commands" yaml:"-"`
}

// Host is one target of a batch.
type Host struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Target      string `json:"target" yaml:"target"`
	Description string `json:"description" yaml:"description"`
}

// Batch is a set of hosts against which the same script is replayed.
type Batch struct {
	ID          string  `json:"id,omitempty" yaml:"id,omitempty"`
	Description string  `json:"description" yaml:"description"`
	Hosts       []*Host `json:"hosts" yaml:"hosts"`
}

// SessionStats are counters accumulated across one report. They only grow during a run.
type SessionStats struct {
	LogCount            int64 `json:"logCount"`
	LogSize             int64 `json:"logSize"`
	ErrorLogCount       int64 `json:"errorLogCount"`
	ProhibitedCount     int64 `json:"prohibitedCount"`
	VisitTimeoutCount   int64 `json:"visitTimeoutCount"`
	VisitRejectionCount int64 `json:"visitRejectionCount"`
}

// IsZero reports whether no counter has moved.
func (s SessionStats) IsZero() bool {
	return s == SessionStats{}
}

// Report is the record of one script run against one host.
type Report struct {
	ID                string       `json:"id"`
	ScriptID          string       `json:"scriptID,omitempty"`
	ScriptDescription string       `json:"scriptDescription,omitempty"`
	Strict            bool         `json:"strict"`
	Host              *Host        `json:"host,omitempty"`
	HostOrder         int          `json:"hostOrder,omitempty"`
	BatchID           string       `json:"batchID,omitempty"`
	Acts              []*Act       `json:"acts"`
	StartTime         time.Time    `json:"startTime"`
	EndTime           time.Time    `json:"endTime"`
	ElapsedSeconds    float64      `json:"elapsedSeconds"`
	SessionStats      SessionStats `json:"sessionStats"`
	// Fatal carries the reason a run stopped early on an unrecoverable condition.
	Fatal string `json:"fatal,omitempty"`
}

// Clone deep-copies the report.
func (r *Report) Clone() *Report {
	c := *r
	if r.Host != nil {
		h := *r.Host
		c.Host = &h
	}
	c.Acts = make([]*Act, len(r.Acts))
	for i, a := range r.Acts {
		c.Acts[i] = a.Clone()
	}
	return &c
}

// AuthoredActs strips annotations and drops synthetic acts, reproducing the script's
// command list.
func (r *Report) AuthoredActs() []*Act {
	out := make([]*Act, 0, len(r.Acts))
	for _, a := range r.Acts {
		if a.Synthetic {
			continue
		}
		out = append(out, a.Strip())
	}
	return out
}
