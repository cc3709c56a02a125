package session

import (
	"regexp"
	"sync/atomic"
	"unicode/utf8"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/browser"
)

var prohibitedPattern = regexp.MustCompile(`(?i)403|prohibited`)

// stats is written from page event goroutines and read by the executor.
type stats struct {
	logCount        atomic.Int64
	logSize         atomic.Int64
	errorLogCount   atomic.Int64
	prohibitedCount atomic.Int64
	visitTimeouts   atomic.Int64
	visitRejections atomic.Int64
}

func (s *stats) observe(msg browser.ConsoleMessage) {
	s.logCount.Add(1)
	s.logSize.Add(int64(utf8.RuneCountInString(msg.Text)))
	if msg.Type == "error" {
		s.errorLogCount.Add(1)
	}
	if prohibitedPattern.MatchString(msg.Text) {
		s.prohibitedCount.Add(1)
	}
}

func (s *stats) snapshot() schemas.SessionStats {
	return schemas.SessionStats{
		LogCount:            s.logCount.Load(),
		LogSize:             s.logSize.Load(),
		ErrorLogCount:       s.errorLogCount.Load(),
		ProhibitedCount:     s.prohibitedCount.Load(),
		VisitTimeoutCount:   s.visitTimeouts.Load(),
		VisitRejectionCount: s.visitRejections.Load(),
	}
}
