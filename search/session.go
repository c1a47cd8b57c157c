// Package search implements the per-user configure-then-scan workflow:
// session state, channel link parsing, and the scan orchestrator.
package search

import (
	"sync"

	"github.com/m3rciful/searchbot/relay"
)

// Step identifies the session's current point in the configure/search workflow.
type Step string

const (
	// StepDefault means no conversation is in progress; free text is ignored.
	StepDefault Step = "default"
	// StepAwaitingChannels means the next message is treated as a channel link list.
	StepAwaitingChannels Step = "awaiting_channels"
	// StepAwaitingQuery means the next message is stored as the search phrase.
	StepAwaitingQuery Step = "awaiting_query"
	// StepSearching means a scan is executing on behalf of the user.
	StepSearching Step = "searching"
)

// scanState is scratch data that exists only while a scan is running.
type scanState struct {
	ActiveChannel string
	Pending       []relay.Post
}

func (s scanState) empty() bool {
	return s.ActiveChannel == "" && len(s.Pending) == 0
}

// Session holds the configuration and workflow progress of one user.
// Channels and Query are configuration and survive step changes; scan
// scratch state is cleared whenever the step leaves StepSearching.
type Session struct {
	mu sync.Mutex

	ID          int64
	DisplayName string
	Step        Step
	Channels    []string
	Query       string

	scan scanState
}

// ScanIdle reports whether the session carries no scan scratch state.
func (s *Session) ScanIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan.empty()
}

// CurrentStep returns the session step under the session lock.
func (s *Session) CurrentStep() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Step
}

func (s *Session) clearScan() {
	s.scan = scanState{}
}
