package database

import "testing"

func TestFeedItemStatusSchedulable(t *testing.T) {
	tests := []struct {
		status   FeedItemStatus
		expected bool
	}{
		{FeedItemStatusInitialSync, true},
		{FeedItemStatusPending, true},
		{FeedItemStatusScheduled, false},
		{FeedItemStatusSkipped, false},
		{FeedItemStatusFailed, false},
	}

	for _, tt := range tests {
		if got := tt.status.Schedulable(); got != tt.expected {
			t.Errorf("Schedulable(%s): expected %v, got %v", tt.status, tt.expected, got)
		}
	}
}

func TestTerminalStatus(t *testing.T) {
	success := ChannelOutcome{Status: OutcomeStatusSuccess}
	failed := ChannelOutcome{Status: OutcomeStatusFailed}

	tests := []struct {
		name     string
		outcomes []ChannelOutcome
		expected JobStatus
	}{
		{"all succeeded", []ChannelOutcome{success, success}, JobStatusCompleted},
		{"single success", []ChannelOutcome{success}, JobStatusCompleted},
		{"mixed", []ChannelOutcome{success, failed}, JobStatusPartialSuccess},
		{"all failed", []ChannelOutcome{failed, failed}, JobStatusFailed},
		{"no outcomes", nil, JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TerminalStatus(tt.outcomes); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
