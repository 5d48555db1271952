package solana

import "context"

// LogsSubscriber streams the logs of transactions that mention a program.
type LogsSubscriber interface {
	SubscribeProgramLogs(ctx context.Context, program string) (<-chan ProgramLogs, error)
	Close() error
}

// ProgramLogs is one logsNotification.
type ProgramLogs struct {
	Signature string
	Slot      int64
	Lines     []string
	// Failed is set when the transaction errored; its logs describe
	// instructions that were rolled back.
	Failed bool
}

// Contains reports whether any line contains marker, ignoring case.
func (p ProgramLogs) Contains(marker string) bool {
	for _, l := range p.Lines {
		if containsFold(l, marker) {
			return true
		}
	}
	return false
}
