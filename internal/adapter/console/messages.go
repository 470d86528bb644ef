package console

import (
	"time"

	"boardpilot/internal/domain"
)

// resultMsg carries the outcome of one submitted command. gen identifies the
// request generation so stale results can be discarded.
type resultMsg struct {
	res     *domain.ExecutionResult
	err     error
	elapsed time.Duration
	gen     uint64
}

// progressMsg is one live job progress note forwarded from the engine.
type progressMsg struct {
	note string
	gen  uint64
}

// summaryMsg carries the board digest for /summary.
type summaryMsg struct {
	digest string
	err    error
}

// quitMsg signals the program to exit.
type quitMsg struct{}
