package sign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"amo-signer/internal/client"
	"amo-signer/internal/logging"
	"amo-signer/internal/models"
)

// ErrTimeout is returned when the signing job does not finish before the poll deadline
var ErrTimeout = errors.New("signing took too long to complete; check the add-on status on the developer hub")

type pollOutcome int

const (
	keepPolling pollOutcome = iota
	signingFailed
	signingComplete
)

// PollOption configures a single WaitForSignedAddon call
type PollOption func(*pollConfig)

type pollConfig struct {
	abortAfter    time.Duration
	abortAfterSet bool
}

// WithAbortAfter bounds this poll. The effective deadline is the smaller of
// this and the signer's status check timeout.
func WithAbortAfter(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.abortAfter = d
		c.abortAfterSet = true
	}
}

// evaluate applies the status decision table in order
func evaluate(status *models.SigningStatus) (pollOutcome, string) {
	switch {
	case !status.Processed:
		return keepPolling, "validation has not finished"
	case !status.Valid:
		return signingFailed, "validation failed"
	case !status.Reviewed:
		return keepPolling, "waiting for the version to be reviewed"
	case len(status.Files) == 0:
		return keepPolling, "waiting for signed files"
	case !status.IsActive():
		return signingFailed, "the version was not automatically signed"
	default:
		return signingComplete, "signed files are ready"
	}
}

// pollState tracks the pending timers of one poll so every exit path
// releases them exactly once.
type pollState struct {
	statusURL string
	started   time.Time
	abort     Timer
	throttle  Timer
	released  bool
}

func (p *pollState) release() {
	if p.released {
		return
	}
	p.released = true
	if p.abort != nil {
		p.abort.Stop()
	}
	if p.throttle != nil {
		p.throttle.Stop()
		p.throttle = nil
	}
}

// WaitForSignedAddon polls statusURL until the signing job reaches a terminal
// state, then downloads the signed files. Only one status GET is in flight at
// a time. Validation failure and inactive versions resolve with Success=false.
func (s *Signer) WaitForSignedAddon(ctx context.Context, statusURL string, opts ...PollOption) (*models.SignResult, error) {
	cfg := pollConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	deadline := s.statusCheckTimeout
	if cfg.abortAfterSet && cfg.abortAfter < deadline {
		deadline = cfg.abortAfter
	}
	if deadline <= 0 {
		return nil, ErrTimeout
	}

	s.progress.Animate()
	defer s.progress.Finish()

	aborted := make(chan struct{})
	state := &pollState{statusURL: statusURL, started: time.Now()}
	state.abort = s.timers.AfterFunc(deadline, func() { close(aborted) })
	defer state.release()

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-aborted:
			cancel()
		case <-pollCtx.Done():
		}
	}()

	for attempt := 1; ; attempt++ {
		logging.Debugf(ctx, "Checking signing status (attempt %d)", attempt)
		resp, err := s.api.Get(pollCtx, client.Request{URL: statusURL})
		if isClosed(aborted) {
			return nil, ErrTimeout
		}
		if err != nil {
			return nil, err
		}

		var status models.SigningStatus
		if err := resp.Decode(&status); err != nil {
			logging.Debugf(ctx, "Could not decode signing status, treating it as pending: %v", err)
			status = models.SigningStatus{}
		}

		outcome, reason := evaluate(&status)
		logging.Debugf(ctx, "Signing status after %s: %s", time.Since(state.started).Round(time.Millisecond), reason)

		switch outcome {
		case signingFailed:
			state.release()
			logging.Errorf(ctx, "Signing failed: %s", reason)
			if status.ValidationURL != "" {
				logging.Noticef(ctx, "Validation results: %s", status.ValidationURL)
			}
			return &models.SignResult{Success: false, ValidationURL: status.ValidationURL}, nil
		case signingComplete:
			state.release()
			s.progress.Finish()
			return s.DownloadSignedFiles(ctx, status.Files)
		}

		next := make(chan struct{})
		state.throttle = s.timers.AfterFunc(s.statusCheckInterval, func() { close(next) })
		select {
		case <-next:
			state.throttle = nil
		case <-aborted:
			state.release()
			logging.Errorf(ctx, "Signing did not complete within %s", deadline)
			return nil, ErrTimeout
		case <-ctx.Done():
			state.release()
			return nil, fmt.Errorf("signing status check cancelled: %w", ctx.Err())
		}
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
