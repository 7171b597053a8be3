package render

import (
	"context"
	"time"

	"github.com/bobarin/directorscut/internal/safety"
	"github.com/bobarin/directorscut/internal/services"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval     = 10 * time.Second
	DefaultPollErrorBackoff = 5 * time.Second
	DefaultMaxPolls         = 60
)

// PollOperation re-queries handle every interval until the operation is done.
// At most maxPolls queries are made; a failed query waits errorBackoff and
// still counts toward the budget. An unfinished operation yields safety.ErrPollTimeout.
func PollOperation(ctx context.Context, gen services.VideoGenerator, handle *services.OperationHandle, interval, errorBackoff time.Duration, maxPolls int) (*services.OperationStatus, error) {
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}

	for poll := 1; poll <= maxPolls; poll++ {
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}

		status, err := gen.PollVideo(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("operation", handle.Name).Int("poll", poll).Msg("poll error")
			if poll < maxPolls {
				if err := sleep(ctx, errorBackoff); err != nil {
					return nil, err
				}
			}
			continue
		}

		if poll%3 == 0 || status.Done {
			log.Info().Str("operation", handle.Name).Int("poll", poll).Bool("done", status.Done).Msg("poll")
		}
		if status.Done {
			return status, nil
		}
	}

	return nil, safety.ErrPollTimeout
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
