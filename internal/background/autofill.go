package background

import (
	"context"
	"errors"
	"fmt"

	"github.com/v0xg/formpilot/internal/extension"
	"github.com/v0xg/formpilot/internal/protocol"
)

// ErrEmptyProfile is returned when the profile carries no usable value.
var ErrEmptyProfile = errors.New("profile has no values")

// TriggerAutofill fetches the profile and sends AUTOFILL_FORM to tab. It
// blocks until the tab replies and must not be called from the store loop.
func (s *Store) TriggerAutofill(ctx context.Context, tab extension.TabID) (*protocol.AutofillReply, error) {
	if s.profiles == nil {
		return nil, fmt.Errorf("autofill tab %d: no profile source", tab)
	}
	p, err := s.profiles.GetProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("autofill tab %d: %w", tab, err)
	}
	prof := ToEngineProfile(p)
	if prof.IsEmpty() {
		return nil, ErrEmptyProfile
	}

	raw, err := s.hub.SendToTab(ctx, tab, protocol.AutofillForm{Profile: prof}).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("autofill tab %d: %w", tab, err)
	}
	reply, ok, err := protocol.DecodeReply[protocol.AutofillReply](raw)
	if err != nil {
		return nil, fmt.Errorf("autofill tab %d: %w", tab, err)
	}
	if !ok {
		return nil, fmt.Errorf("autofill tab %d: %w", tab, extension.ErrNoReceiver)
	}
	return &reply, nil
}

// autofillOnLoad runs the settle-delayed trigger off the loop.
func (s *Store) autofillOnLoad(tab extension.TabID) {
	go func() {
		log := s.log.WithTab(int(tab))
		reply, err := s.TriggerAutofill(s.ctx, tab)
		switch {
		case errors.Is(err, ErrEmptyProfile):
			log.Debug().Msg("autofill on load skipped, empty profile")
		case err != nil:
			log.Warn().Err(err).Msg("autofill on load failed")
		default:
			log.Info().Int("filled", reply.Filled).Int("skipped", reply.Skipped).
				Int("frames", reply.BroadcastFrames).Msg("autofill on load")
		}
	}()
}
