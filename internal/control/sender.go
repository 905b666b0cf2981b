package control

import (
	"context"

	"github.com/nerrad567/aura-bridge/internal/speaker"
)

// NumberAction returns a SendFunc that sends a numeric catalog action.
func NumberAction(s speaker.Sender, action, zone string) SendFunc {
	return func(ctx context.Context, value int) error {
		return s.Send(ctx, speaker.Request{Action: action, Zone: zone, Param: speaker.Int(value)})
	}
}

// SymbolSwitch returns a SwitchFunc that sends one action with the
// symbol "on" or "off" (e.g. set_EQ_mode).
func SymbolSwitch(s speaker.Sender, action, zone string) SwitchFunc {
	return func(ctx context.Context, on bool) error {
		sym := "off"
		if on {
			sym = "on"
		}
		return s.Send(ctx, speaker.Request{Action: action, Zone: zone, Param: speaker.Symbol(sym)})
	}
}

// ActionPairSwitch returns a SwitchFunc that sends separate parameterless
// actions for on and off (e.g. mute-on / mute-off).
func ActionPairSwitch(s speaker.Sender, onAction, offAction, zone string) SwitchFunc {
	return func(ctx context.Context, on bool) error {
		action := offAction
		if on {
			action = onAction
		}
		return s.Send(ctx, speaker.Request{Action: action, Zone: zone})
	}
}
