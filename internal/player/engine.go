package player

import (
	"fmt"
	"strings"

	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/element"
)

// ElementFactory returns the media element factory for the configured engine
func ElementFactory(p *config.PlayerConfig) (element.Factory, error) {
	switch strings.ToLower(p.Engine) {
	case "simulated":
		return element.SimulatedFactory(element.SimulatedConfig{
			Duration:     p.SimulatedDuration,
			TickInterval: p.SimulatedTick,
		}), nil
	case "mpv":
		return element.MPVFactory(element.MPVConfig{
			Binary:    p.MPVBinary,
			SocketDir: p.MPVSocketDir,
			ExtraArgs: p.MPVArgs,
		}), nil
	default:
		return nil, fmt.Errorf("unknown player engine: %q", p.Engine)
	}
}
