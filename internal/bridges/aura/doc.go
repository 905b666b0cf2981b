// Package aura connects an HK Aura speaker to the MQTT host platform.
//
// The bridge owns the speaker's controls and translates between MQTT
// messages and control operations:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│  Host platform  │   MQTT   │   Aura Bridge   │   TCP/XML
//	│  (UI, scripts)  │◄────────►│   (this pkg)    │◄─────────► Speaker
//	└─────────────────┘          └─────────────────┘
//
// # Controls
//
//   - volume: debounced number, 0-100, optionally mirrors an external player
//   - bass: debounced number, 0-100
//   - eq_mode: switch, on = "Stereo Widening", off = "Basic"
//   - mute: switch, mute-on / mute-off
//   - power: command only, {"state":"off"} sends power-off
//
// # Topics
//
//	aurabridge/command/{bridge}/{control}   host → bridge
//	aurabridge/state/{bridge}/{control}     bridge → host (retained)
//	aurabridge/health/{bridge}              bridge → host (retained)
//	aurabridge/external/{entity}            host → bridge (mirror source)
//
// Control state is restored at startup from the retained state topics, so
// the bridge keeps no storage of its own.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package aura
