// Package speaker implements the command client for Harman Kardon Aura-class
// network speakers.
//
// The speaker accepts one request per TCP connection. A request is a small
// XML document rendered from a template with three slots (action, zone,
// para), optionally wrapped in an HTTP/1.1 POST, written to the device and
// followed by a short, optional wait for a reply.
//
// # Action catalog
//
// Only actions from a fixed catalog are sent:
//
//   - set_system_volume, set_bass_level: integer 0-100
//   - set_EQ_mode: "on" / "off" (sent as "Stereo Widening" / "Basic")
//   - heart-alive, power-off, mute-on, mute-off: no parameter
//
// Unknown actions and bad parameters fail with ErrUnknownAction or
// ErrInvalidParameter before any network I/O.
//
// # Delivery
//
// The device never acknowledges reliably. A missing reply is not an error.
// Transport failures (timeout, refused, reset, name resolution) are logged,
// recorded through the optional Recorder and returned as *TransportError so
// callers can leave their state untouched. They are never retried.
//
// # Thread Safety
//
// Client is safe for concurrent use. Each Send opens its own connection.
package speaker
