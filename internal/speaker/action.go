package speaker

import (
	"fmt"
	"net"
	"sort"
	"strconv"
)

// Defaults for the device endpoint and request addressing.
const (
	// DefaultPort is the TCP port the speaker listens on for control requests.
	DefaultPort = 10025

	// DefaultZone is the zone used when a request leaves Zone empty.
	DefaultZone = "Main Zone"
)

// Catalog action names.
const (
	ActionSetVolume  = "set_system_volume"
	ActionSetBass    = "set_bass_level"
	ActionSetEQMode  = "set_EQ_mode"
	ActionHeartAlive = "heart-alive"
	ActionPowerOff   = "power-off"
	ActionMuteOff    = "mute-off"
	ActionMuteOn     = "mute-on"
)

// ParamKind describes the parameter shape an action accepts.
type ParamKind int

const (
	// KindNone actions take no parameter.
	KindNone ParamKind = iota
	// KindNumeric actions take an integer within [Min, Max].
	KindNumeric
	// KindSymbolic actions take one symbol from Options.
	KindSymbolic
)

// String returns the kind name used in logs.
func (k ParamKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNumeric:
		return "numeric"
	case KindSymbolic:
		return "symbolic"
	default:
		return "ParamKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Action is one entry of the fixed device command catalog.
type Action struct {
	Name string
	Kind ParamKind

	// Min and Max bound numeric parameters (inclusive).
	Min int
	Max int

	// Options maps accepted symbols to the label the device expects.
	Options map[string]string
}

// catalog is built once and never mutated.
var catalog = map[string]Action{
	ActionSetVolume: {Name: ActionSetVolume, Kind: KindNumeric, Min: 0, Max: 100},
	ActionSetBass:   {Name: ActionSetBass, Kind: KindNumeric, Min: 0, Max: 100},
	ActionSetEQMode: {
		Name: ActionSetEQMode,
		Kind: KindSymbolic,
		Options: map[string]string{
			"on":  "Stereo Widening",
			"off": "Basic",
		},
	},
	ActionHeartAlive: {Name: ActionHeartAlive, Kind: KindNone},
	ActionPowerOff:   {Name: ActionPowerOff, Kind: KindNone},
	ActionMuteOff:    {Name: ActionMuteOff, Kind: KindNone},
	ActionMuteOn:     {Name: ActionMuteOn, Kind: KindNone},
}

// LookupAction returns the catalog entry for name.
// The Options map of the returned Action must not be modified.
func LookupAction(name string) (Action, bool) {
	a, ok := catalog[name]
	return a, ok
}

// Actions returns the catalog action names in sorted order.
func Actions() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// para validates p against the action and returns the wire text for the
// para slot.
func (a Action) para(p Param) (string, error) {
	switch a.Kind {
	case KindNone:
		if p.kind != paramAbsent {
			return "", fmt.Errorf("%w: %s takes no parameter, got %s", ErrInvalidParameter, a.Name, p)
		}
		return "", nil

	case KindNumeric:
		if p.kind != paramInt {
			return "", fmt.Errorf("%w: %s requires an integer parameter", ErrInvalidParameter, a.Name)
		}
		if p.n < a.Min || p.n > a.Max {
			return "", fmt.Errorf("%w: %s value %d outside [%d, %d]", ErrInvalidParameter, a.Name, p.n, a.Min, a.Max)
		}
		return strconv.Itoa(p.n), nil

	case KindSymbolic:
		if p.kind != paramSymbol {
			return "", fmt.Errorf("%w: %s requires a symbol parameter", ErrInvalidParameter, a.Name)
		}
		label, ok := a.Options[p.s]
		if !ok {
			return "", fmt.Errorf("%w: %s does not accept %q", ErrInvalidParameter, a.Name, p.s)
		}
		return label, nil
	}

	return "", fmt.Errorf("%w: %s has unsupported kind %s", ErrInvalidParameter, a.Name, a.Kind)
}

type paramKind int

const (
	paramAbsent paramKind = iota
	paramInt
	paramSymbol
)

// Param is an optional action parameter: absent, an integer or a symbol.
// The zero value is the absent parameter.
type Param struct {
	kind paramKind
	n    int
	s    string
}

// NoParam is the absent parameter.
var NoParam = Param{}

// Int returns an integer parameter.
func Int(n int) Param {
	return Param{kind: paramInt, n: n}
}

// Symbol returns a symbolic parameter such as "on" or "off".
func Symbol(s string) Param {
	return Param{kind: paramSymbol, s: s}
}

// IsZero reports whether the parameter is absent.
func (p Param) IsZero() bool {
	return p.kind == paramAbsent
}

func (p Param) String() string {
	switch p.kind {
	case paramInt:
		return strconv.Itoa(p.n)
	case paramSymbol:
		return p.s
	default:
		return ""
	}
}

// Request is one command addressed to the device.
type Request struct {
	Action string
	Zone   string // empty means DefaultZone
	Param  Param
}

func (r Request) zone() string {
	if r.Zone == "" {
		return DefaultZone
	}
	return r.Zone
}

// Endpoint is the device network address.
type Endpoint struct {
	Host string
	Port int // 0 means DefaultPort
}

// Address returns host:port suitable for net.Dial.
func (e Endpoint) Address() string {
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}
