// Package statekey is the only place that knows how record-store keys are laid out.
//
// State markers live under "state/<item>.<ext>[.<ord>]" where <item> is either a
// hostname ("<user>[-<sub>]") or a bare IPv4 literal. User credential files live
// under "users/<user>". Basenames are always lower-cased on write.
package statekey

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	StateFolder = "state/"
	UsersFolder = "users/"
)

// Ext is the marker type encoded in a state key's extension.
type Ext string

const (
	Heartbeat Ext = "heartbeat"
	Hold      Ext = "hold"
	Expired   Ext = "expired"
	Error     Ext = "error"
	Lock      Ext = "lock"
)

// legacyHeartbeat is the extension older deployments wrote for heartbeats.
// It decodes as Heartbeat and is never written.
const legacyHeartbeat Ext = "ping"

// ErrInvalidKey is returned when a key does not follow the state or user grammar.
var ErrInvalidKey = errors.New("statekey: invalid key")

// HostPattern matches "<user>[-<sub>]". It is shared with the DNS record grammar.
const HostPattern = `(?P<host>(?P<user>[a-zA-Z0-9]+)(?:-(?P<sub>[a-zA-Z0-9]+))?)`

const ipPattern = `(?P<ip>[0-9]+\.[0-9]+\.[0-9]+\.[0-9]+)`

var (
	stateRe = regexp.MustCompile(`^` + regexp.QuoteMeta(StateFolder) +
		`(?P<item>` + HostPattern + `|` + ipPattern + `)` +
		`\.(?P<ext>[a-z]+)(?:\.(?P<ord>[0-9]+))?$`)
	userRe = regexp.MustCompile(`^` + regexp.QuoteMeta(UsersFolder) + `([a-zA-Z0-9]+)$`)
	hostRe = regexp.MustCompile(`^` + HostPattern + `$`)
	ipRe   = regexp.MustCompile(`^` + ipPattern + `$`)
)

// Key is a decoded state key.
type Key struct {
	Item string // host or IP, whichever matched
	Host string
	User string
	Sub  string
	IP   string
	Ext  Ext
	Ord  int // zero when the key carries no ordinal
}

// String encodes the key back to its canonical form.
func (k Key) String() string {
	if k.Ord > 0 {
		return StateKeyOrd(k.Item, k.Ext, k.Ord)
	}
	return StateKey(k.Item, k.Ext)
}

// StateKey builds "state/<name>.<ext>".
func StateKey(name string, ext Ext) string {
	return StateFolder + strings.ToLower(name) + "." + string(ext)
}

// StateKeyOrd builds "state/<name>.<ext>.<ord>".
func StateKeyOrd(name string, ext Ext, ord int) string {
	return StateKey(name, ext) + "." + strconv.Itoa(ord)
}

// LegacyHeartbeatKey builds the heartbeat key older deployments wrote for name.
func LegacyHeartbeatKey(name string) string {
	return StateKey(name, legacyHeartbeat)
}

// UserKey builds "users/<user>".
func UserKey(user string) string {
	return UsersFolder + strings.ToLower(user)
}

// Parse decodes a state key.
func Parse(key string) (Key, error) {
	m := stateRe.FindStringSubmatch(key)
	if m == nil {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	group := func(name string) string {
		return m[stateRe.SubexpIndex(name)]
	}

	ext, err := parseExt(group("ext"))
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q", err, key)
	}

	k := Key{
		Item: group("item"),
		Host: group("host"),
		User: group("user"),
		Sub:  group("sub"),
		IP:   group("ip"),
		Ext:  ext,
	}
	if s := group("ord"); s != "" {
		ord, err := strconv.Atoi(s)
		if err != nil {
			return Key{}, fmt.Errorf("%w: ordinal %q", ErrInvalidKey, s)
		}
		k.Ord = ord
	}
	return k, nil
}

func parseExt(s string) (Ext, error) {
	switch Ext(s) {
	case Heartbeat, Hold, Expired, Error, Lock:
		return Ext(s), nil
	}
	if Ext(s) == legacyHeartbeat {
		return Heartbeat, nil
	}
	return "", fmt.Errorf("%w: unknown extension %q", ErrInvalidKey, s)
}

// ParseUser decodes a user key and returns the user name.
func ParseUser(key string) (string, error) {
	m := userRe.FindStringSubmatch(key)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return m[1], nil
}

// ParseHost splits a hostname into its user and optional sub part.
func ParseHost(host string) (user, sub string, ok bool) {
	m := hostRe.FindStringSubmatch(host)
	if m == nil {
		return "", "", false
	}
	return m[hostRe.SubexpIndex("user")], m[hostRe.SubexpIndex("sub")], true
}

// IsIPv4Literal reports whether s is a dotted-quad as accepted in state keys.
func IsIPv4Literal(s string) bool {
	return ipRe.MatchString(s)
}
