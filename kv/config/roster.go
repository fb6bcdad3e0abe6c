package config

import (
	"io/ioutil"
	"net"
	"strconv"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pingcap/errors"
)

const (
	// DefaultGroup is the roster group used when none is named.
	DefaultGroup = "self"
	// devicesKey is reserved in a roster file for the alias table.
	devicesKey = "devices"
)

// builtinDevices resolves the host aliases a roster entry may use instead of an address.
var builtinDevices = map[string]string{
	"self": "127.0.0.1",
}

// ServerAddr identifies one node in a roster. Two addresses are the same node when host and port match.
type ServerAddr struct {
	// Device is the alias the entry was written with, or the host itself.
	Device string
	Host   string
	Port   string
}

func (a ServerAddr) String() string {
	return net.JoinHostPort(a.Host, a.Port)
}

// IsLocal reports whether the entry names this machine.
func (a ServerAddr) IsLocal() bool {
	if a.Device == DefaultGroup {
		return true
	}
	ip := net.ParseIP(a.Host)
	return (ip != nil && ip.IsLoopback()) || a.Host == "localhost"
}

// ParseServerAddr parses a `host:port` roster entry. The host may be a device alias from devices.
func ParseServerAddr(entry string, devices map[string]string) (ServerAddr, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(entry))
	if err != nil {
		return ServerAddr{}, errors.Annotatef(err, "invalid roster entry %q", entry)
	}
	if host == "" {
		return ServerAddr{}, errors.Errorf("invalid roster entry %q: empty host", entry)
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		return ServerAddr{}, errors.Errorf("invalid roster entry %q: bad port", entry)
	}
	addr := ServerAddr{Device: host, Host: host, Port: port}
	if ip, ok := devices[host]; ok {
		addr.Host = ip
	} else if ip, ok := builtinDevices[host]; ok {
		addr.Host = ip
	}
	return addr, nil
}

// LoadRoster reads the named group from a YAML roster file. The file maps group names to lists of `host:port`
// entries, and may carry a `devices` map of host aliases:
//
//	devices:
//	  mac: 192.168.1.186
//	self:
//	  - self:6379
//	  - self:6380
func LoadRoster(path, group string) ([]ServerAddr, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot read roster %s", path)
	}
	return ParseRoster(data, group)
}

func ParseRoster(data []byte, group string) ([]ServerAddr, error) {
	if group == "" {
		group = DefaultGroup
	}
	if group == devicesKey {
		return nil, errors.Errorf("%q is not a server group", group)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Annotate(err, "malformed roster")
	}

	devices := make(map[string]string)
	if raw, ok := doc[devicesKey]; ok {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, errors.New("roster devices must be a map of alias to address")
		}
		for alias, ip := range m {
			s, ok := ip.(string)
			if !ok {
				return nil, errors.Errorf("roster device %q has a non-string address", alias)
			}
			devices[alias] = s
		}
	}

	raw, ok := doc[group]
	if !ok {
		return nil, errors.Errorf("group %q not found in roster", group)
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Errorf("group %q must be a list of host:port entries", group)
	}

	addrs := make([]ServerAddr, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		s, ok := e.(string)
		if !ok {
			return nil, errors.Errorf("group %q has a non-string entry %v", group, e)
		}
		addr, err := ParseServerAddr(s, devices)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[addr.String()]; dup {
			return nil, errors.Errorf("group %q lists %s twice", group, addr)
		}
		seen[addr.String()] = struct{}{}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, errors.Errorf("group %q is empty", group)
	}
	return addrs, nil
}
