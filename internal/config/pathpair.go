package config

import (
	"strconv"
	"strings"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

// PathPair is a host:guest directory mapping, one entry of a sandbox's
// declared mapped_dirs. Grounded on monocore/lib/config/path_pair.rs,
// generalized from its Same/Distinct enum into a two-field struct: Go has
// no sum-type shorthand for "same on both sides" worth preserving, and
// ParsePathPair already collapses that case into Host == Guest.
type PathPair struct {
	Host  string
	Guest string
}

// ParsePathPair accepts "path" (same on both sides) or "host:guest".
func ParsePathPair(s string) (PathPair, error) {
	if s == "" {
		return PathPair{}, errs.New(errs.CodeInvalidArgument, "empty path pair").WithComponent("config", "parse_path_pair")
	}
	if !strings.Contains(s, ":") {
		return PathPair{Host: s, Guest: s}, nil
	}
	host, guest, _ := strings.Cut(s, ":")
	if host == "" || guest == "" {
		return PathPair{}, errs.New(errs.CodeInvalidArgument, "path pair has an empty side").
			WithComponent("config", "parse_path_pair").WithDetail("value", s)
	}
	return PathPair{Host: host, Guest: guest}, nil
}

func (p PathPair) String() string {
	if p.Host == p.Guest {
		return p.Host
	}
	return p.Host + ":" + p.Guest
}

// PortPair is a host:guest TCP port mapping, one entry of a sandbox's
// declared port_map. Grounded on monocore/lib/config/port_pair.rs.
type PortPair struct {
	Host  int
	Guest int
}

// ParsePortPair accepts "port" (same on both sides) or "host:guest".
func ParsePortPair(s string) (PortPair, error) {
	if s == "" {
		return PortPair{}, errs.New(errs.CodeInvalidArgument, "empty port pair").WithComponent("config", "parse_port_pair")
	}
	hostStr, guestStr, hasGuest := strings.Cut(s, ":")
	if !hasGuest {
		guestStr = hostStr
	}
	host, err := parsePort(hostStr)
	if err != nil {
		return PortPair{}, errs.Wrap(errs.CodeInvalidArgument, err, "parse host port").
			WithComponent("config", "parse_port_pair").WithDetail("value", s)
	}
	guest, err := parsePort(guestStr)
	if err != nil {
		return PortPair{}, errs.Wrap(errs.CodeInvalidArgument, err, "parse guest port").
			WithComponent("config", "parse_port_pair").WithDetail("value", s)
	}
	return PortPair{Host: host, Guest: guest}, nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errs.New(errs.CodeInvalidArgument, "port is not numeric").WithDetail("value", s)
	}
	if n <= 0 || n > 65535 {
		return 0, errs.New(errs.CodeInvalidArgument, "port out of range").WithDetail("value", s)
	}
	return n, nil
}

func (p PortPair) String() string {
	if p.Host == p.Guest {
		return strconv.Itoa(p.Host)
	}
	return strconv.Itoa(p.Host) + ":" + strconv.Itoa(p.Guest)
}
