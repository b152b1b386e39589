package tunnel

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ServerConfig is the subset of a persisted server record needed to run it.
type ServerConfig struct {
	ID             int64
	Name           string
	BindAddr       string
	BindTunnels    string
	ControlPort    int
	PortRangeStart int
	PortRangeEnd   int
	Secret         string
}

// ClientConfig is the subset of a persisted client record needed to run it.
type ClientConfig struct {
	ID        int64
	Name      string
	LocalHost string
	LocalPort int
	// RemoteServer is a host, optionally with ":port" to override the
	// control port.
	RemoteServer string
	RemotePort   int
	Secret       string
}

// Spec validates the configuration.
func (c ServerConfig) Spec() (ServerSpec, error) {
	bind, err := parseIP("bind_addr", c.BindAddr)
	if err != nil {
		return ServerSpec{}, err
	}
	tunnels, err := parseIP("bind_tunnels", c.BindTunnels)
	if err != nil {
		return ServerSpec{}, err
	}

	control := c.ControlPort
	if control == 0 {
		control = DefaultControlPort
	}
	if err := checkPort("control_port", control, 1); err != nil {
		return ServerSpec{}, err
	}
	if err := checkPort("port_range_start", c.PortRangeStart, 1); err != nil {
		return ServerSpec{}, err
	}
	if err := checkPort("port_range_end", c.PortRangeEnd, 1); err != nil {
		return ServerSpec{}, err
	}
	if c.PortRangeStart > c.PortRangeEnd {
		return ServerSpec{}, &ConfigError{
			Field: "port_range",
			Err:   fmt.Errorf("start %d is greater than end %d", c.PortRangeStart, c.PortRangeEnd),
		}
	}

	return ServerSpec{
		BindAddr:    bind,
		BindTunnels: tunnels,
		ControlPort: control,
		MinPort:     c.PortRangeStart,
		MaxPort:     c.PortRangeEnd,
		Secret:      c.Secret,
	}, nil
}

// Spec validates the configuration.
func (c ClientConfig) Spec() (ClientSpec, error) {
	local := strings.TrimSpace(c.LocalHost)
	if !validHost(local) {
		return ClientSpec{}, &ConfigError{Field: "local_host", Err: fmt.Errorf("%q is not a host name or IP address", c.LocalHost)}
	}
	if err := checkPort("local_port", c.LocalPort, 1); err != nil {
		return ClientSpec{}, err
	}
	if err := checkPort("remote_port", c.RemotePort, 0); err != nil {
		return ClientSpec{}, err
	}

	remote, control, err := splitRemote(strings.TrimSpace(c.RemoteServer))
	if err != nil {
		return ClientSpec{}, err
	}

	return ClientSpec{
		LocalHost:    local,
		LocalPort:    c.LocalPort,
		RemoteServer: remote,
		ControlPort:  control,
		RemotePort:   c.RemotePort,
		Secret:       c.Secret,
	}, nil
}

func parseIP(field, s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, &ConfigError{Field: field, Err: err}
	}
	return addr, nil
}

func checkPort(field string, port, min int) error {
	if port < min || port > 65535 {
		return &ConfigError{Field: field, Err: fmt.Errorf("port %d out of range %d-65535", port, min)}
	}
	return nil
}

func splitRemote(s string) (string, int, error) {
	if s == "" {
		return "", 0, &ConfigError{Field: "remote_server", Err: errors.New("must not be empty")}
	}
	// A bare IPv6 literal contains colons but no port.
	if _, err := netip.ParseAddr(s); err == nil {
		return s, DefaultControlPort, nil
	}

	host, control := s, DefaultControlPort
	if h, p, err := net.SplitHostPort(s); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, &ConfigError{Field: "remote_server", Err: fmt.Errorf("bad port %q", p)}
		}
		if err := checkPort("remote_server", n, 1); err != nil {
			return "", 0, err
		}
		host, control = h, n
	}
	if !validHost(host) {
		return "", 0, &ConfigError{Field: "remote_server", Err: fmt.Errorf("%q is not a host name or IP address", host)}
	}
	return host, control, nil
}

func validHost(h string) bool {
	if h == "" {
		return false
	}
	if _, err := netip.ParseAddr(h); err == nil {
		return true
	}
	if len(h) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(h, "."), ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}
