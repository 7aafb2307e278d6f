package swpkg

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Route maps a contiguous range of zone numbers to a ZGW endpoint.
type Route struct {
	Low      uint8
	High     uint8
	Endpoint string
}

// RoutingTable resolves which zonal gateway serves a given zone number.
// The table is configuration-driven; nothing about the mapping is
// hard-coded in the transfer path.
type RoutingTable struct {
	routes []Route
}

// ParseRoutingTable builds a table from entries of the form
// "low-high=host:port".
func ParseRoutingTable(entries []string) (*RoutingTable, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("swpkg: routing table is empty")
	}

	t := &RoutingTable{}
	for _, entry := range entries {
		r, err := parseRoute(entry)
		if err != nil {
			return nil, err
		}
		for _, prev := range t.routes {
			if r.Low <= prev.High && prev.Low <= r.High {
				return nil, fmt.Errorf("swpkg: zone route %q overlaps %d-%d", entry, prev.Low, prev.High)
			}
		}
		t.routes = append(t.routes, r)
	}
	return t, nil
}

// EndpointFor returns the ZGW endpoint responsible for zone n.
func (t *RoutingTable) EndpointFor(n uint8) (string, error) {
	for _, r := range t.routes {
		if n >= r.Low && n <= r.High {
			return r.Endpoint, nil
		}
	}
	return "", fmt.Errorf("swpkg: no route for zone %d", n)
}

func parseRoute(entry string) (Route, error) {
	rangePart, endpoint, ok := strings.Cut(entry, "=")
	if !ok {
		return Route{}, fmt.Errorf("swpkg: invalid zone route %q: missing '='", entry)
	}

	lowStr, highStr, ok := strings.Cut(rangePart, "-")
	if !ok {
		highStr = lowStr
	}

	low, err := strconv.ParseUint(strings.TrimSpace(lowStr), 10, 8)
	if err != nil {
		return Route{}, fmt.Errorf("swpkg: invalid zone route %q: %w", entry, err)
	}
	high, err := strconv.ParseUint(strings.TrimSpace(highStr), 10, 8)
	if err != nil {
		return Route{}, fmt.Errorf("swpkg: invalid zone route %q: %w", entry, err)
	}
	if low == 0 || low > high {
		return Route{}, fmt.Errorf("swpkg: invalid zone route %q: bad range %d-%d", entry, low, high)
	}

	endpoint = strings.TrimSpace(endpoint)
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return Route{}, fmt.Errorf("swpkg: invalid zone route %q: %w", entry, err)
	}

	return Route{Low: uint8(low), High: uint8(high), Endpoint: endpoint}, nil
}
