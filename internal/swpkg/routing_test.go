package swpkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingTableLookup(t *testing.T) {
	table, err := ParseRoutingTable([]string{
		"1-4=192.168.1.10:13400",
		"5-8=192.168.1.11:13400",
		"9-16=192.168.1.12:13400",
	})
	require.NoError(t, err)

	tests := []struct {
		zone uint8
		want string
	}{
		{1, "192.168.1.10:13400"},
		{4, "192.168.1.10:13400"},
		{5, "192.168.1.11:13400"},
		{8, "192.168.1.11:13400"},
		{9, "192.168.1.12:13400"},
		{16, "192.168.1.12:13400"},
	}
	for _, tt := range tests {
		ep, err := table.EndpointFor(tt.zone)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ep, "zone %d", tt.zone)
	}

	_, err = table.EndpointFor(17)
	assert.Error(t, err)
	_, err = table.EndpointFor(0)
	assert.Error(t, err)
}

func TestParseRoutingTableSingleZoneEntry(t *testing.T) {
	table, err := ParseRoutingTable([]string{"3=10.0.0.1:13400"})
	require.NoError(t, err)

	ep, err := table.EndpointFor(3)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:13400", ep)
}

func TestParseRoutingTableRejectsBadEntries(t *testing.T) {
	bad := [][]string{
		{},
		{"no-equals"},
		{"1-4=not-an-endpoint"},
		{"4-1=10.0.0.1:13400"},
		{"0-4=10.0.0.1:13400"},
		{"1-4=10.0.0.1:13400", "3-6=10.0.0.2:13400"}, // overlap
	}
	for _, entries := range bad {
		_, err := ParseRoutingTable(entries)
		assert.Error(t, err, "entries %v", entries)
	}
}
