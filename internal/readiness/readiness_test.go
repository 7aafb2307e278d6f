package readiness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/doip"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/doip/doiptest"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		MinBatteryPercent:  50,
		MinFreeSpaceMB:     500,
		MaxTemperature:     70,
		CheckEngineOff:     true,
		CheckParkingBrake:  true,
		CheckNetworkStable: true,
	}
}

func readyRecord(battery uint16, memoryKB uint32) doip.ReadinessRecord {
	return doip.ReadinessRecord{
		ECUID:             "ECU",
		VehicleParked:     true,
		EngineOff:         true,
		BatteryMilliVolts: battery,
		AvailableMemoryKB: memoryKB,
		AllDoorsClosed:    true,
		SWCompatible:      true,
		ReadyForUpdate:    true,
	}
}

func TestBatteryPercent(t *testing.T) {
	cases := []struct {
		mv   uint16
		want int
	}{
		{10500, 0},   // below empty clamps to 0
		{11000, 0},   // empty
		{11500, 50},  // half
		{12000, 100}, // full
		{13200, 100}, // above full clamps to 100
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BatteryPercent(tc.mv), "mv=%d", tc.mv)
	}
}

func TestAggregateTakesMinimums(t *testing.T) {
	records := []doip.ReadinessRecord{
		readyRecord(12000, 2048*1024),
		readyRecord(11600, 900*1024),
		readyRecord(11900, 1500*1024),
	}
	records[2].EngineOff = false

	s := Aggregate(records)
	assert.Equal(t, 3, s.ECUCount)
	assert.Equal(t, 60, s.MinBatteryPercent)
	assert.Equal(t, 900, s.MinMemoryMB)
	assert.True(t, s.AllParked)
	assert.False(t, s.AllEngineOff, "one ECU reports engine running")
	assert.True(t, s.AllReady)
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil)
	assert.Equal(t, 0, s.ECUCount)
	assert.False(t, s.AllReady)
}

func TestEvaluate(t *testing.T) {
	base := Aggregate([]doip.ReadinessRecord{readyRecord(12000, 2048 * 1024)})

	t.Run("all conditions met", func(t *testing.T) {
		ready, reasons := Evaluate(base, defaultThresholds(), DefaultEnvironment())
		assert.True(t, ready)
		assert.Empty(t, reasons)
	})

	t.Run("low battery", func(t *testing.T) {
		s := Aggregate([]doip.ReadinessRecord{readyRecord(11200, 2048 * 1024)})
		ready, reasons := Evaluate(s, defaultThresholds(), DefaultEnvironment())
		assert.False(t, ready)
		require.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "battery")
	})

	t.Run("too hot", func(t *testing.T) {
		env := Environment{Temperature: 85, NetworkStable: true}
		ready, reasons := Evaluate(base, defaultThresholds(), env)
		assert.False(t, ready)
		assert.Contains(t, reasons[0], "temperature")
	})

	t.Run("unstable network", func(t *testing.T) {
		env := Environment{Temperature: 45, NetworkStable: false}
		ready, _ := Evaluate(base, defaultThresholds(), env)
		assert.False(t, ready)
	})

	t.Run("network check disabled", func(t *testing.T) {
		th := defaultThresholds()
		th.CheckNetworkStable = false
		env := Environment{Temperature: 45, NetworkStable: false}
		ready, _ := Evaluate(base, th, env)
		assert.True(t, ready)
	})

	t.Run("no records", func(t *testing.T) {
		ready, reasons := Evaluate(Aggregate(nil), defaultThresholds(), DefaultEnvironment())
		assert.False(t, ready)
		assert.NotEmpty(t, reasons)
	})
}

func TestCollect(t *testing.T) {
	zgw, err := doiptest.Start()
	require.NoError(t, err)
	t.Cleanup(zgw.Close)
	zgw.ReadinessRecords = [][]byte{
		doiptest.ReadinessRecord("ECU_BRAKE", true, true, 12000, 2048*1024, true, true, true),
		doiptest.ReadinessRecord("ECU_STEER", true, true, 11800, 1024*1024, true, true, true),
	}

	c := NewCollector("KMHL14JA5PA123456", doip.Config{Endpoint: zgw.Addr()}, defaultThresholds(), DefaultEnvironment())
	report, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Ready)
	assert.Empty(t, report.Reasons)
	assert.Equal(t, 2, report.Summary.ECUCount)
	assert.Equal(t, 80, report.Summary.MinBatteryPercent)
	assert.Equal(t, 1024, report.Summary.MinMemoryMB)
}

func TestCollectNotReady(t *testing.T) {
	zgw, err := doiptest.Start()
	require.NoError(t, err)
	t.Cleanup(zgw.Close)
	zgw.ReadinessRecords = [][]byte{
		doiptest.ReadinessRecord("ECU_BRAKE", false, false, 11200, 256*1024, false, true, false),
	}

	c := NewCollector("KMHL14JA5PA123456", doip.Config{Endpoint: zgw.Addr()}, defaultThresholds(), DefaultEnvironment())
	report, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Ready)
	assert.NotEmpty(t, report.Reasons)
}
