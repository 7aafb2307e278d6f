package ota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/cloud"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/doip/doiptest"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/partition"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/swpkg"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/swpkg/swpkgtest"
)

const (
	testVIN   = "KMHL14JA5PA123456"
	testModel = "IONIQ6"
)

// progressRecorder captures every published progress report.
type progressRecorder struct {
	mu      sync.Mutex
	reports []Progress
}

func (r *progressRecorder) publish(_ context.Context, p Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, p)
	return nil
}

func (r *progressRecorder) all() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.reports...)
}

func (r *progressRecorder) last() Progress {
	all := r.all()
	return all[len(all)-1]
}

// serveBlob exposes blob with Range support on a test server.
func serveBlob(t *testing.T, blob []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
			return
		}
		rng := r.Header.Get("Range")
		if rng == "" {
			_, _ = w.Write(blob)
			return
		}
		var start, end int
		_, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end)
		require.NoError(t, err)
		if end >= len(blob) {
			end = len(blob) - 1
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(blob[start : end+1])
	}))
	t.Cleanup(srv.Close)
	return srv
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func twoZoneSpec() swpkgtest.PackageSpec {
	return swpkgtest.PackageSpec{
		VIN:           testVIN,
		Model:         testModel,
		ModelYear:     2026,
		MasterVersion: 0x02010000,
		MasterName:    "2.1.0",
		Zones: []swpkgtest.ZoneSpec{
			{
				ID: "ZONE_FRONT", Name: "Front Zone", Number: 1,
				ECUs: []swpkgtest.ECUSpec{
					{ID: "ECU_BRAKE", Version: 2, VersionString: "2.0.0", Firmware: []byte("brake firmware image")},
					{ID: "ECU_STEER", Version: 3, VersionString: "3.0.0", Firmware: []byte("steering firmware image")},
				},
			},
			{
				ID: "ZONE_REAR", Name: "Rear Zone", Number: 5,
				ECUs: []swpkgtest.ECUSpec{
					{ID: "ECU_LIGHT", Version: 1, VersionString: "1.0.0", Firmware: []byte("light firmware image")},
				},
			},
		},
	}
}

// newVehicleOrchestrator builds an orchestrator whose campaigns carry
// absolute package URLs, so the downloader's base URL is never used.
func newVehicleOrchestrator(t *testing.T, routes []string, rec *progressRecorder) *Orchestrator {
	t.Helper()
	table, err := swpkg.ParseRoutingTable(routes)
	require.NoError(t, err)

	downloader, err := cloud.NewClient(cloud.Config{
		BaseURL:    "http://unused.invalid",
		ChunkSize:  4096,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	return NewOrchestrator(Config{
		VIN:          testVIN,
		Model:        testModel,
		ModelYear:    2026,
		Routes:       table,
		ProgressStep: 5,
		DownloadDir:  t.TempDir(),
	}, downloader, nil, rec.publish)
}

func TestVehicleCampaignEndToEnd(t *testing.T) {
	spec := twoZoneSpec()
	pkg := swpkgtest.Package(spec)
	srv := serveBlob(t, pkg)

	zgwFront, err := doiptest.Start()
	require.NoError(t, err)
	t.Cleanup(zgwFront.Close)
	zgwRear, err := doiptest.Start()
	require.NoError(t, err)
	t.Cleanup(zgwRear.Close)

	rec := &progressRecorder{}
	o := newVehicleOrchestrator(t, []string{
		"1-4=" + zgwFront.Addr(),
		"5-8=" + zgwRear.Addr(),
	}, rec)

	campaign := &Campaign{
		CampaignID: "c-e2e",
		Type:       CampaignTypeVehicle,
		URL:        srv.URL + "/full_package.bin",
		Size:       int64(len(pkg)),
		SHA256:     digestOf(pkg),
		Version:    "2.1.0",
	}
	require.NoError(t, o.Run(context.Background(), campaign))
	assert.Equal(t, StateCompleted, o.State())

	// Each zonal gateway received exactly its container bytes.
	assert.Equal(t, swpkgtest.ZoneContainer(spec.Zones[0]), zgwFront.Received())
	assert.Equal(t, swpkgtest.ZoneContainer(spec.Zones[1]), zgwRear.Received())

	// A verified copy of the package was kept on disk.
	kept, err := os.ReadFile(filepath.Join(o.cfg.DownloadDir, "c-e2e.bin"))
	require.NoError(t, err)
	assert.Equal(t, pkg, kept)

	// Distribution progress hit 50% after zone 1 and 100% after zone 5.
	var distribution []Progress
	for _, p := range rec.all() {
		assert.Equal(t, "c-e2e", p.CampaignID)
		if p.State == StateDistributing {
			distribution = append(distribution, p)
		}
	}
	require.Len(t, distribution, 2)
	assert.Equal(t, 50, distribution[0].Percentage)
	assert.Equal(t, uint8(1), distribution[0].Zone)
	assert.Equal(t, 100, distribution[1].Percentage)
	assert.Equal(t, uint8(5), distribution[1].Zone)

	assert.Equal(t, StateCompleted, rec.last().State)
}

func TestVehicleCampaignZoneFailureKeepsEarlierZones(t *testing.T) {
	spec := twoZoneSpec()
	pkg := swpkgtest.Package(spec)
	srv := serveBlob(t, pkg)

	zgwFront, err := doiptest.Start()
	require.NoError(t, err)
	t.Cleanup(zgwFront.Close)
	zgwRear, err := doiptest.Start()
	require.NoError(t, err)
	t.Cleanup(zgwRear.Close)
	zgwRear.FailTransferAt = 1

	rec := &progressRecorder{}
	o := newVehicleOrchestrator(t, []string{
		"1-4=" + zgwFront.Addr(),
		"5-8=" + zgwRear.Addr(),
	}, rec)

	campaign := &Campaign{
		CampaignID: "c-zone-fail",
		URL:        srv.URL + "/full_package.bin",
		Size:       int64(len(pkg)),
		SHA256:     digestOf(pkg),
	}
	err = o.Run(context.Background(), campaign)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zone 5")
	assert.Equal(t, StateFailed, o.State())

	// Zone 1 was fully transferred before zone 5 failed and stays so.
	assert.Equal(t, swpkgtest.ZoneContainer(spec.Zones[0]), zgwFront.Received())

	// The failure report names the failing zone.
	var failure *Progress
	for _, p := range rec.all() {
		if p.State == StateDistributing && p.Error != "" {
			failure = &p
			break
		}
	}
	require.NotNil(t, failure)
	assert.Equal(t, uint8(5), failure.Zone)

	assert.Equal(t, StateFailed, rec.last().State)
	assert.NotEmpty(t, rec.last().Error)
}

func TestVehicleCampaignRejectsWrongVehicle(t *testing.T) {
	spec := twoZoneSpec()
	spec.VIN = "WVWZZZ1JZXW000001" // package built for another vehicle
	pkg := swpkgtest.Package(spec)
	srv := serveBlob(t, pkg)

	rec := &progressRecorder{}
	o := newVehicleOrchestrator(t, []string{"1-16=127.0.0.1:13400"}, rec)

	err := o.Run(context.Background(), &Campaign{
		CampaignID: "c-wrong-vin",
		URL:        srv.URL + "/full_package.bin",
		Size:       int64(len(pkg)),
		SHA256:     digestOf(pkg),
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, o.State())
}

func TestVehicleCampaignRejectsWrongModelYear(t *testing.T) {
	spec := twoZoneSpec()
	spec.ModelYear = 2024 // package built for an older model year
	pkg := swpkgtest.Package(spec)
	srv := serveBlob(t, pkg)

	rec := &progressRecorder{}
	o := newVehicleOrchestrator(t, []string{"1-16=127.0.0.1:13400"}, rec)

	err := o.Run(context.Background(), &Campaign{
		CampaignID: "c-wrong-year",
		URL:        srv.URL + "/full_package.bin",
		Size:       int64(len(pkg)),
		SHA256:     digestOf(pkg),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model year")
	assert.Equal(t, StateFailed, o.State())
}

func TestVehicleCampaignRejectsWrongDigest(t *testing.T) {
	pkg := swpkgtest.Package(twoZoneSpec())
	srv := serveBlob(t, pkg)

	rec := &progressRecorder{}
	o := newVehicleOrchestrator(t, []string{"1-16=127.0.0.1:13400"}, rec)

	err := o.Run(context.Background(), &Campaign{
		CampaignID: "c-bad-digest",
		URL:        srv.URL + "/full_package.bin",
		Size:       int64(len(pkg)),
		SHA256:     digestOf([]byte("something else")),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest")
	assert.Equal(t, StateFailed, o.State())
}

func TestSelfUpdateCampaign(t *testing.T) {
	image := make([]byte, 256*1024+99)
	for i := range image {
		image[i] = byte(i * 31)
	}
	srv := serveBlob(t, image)

	downloader, err := cloud.NewClient(cloud.Config{
		BaseURL:   "http://unused.invalid",
		ChunkSize: 64 * 1024,
	})
	require.NoError(t, err)

	dir := t.TempDir()
	partitions, err := partition.NewManager(partition.Config{
		DataDir: dir,
		SlotPaths: [2]string{
			filepath.Join(dir, "slot_a.img"),
			filepath.Join(dir, "slot_b.img"),
		},
	})
	require.NoError(t, err)

	rec := &progressRecorder{}
	o := NewOrchestrator(Config{VIN: testVIN, Model: testModel}, downloader, partitions, rec.publish)

	campaign := &Campaign{
		CampaignID: "c-self",
		Type:       CampaignTypeSelf,
		URL:        srv.URL + "/vmg_firmware.bin",
		Size:       int64(len(image)),
		SHA256:     digestOf(image),
		Version:    "2.1.0",
	}
	require.NoError(t, o.Run(context.Background(), campaign))
	assert.Equal(t, StateCompleted, o.State())

	// The inactive slot became the boot target with the new image.
	assert.Equal(t, partition.SlotB, partitions.Active())
	meta := partitions.Metadata(partition.SlotB)
	assert.Equal(t, partition.StateActive, meta.State)
	assert.Equal(t, uint32(0x02010000), meta.FirmwareVersion)
	assert.Equal(t, uint32(len(image)), meta.TotalSize)

	// The final activation report signals the pending reboot.
	var activation *Progress
	for _, p := range rec.all() {
		if p.State == StateActivating {
			p := p
			activation = &p
		}
	}
	require.NotNil(t, activation)
	assert.Equal(t, "reboot required", activation.CurrentStep)
}

func TestSelfUpdateWithoutPartitionManagerFails(t *testing.T) {
	downloader, err := cloud.NewClient(cloud.Config{BaseURL: "http://unused.invalid"})
	require.NoError(t, err)

	o := NewOrchestrator(Config{VIN: testVIN}, downloader, nil, nil)
	err = o.Run(context.Background(), &Campaign{
		CampaignID: "c-no-slots",
		Type:       CampaignTypeSelf,
		URL:        "http://unused.invalid/fw.bin",
		Size:       10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partition manager")
}

func TestSecondCampaignWhileRunningIsRejected(t *testing.T) {
	pkg := swpkgtest.Package(twoZoneSpec())

	blocked := make(chan struct{})
	release := make(chan struct{})
	var blockOnce, releaseOnce sync.Once
	releaseDownload := func() { releaseOnce.Do(func() { close(release) }) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			blockOnce.Do(func() { close(blocked) })
			<-release
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(pkg)))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(releaseDownload)

	rec := &progressRecorder{}
	o := newVehicleOrchestrator(t, []string{"1-16=127.0.0.1:13400"}, rec)

	first := &Campaign{CampaignID: "c-first", URL: srv.URL + "/p.bin", Size: int64(len(pkg))}
	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), first) }()

	<-blocked
	err := o.Run(context.Background(), &Campaign{CampaignID: "c-second", URL: srv.URL + "/p.bin", Size: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c-first")

	releaseDownload()
	<-done
}

func TestCancelAbortsCampaignAndReturnsToIdle(t *testing.T) {
	pkg := swpkgtest.Package(twoZoneSpec())

	blocked := make(chan struct{})
	release := make(chan struct{})
	var blockOnce, releaseOnce sync.Once
	releaseDownload := func() { releaseOnce.Do(func() { close(release) }) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			blockOnce.Do(func() { close(blocked) })
			<-release
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(pkg)))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(releaseDownload)

	rec := &progressRecorder{}
	o := newVehicleOrchestrator(t, []string{"1-16=127.0.0.1:13400"}, rec)

	done := make(chan error, 1)
	go func() {
		done <- o.Run(context.Background(), &Campaign{
			CampaignID: "c-cancel", URL: srv.URL + "/p.bin", Size: int64(len(pkg)),
		})
	}()

	<-blocked
	require.True(t, o.Cancel())

	err := <-done
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateIdle, o.State())

	// The cancellation was reported as the campaign's final error.
	last := rec.last()
	assert.Equal(t, StateFailed, last.State)
	assert.Contains(t, last.Error, "cancelled by user")

	// With nothing in flight there is nothing to cancel.
	assert.False(t, o.Cancel())
}

func TestCancelWhenIdleIsANoOp(t *testing.T) {
	rec := &progressRecorder{}
	o := newVehicleOrchestrator(t, []string{"1-16=127.0.0.1:13400"}, rec)

	assert.False(t, o.Cancel())
	assert.Equal(t, StateIdle, o.State())
	assert.Empty(t, rec.all())
}
