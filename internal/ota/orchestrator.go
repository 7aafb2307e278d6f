// Package ota runs update campaigns: download, verification and either
// zone-by-zone distribution over DoIP or a self-update of the
// gateway's inactive partition slot.
package ota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/cloud"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/doip"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/partition"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/pkg/metrics"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/swpkg"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
)

// ErrCancelled reports a user-requested campaign abort.
var ErrCancelled = errors.New("ota: campaign cancelled by user")

// Config wires the orchestrator's identity and distribution behavior.
type Config struct {
	VIN       string
	Model     string
	ModelYear uint16

	// Routes maps zone numbers to zonal gateway endpoints.
	Routes *swpkg.RoutingTable

	// DoIP holds the addressing and timeouts used for every zonal
	// gateway connection; Endpoint is filled in per zone.
	DoIP doip.Config

	// ProgressStep is the minimum percentage delta between two
	// download progress reports.
	ProgressStep int

	// DownloadDir, when set, receives a copy of each verified package
	// for post-mortem inspection.
	DownloadDir string
}

// Orchestrator executes one campaign at a time.
type Orchestrator struct {
	cfg        Config
	downloader *cloud.Client
	partitions *partition.Manager
	publish    ProgressPublisher

	mu              sync.Mutex
	machine         *FiniteStateMachine
	running         bool
	currentCampaign string
	cancelRun       context.CancelCauseFunc

	// newZoneClient is swapped in tests.
	newZoneClient func(endpoint string) *doip.Client

	logger log.Logger
}

// NewOrchestrator creates an idle orchestrator. partitions may only be
// nil when self-update campaigns are never delivered.
func NewOrchestrator(cfg Config, downloader *cloud.Client, partitions *partition.Manager, publish ProgressPublisher) *Orchestrator {
	if cfg.ProgressStep <= 0 {
		cfg.ProgressStep = 5
	}
	logger := log.WithName("ota")

	o := &Orchestrator{
		cfg:        cfg,
		downloader: downloader,
		partitions: partitions,
		publish:    publish,
		machine:    NewFiniteStateMachine(logger),
		logger:     logger,
	}
	o.newZoneClient = func(endpoint string) *doip.Client {
		zcfg := cfg.DoIP
		zcfg.Endpoint = endpoint
		return doip.NewClient(zcfg)
	}
	return o
}

// State returns the current state name.
func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.machine.Current()
}

// Run executes a campaign to completion. A second campaign while one
// is in flight is rejected.
func (o *Orchestrator) Run(ctx context.Context, c *Campaign) error {
	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("ota: campaign %s already in progress", o.currentCampaign)
	}
	o.running = true
	o.currentCampaign = c.CampaignID
	o.cancelRun = cancelRun
	if cur := o.machine.Current(); cur == StateCompleted || cur == StateFailed {
		if err := o.machine.Event(ctx, EventReset); err != nil {
			o.running = false
			o.cancelRun = nil
			o.mu.Unlock()
			return err
		}
	}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.cancelRun = nil
		o.mu.Unlock()
	}()

	if err := o.run(runCtx, c); err != nil {
		if errors.Is(context.Cause(runCtx), ErrCancelled) {
			o.abort(ctx, c)
			return fmt.Errorf("ota: campaign %s: %w", c.CampaignID, ErrCancelled)
		}
		o.fail(ctx, c, err)
		return err
	}
	return nil
}

// Cancel aborts the campaign in flight; the download stops immediately
// and distribution stops at the next zone boundary. It reports whether
// there was a campaign to cancel.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || o.cancelRun == nil {
		return false
	}
	o.logger.Info("Campaign cancel requested", "campaign", o.currentCampaign)
	o.cancelRun(ErrCancelled)
	return true
}

func (o *Orchestrator) run(ctx context.Context, c *Campaign) error {
	o.logger.Info("Campaign accepted", "campaign", c.CampaignID, "type", c.Type, "version", c.Version)

	if err := o.machine.Event(ctx, EventCheck); err != nil {
		return err
	}
	if c.Type == CampaignTypeSelf && o.partitions == nil {
		return fmt.Errorf("ota: campaign %s is a self-update but no partition manager is configured", c.CampaignID)
	}
	o.report(ctx, c, Progress{State: StateChecking, CurrentStep: "campaign accepted"})

	pkg, err := o.download(ctx, c)
	if err != nil {
		return err
	}

	if err := o.machine.Event(ctx, EventVerify); err != nil {
		return err
	}
	o.report(ctx, c, Progress{State: StateVerifying, Percentage: 100, DownloadedBytes: int64(len(pkg)), TotalBytes: int64(len(pkg)), CurrentStep: "verifying package"})
	if err := o.verifyDigest(c, pkg); err != nil {
		return err
	}
	o.keepCopy(c, pkg)

	switch c.Type {
	case CampaignTypeSelf:
		if err := o.installSelf(ctx, c, pkg); err != nil {
			return err
		}
	default:
		if err := o.distribute(ctx, c, pkg); err != nil {
			return err
		}
	}

	if err := o.machine.Event(ctx, EventComplete); err != nil {
		return err
	}
	metrics.CampaignsTotal.WithLabelValues("completed", c.Type).Inc()
	o.report(ctx, c, Progress{State: StateCompleted, Percentage: 100, CurrentStep: "campaign completed"})
	o.logger.Info("Campaign completed", "campaign", c.CampaignID)
	return nil
}

func (o *Orchestrator) download(ctx context.Context, c *Campaign) ([]byte, error) {
	if err := o.machine.Event(ctx, EventDownload); err != nil {
		return nil, err
	}

	lastReported := -1
	onProgress := func(done, total int64) {
		pct := int(done * 100 / total)
		if pct < lastReported+o.cfg.ProgressStep && done != total {
			return
		}
		lastReported = pct
		o.report(ctx, c, Progress{
			State:           StateDownloading,
			Percentage:      pct,
			DownloadedBytes: done,
			TotalBytes:      total,
			CurrentStep:     "downloading package",
		})
	}

	start := time.Now()
	pkg, err := o.downloader.Download(ctx, c.URL, c.Size, onProgress)
	if err != nil {
		return nil, err
	}
	metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	return pkg, nil
}

// keepCopy stores the verified package on disk. Failures only log; the
// copy is diagnostic, not part of the update.
func (o *Orchestrator) keepCopy(c *Campaign, pkg []byte) {
	if o.cfg.DownloadDir == "" {
		return
	}
	if err := os.MkdirAll(o.cfg.DownloadDir, 0o755); err != nil {
		o.logger.Warn("Download dir not available", "dir", o.cfg.DownloadDir, "reason", err.Error())
		return
	}
	path := filepath.Join(o.cfg.DownloadDir, c.CampaignID+".bin")
	if err := os.WriteFile(path, pkg, 0o644); err != nil {
		o.logger.Warn("Package copy not written", "path", path, "reason", err.Error())
	}
}

func (o *Orchestrator) verifyDigest(c *Campaign, pkg []byte) error {
	if c.SHA256 == "" {
		return nil
	}
	sum := sha256.Sum256(pkg)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), c.SHA256) {
		return fmt.Errorf("ota: campaign %s package digest %x does not match announced %s", c.CampaignID, sum, c.SHA256)
	}
	return nil
}

// distribute parses the vehicle package and pushes each zone container
// to its zonal gateway in directory order. Zones already transferred
// when a later zone fails stay transferred.
func (o *Orchestrator) distribute(ctx context.Context, c *Campaign, pkg []byte) error {
	meta, err := swpkg.ParseVehicleMetadata(pkg)
	if err != nil {
		return err
	}
	if err := meta.VerifyPayload(pkg); err != nil {
		return err
	}
	if err := meta.VerifyTarget(o.cfg.VIN, o.cfg.Model, o.cfg.ModelYear); err != nil {
		return err
	}

	if err := o.machine.Event(ctx, EventDistribute); err != nil {
		return err
	}

	for i, ref := range meta.Zones {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if err := o.transferZone(ctx, meta, pkg, ref); err != nil {
			o.report(ctx, c, Progress{
				State:       StateDistributing,
				Percentage:  i * 100 / len(meta.Zones),
				Zone:        ref.ZoneNumber,
				CurrentStep: fmt.Sprintf("zone %d transfer failed", ref.ZoneNumber),
				Error:       err.Error(),
			})
			return fmt.Errorf("ota: campaign %s zone %d: %w", c.CampaignID, ref.ZoneNumber, err)
		}
		o.report(ctx, c, Progress{
			State:       StateDistributing,
			Percentage:  (i + 1) * 100 / len(meta.Zones),
			Zone:        ref.ZoneNumber,
			CurrentStep: fmt.Sprintf("zone %d transferred", ref.ZoneNumber),
		})
	}

	if err := o.machine.Event(ctx, EventActivate); err != nil {
		return err
	}
	o.report(ctx, c, Progress{State: StateActivating, Percentage: 100, CurrentStep: "zones activating"})
	return nil
}

func (o *Orchestrator) transferZone(ctx context.Context, meta *swpkg.VehicleMetadata, pkg []byte, ref swpkg.ZoneRef) error {
	container, err := meta.ExtractZone(pkg, ref)
	if err != nil {
		return err
	}
	endpoint, err := o.cfg.Routes.EndpointFor(ref.ZoneNumber)
	if err != nil {
		return err
	}

	o.logger.Info("Transferring zone", "zone", ref.ZoneNumber, "endpoint", endpoint, "bytes", len(container))

	zc := o.newZoneClient(endpoint)
	if err := zc.Connect(ctx); err != nil {
		metrics.DoIPRequestsTotal.WithLabelValues("transfer", "failed").Inc()
		return err
	}
	defer zc.Close()

	if err := zc.TransferFirmware(container, nil); err != nil {
		metrics.DoIPRequestsTotal.WithLabelValues("transfer", "failed").Inc()
		return err
	}
	metrics.DoIPRequestsTotal.WithLabelValues("transfer", "success").Inc()
	return nil
}

// installSelf writes the downloaded image to the inactive slot,
// verifies it and flips the boot target. The actual reboot is left to
// the caller.
func (o *Orchestrator) installSelf(ctx context.Context, c *Campaign, image []byte) error {
	// A cancellation arriving before the install starts leaves the
	// slots untouched. Once writing begins the install runs through.
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if err := o.machine.Event(ctx, EventInstall); err != nil {
		return err
	}
	o.report(ctx, c, Progress{State: StateInstalling, CurrentStep: "writing inactive slot"})

	if err := o.partitions.BeginUpdate(); err != nil {
		return err
	}
	if err := o.partitions.WriteFirmware(image, c.VersionNumber()); err != nil {
		return err
	}
	if err := o.partitions.Verify(c.SHA256); err != nil {
		return err
	}

	if err := o.machine.Event(ctx, EventActivate); err != nil {
		return err
	}
	if err := o.partitions.ActivateInactive(); err != nil {
		return err
	}
	o.report(ctx, c, Progress{State: StateActivating, Percentage: 100, CurrentStep: "reboot required"})
	o.logger.Info("Self-update staged, reboot required", "campaign", c.CampaignID, "slot", o.partitions.Active().String())
	return nil
}

// abort handles a user cancellation: the error is reported and the
// machine returns straight to idle. Persisted partition state is left
// as it was.
func (o *Orchestrator) abort(ctx context.Context, c *Campaign) {
	o.logger.Info("Campaign cancelled", "campaign", c.CampaignID)
	metrics.CampaignsTotal.WithLabelValues("cancelled", c.Type).Inc()

	o.mu.Lock()
	if err := o.machine.Event(ctx, EventFail); err != nil {
		o.logger.Warn("State machine refused failure transition", "state", o.machine.Current(), "reason", err.Error())
	}
	if err := o.machine.Event(ctx, EventReset); err != nil {
		o.logger.Warn("State machine refused reset", "state", o.machine.Current(), "reason", err.Error())
	}
	o.mu.Unlock()

	o.report(ctx, c, Progress{State: StateFailed, CurrentStep: "campaign cancelled", Error: ErrCancelled.Error()})
}

func (o *Orchestrator) fail(ctx context.Context, c *Campaign, cause error) {
	o.logger.Error(cause, "Campaign failed", "campaign", c.CampaignID)
	metrics.CampaignsTotal.WithLabelValues("failed", c.Type).Inc()

	o.mu.Lock()
	if err := o.machine.Event(ctx, EventFail); err != nil {
		o.logger.Warn("State machine refused failure transition", "state", o.machine.Current(), "reason", err.Error())
	}
	o.mu.Unlock()

	o.report(ctx, c, Progress{State: StateFailed, CurrentStep: "campaign aborted", Error: cause.Error()})
}

func (o *Orchestrator) report(ctx context.Context, c *Campaign, p Progress) {
	if o.publish == nil {
		return
	}
	p.CampaignID = c.CampaignID
	if err := o.publish(ctx, p); err != nil {
		o.logger.Warn("Progress report not delivered", "state", p.State, "reason", err.Error())
	}
}
