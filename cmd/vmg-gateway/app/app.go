// Package app assembles the vmg-gateway command.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/cmd/vmg-gateway/app/options"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/cloud"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/doip"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/gateway"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/ota"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/partition"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/readiness"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/swpkg"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/vci"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/vehiclestate"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/mqtt"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/mqtt/topic"
)

const commandDesc = `The vehicle mobile gateway bridges the OEM backend and the in-vehicle
network: it receives OTA campaigns and commands over MQTT, distributes
firmware to zonal gateways over DoIP, manages its own A/B partition
slots and reports configuration, readiness and liveness upstream.`

// NewCommand builds the root cobra command.
func NewCommand() *cobra.Command {
	opts := options.NewGatewayOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          "vmg-gateway",
		Short:        "Run the vehicle mobile gateway",
		Long:         commandDesc,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, configFile, opts); err != nil {
				return err
			}
			if err := opts.Complete(); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(opts)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file.")
	opts.AddFlags(cmd.Flags())
	return cmd
}

// loadConfig layers the configuration: defaults, config file, VMG_*
// environment variables, then explicit flags.
func loadConfig(cmd *cobra.Command, configFile string, opts *options.GatewayOptions) error {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("VMG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return v.Unmarshal(opts)
}

func run(opts *options.GatewayOptions) error {
	log.Init(opts.Log)
	logger := log.WithName("vmg-gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vin := opts.Vehicle.VIN
	topics := topic.NewBuilder(opts.Mqtt.TopicRoot)

	mqttCfg := opts.Mqtt.ToClientConfig()
	mqttCfg.WillTopic = topics.Heartbeat(vin)
	mqttCfg.WillQoS = 1
	if will, err := json.Marshal(map[string]string{"device_id": vin, "status": "offline"}); err == nil {
		mqttCfg.WillPayload = will
	}

	broker, err := mqtt.NewClient(mqttCfg)
	if err != nil {
		return fmt.Errorf("create mqtt client: %w", err)
	}

	backend, err := cloud.NewClient(cloud.Config{
		BaseURL:            opts.Cloud.BaseURL,
		Timeout:            opts.Cloud.Timeout,
		InsecureSkipVerify: opts.Cloud.InsecureSkipVerify,
		ChunkSize:          opts.Ota.ChunkSize,
		MaxRetries:         opts.Ota.MaxRetries,
		RetryDelay:         opts.Ota.RetryDelay,
	})
	if err != nil {
		return err
	}

	slots, err := partition.NewManager(partition.Config{
		DataDir:         opts.Partition.DataDir,
		SlotPaths:       [2]string{opts.Partition.SlotA, opts.Partition.SlotB},
		MaxBootAttempts: opts.Partition.MaxBootAttempts,
	})
	if err != nil {
		return err
	}

	routes, err := swpkg.ParseRoutingTable(opts.Doip.Routes)
	if err != nil {
		return err
	}

	doipCfg := doip.Config{
		SourceAddr:        opts.Doip.SourceAddr,
		TargetAddr:        opts.Doip.TargetAddr,
		ConnectTimeout:    opts.Doip.ConnectTimeout,
		ActivationTimeout: opts.Doip.ActivationTimeout,
		DiagTimeout:       opts.Doip.DiagTimeout,
	}

	progress := func(ctx context.Context, p ota.Progress) error {
		payload, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return broker.Publish(ctx, topics.Progress(vin), 1, false, payload)
	}

	orchestrator := ota.NewOrchestrator(ota.Config{
		VIN:          vin,
		Model:        opts.Vehicle.Model,
		ModelYear:    opts.Vehicle.ModelYear,
		Routes:       routes,
		DoIP:         doipCfg,
		ProgressStep: opts.Ota.ProgressStep,
		DownloadDir:  opts.Ota.DownloadDir,
	}, backend, slots, progress)

	collectorCfg := doipCfg
	collectorCfg.Endpoint = opts.Doip.PrimaryEndpoint

	thresholds := readiness.Thresholds{
		MinBatteryPercent:  opts.Readiness.MinBatteryPercent,
		MinFreeSpaceMB:     opts.Readiness.MinFreeSpaceMB,
		MaxTemperature:     opts.Readiness.MaxTemperature,
		CheckEngineOff:     opts.Readiness.CheckEngineOff,
		CheckParkingBrake:  opts.Readiness.CheckParkingBrake,
		CheckNetworkStable: opts.Readiness.CheckNetworkStable,
	}
	env := readiness.Environment{
		Temperature:   opts.Readiness.AmbientTemperature,
		NetworkStable: opts.Readiness.NetworkStable,
	}

	tracker := vehiclestate.NewTracker()
	// The gateway has no drive-state feed yet; assume a serviceable
	// vehicle so campaigns delivered on the bench are accepted.
	_ = tracker.Set(vehiclestate.StateParkedIgnitionOn)

	gw, err := gateway.New(gateway.Config{
		VIN:               vin,
		Model:             opts.Vehicle.Model,
		HeartbeatInterval: opts.Vehicle.HeartbeatInterval,
		HTTPAddr:          opts.Http.Addr,
	}, gateway.Dependencies{
		MQTT:         broker,
		Topics:       topics,
		Orchestrator: orchestrator,
		VCI:          vci.NewCollector(vin, collectorCfg),
		Readiness:    readiness.NewCollector(vin, collectorCfg, thresholds, env),
		Partitions:   slots,
		Cloud:        backend,
		Tracker:      tracker,
	})
	if err != nil {
		return err
	}

	logger.Info("Starting vehicle mobile gateway", "vin", vin, "broker", opts.Mqtt.Broker)
	if err := gw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Gateway stopped")
	return nil
}
