package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
	"lib.hemtjan.st/client"
	"lib.hemtjan.st/device"
	"lib.hemtjan.st/transport/mqtt"

	"hemtjan.st/meter2car/config"
	"hemtjan.st/meter2car/control"
	"hemtjan.st/meter2car/dlms"
	"hemtjan.st/meter2car/goe"
	"hemtjan.st/meter2car/logging"
	"hemtjan.st/meter2car/meter"
	"hemtjan.st/meter2car/metrics"
	"hemtjan.st/meter2car/publish"
	"hemtjan.st/meter2car/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default $METER2CAR_CONFIG or ./meter2car.yaml)")
	mqFlags := mqtt.MustFlags(flag.String, flag.Bool)
	versioninfo.AddFlag(nil)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	// The charger url may be given as the only argument
	if flag.NArg() > 0 {
		cfg.Charger.URL = flag.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting meter2car", zap.String("version", versioninfo.Short()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	am := metrics.NewAppMetrics(reg)

	key, authKey, err := cfg.Keys()
	if err != nil {
		logger.Fatal("invalid key", zap.Error(err))
	}
	m, err := meter.Open(cfg.Meter, &dlms.Decrypter{Key: key, AuthKey: authKey},
		meter.WithLogger(logger.Named("meter")),
		meter.WithMetrics(am),
	)
	if err != nil {
		logger.Fatal("opening meter", zap.Error(err))
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("closing meter", zap.Error(err))
		}
	}()

	charger, err := goe.New(cfg.Charger.URL,
		goe.WithTimeout(cfg.Charger.Timeout),
		goe.WithAmpereRange(cfg.Charger.MinAmpere, cfg.Charger.MaxAmpere),
		goe.WithLogger(logger.Named("goe")),
		goe.WithMetrics(am),
	)
	if err != nil {
		logger.Fatal("creating charger client", zap.Error(err))
	}

	opts := []control.Option{
		control.WithLogger(logger.Named("control")),
		control.WithMetrics(am),
	}
	if cfg.Publish.Enable {
		newDevice := startMQTT(ctx, mqFlags(), logger.Named("mqtt"))
		p := publish.New(cfg.Publish, newDevice, logger.Named("publish"))
		opts = append(opts, control.WithReadingHook(p.Publish))
	}
	ctrl := control.New(m, charger, cfg.Control, opts...)

	if cfg.HTTP.Enable {
		srv := server.NewServer(cfg.HTTP, ctrl, reg)
		go func() {
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("http server forced to shutdown", zap.Error(err))
			}
		}()
	}

	if err := ctrl.Run(ctx); err != nil {
		logger.Error("control loop", zap.Error(err))
	}
	logger.Info("shutting down")
}

// startMQTT connects to the broker and keeps reconnecting until ctx is done.
func startMQTT(ctx context.Context, cfg *mqtt.Config, logger *zap.Logger) publish.DeviceFactory {
	mq, err := mqtt.New(ctx, cfg)
	if err != nil {
		logger.Fatal("connecting to mqtt", zap.Error(err))
	}

	go func() {
		for {
			ok, err := mq.Start()
			if err != nil {
				logger.Warn("mqtt error", zap.Error(err))
			}
			if !ok || ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			logger.Info("mqtt reconnecting")
		}
	}()

	return func(info *device.Info) (publish.UpdateFunc, error) {
		d, err := client.NewDevice(info, mq)
		if err != nil {
			return nil, err
		}
		return func(feature, value string) error {
			return d.Feature(feature).Update(value)
		}, nil
	}
}
