package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/omnitensor/omnitensor-node/internal/config"
	"github.com/omnitensor/omnitensor-node/internal/device"
	"github.com/omnitensor/omnitensor-node/internal/httpapi"
	"github.com/omnitensor/omnitensor-node/internal/model"
	"github.com/omnitensor/omnitensor-node/internal/scheduler"
	"github.com/omnitensor/omnitensor-node/pkg/types"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfgPath := flag.String("config", os.Getenv("OMNITENSOR_CONFIG"), "Path to config file (.yaml/.json/.toml)")
	addr := flag.String("addr", "", "HTTP listen address, e.g. :8080")
	modelsDir := flag.String("models-dir", "", "Directory to scan for *.gguf model files")
	minDeviceMemMB := flag.Int("min-device-memory-mb", 0, "Minimum device memory in MB to retain a device")
	deviceReserveMB := flag.Int("device-reserve-mb", 0, "Memory in MB charged to a device per in-flight task")
	queueCapacity := flag.Int("queue-capacity", 0, "Bounded task queue capacity")
	idlePollMS := flag.Int("idle-poll-ms", 0, "Dispatcher idle poll interval in ms")
	maxBodyBytes := flag.Int64("max-body-bytes", 0, "Maximum request body size in bytes")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	logLevel := flag.String("log-level", "", "Log level: debug|info|warn|error")
	flag.Parse()

	var cfg config.Config
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			zerolog.New(os.Stderr).Fatal().Err(err).Str("path", *cfgPath).Msg("load config")
		}
	}
	// Flags override file values; remaining zero values get env/package defaults.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *modelsDir != "" {
		cfg.ModelsDir = *modelsDir
	}
	if *minDeviceMemMB > 0 {
		cfg.MinDeviceMemoryMB = *minDeviceMemMB
	}
	if *deviceReserveMB > 0 {
		cfg.DeviceReserveMB = *deviceReserveMB
	}
	if *queueCapacity > 0 {
		cfg.QueueCapacity = *queueCapacity
	}
	if *idlePollMS > 0 {
		cfg.IdlePollMS = *idlePollMS
	}
	if *maxBodyBytes > 0 {
		cfg.MaxBodyBytes = *maxBodyBytes
	}
	if *corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(*corsOrigins, ",")
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.Addr == "" {
		cfg.Addr = envOr("OMNITENSOR_ADDR", ":8080")
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = envOr("OMNITENSOR_MODELS_DIR", "~/models/llm")
	}
	if cfg.DeviceReserveMB <= 0 {
		cfg.DeviceReserveMB = 512
	}

	lvl, err := zerolog.ParseLevel(envOr("OMNITENSOR_LOG_LEVEL", defaultStr(cfg.LogLevel, "info")))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("component", "omnitensord").Logger()

	models, err := model.LoadDir(cfg.ModelsDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("model scan failed, starting with empty registry")
	}
	log.Info().Int("models", len(models)).Str("dir", cfg.ModelsDir).Msg("model registry loaded")

	descs := make([]types.DeviceDescriptor, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		descs = append(descs, types.DeviceDescriptor{Name: d.Name, TotalMemory: uint64(d.MemoryMB) << 20})
	}
	enum, err := device.FromConfig(descs)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid device configuration")
	}
	devices, err := device.NewRegistry(enum, uint64(cfg.MinDeviceMemoryMB)<<20, uint64(cfg.DeviceReserveMB)<<20, log)
	if err != nil {
		// No usable device pool means the node cannot schedule work at all.
		log.Fatal().Err(err).Msg("device registry initialization failed")
	}

	loader := model.NewLoader(models, log, model.NewLlamaBackend(0, 0))
	defer func() { _ = loader.Close() }()

	metrics := scheduler.NewMetrics(prometheus.DefaultRegisterer)
	sched := scheduler.New(scheduler.Config{
		Models:        models,
		Devices:       devices,
		Executor:      model.NewExecutor(loader),
		Metrics:       metrics,
		Publisher:     scheduler.LogPublisher{Log: log},
		QueueCapacity: cfg.QueueCapacity,
		IdleInterval:  time.Duration(cfg.IdlePollMS) * time.Millisecond,
		Log:           log,
	})
	sched.Start(context.Background())

	httpapi.SetLogger(log)
	if cfg.SubmitWaitMS > 0 {
		httpapi.SetSubmitWait(time.Duration(cfg.SubmitWaitMS) * time.Millisecond)
	}
	if cfg.MaxBodyBytes > 0 {
		httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	}
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	}
	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(sched)}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("omnitensord listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := sched.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown timed out")
	}
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
