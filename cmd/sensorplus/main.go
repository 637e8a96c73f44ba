package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kermanimohammad/SensorPlus-Client/internal/app"
	"github.com/kermanimohammad/SensorPlus-Client/internal/bus"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/editor"
	"github.com/kermanimohammad/SensorPlus-Client/internal/folder"
	"github.com/kermanimohammad/SensorPlus-Client/internal/mqtt"
	"github.com/kermanimohammad/SensorPlus-Client/internal/project"
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/kermanimohammad/SensorPlus-Client/internal/store"
	"github.com/kermanimohammad/SensorPlus-Client/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// version is injected at build time via ldflags
var version = "dev"

type startup struct {
	importEnv string
	inspect   string
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, st := parseFlags()

	// Inspect path ----------------------------------------------------------------
	if st.inspect != "" {
		runInspect(cfg, st.inspect)
		return
	}

	logger := setupLogger(cfg.Verbose)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logger.WithFields(logrus.Fields{
		"version":   version,
		"client_id": cfg.ClientID,
		"mqtt":      cfg.HasMQTT(),
		"nats":      cfg.HasNATS(),
		"models":    cfg.ModelsDir,
	}).Info("Starting SensorPlus editor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Scene & persistence --------------------------------------------------------
	mem := scene.NewMemory(logger)
	prefabs := scene.LoadPrefabs(ctx, mem, cfg.ModelsDir, sensors.EnabledTypes(), cfg.GetPrefabsTimeout(), logger)

	var layouts *store.Store
	if cfg.LayoutDB != "" {
		s, err := store.Open(cfg.LayoutDB, logger)
		if err != nil {
			logger.WithError(err).Warn("Layout store unavailable; scene sensors will not be autosaved")
		} else {
			layouts = s
			defer layouts.Close()
		}
	}

	var picker folder.Picker
	if cfg.HasProjectDir() {
		picker = folder.DirPicker(cfg.ProjectDir)
	}
	opts := editor.Options{
		Folder:       folder.New(picker, logger),
		Downloader:   &folder.Downloader{Dir: cfg.DownloadDir, Logger: logger},
		Store:        layouts,
		AssetTimeout: cfg.GetAssetTimeout(),
	}
	session := editor.NewSession(mem, prefabs, opts, logger)
	if conn := restore(ctx, session, cfg, st, logger); adoptConnection(cfg, conn) {
		if err := cfg.Validate(); err != nil {
			logger.WithError(err).Warn("Ignoring connection saved in project")
			cfg.MQTTUrl = ""
		} else {
			logger.WithField("mqtt", cfg.MQTTUrl).Info("Using connection saved in project")
		}
	}

	// Telemetry ------------------------------------------------------------------
	messageBus := bus.New(config.BusBufferSize)
	var sources []telemetry.Source
	if cfg.HasMQTT() {
		sources = append(sources, telemetry.NewMQTTSource(mqtt.Options{
			URL:      cfg.MQTTUrl,
			ClientID: cfg.ClientID,
			Username: cfg.MQTTUser,
			Password: cfg.MQTTPass,
		}, cfg.MQTTTopic, messageBus, logger))
	}
	if cfg.HasNATS() {
		sources = append(sources, telemetry.NewNATSSource(cfg.NATSUrl, cfg.NATSSubject, cfg.ClientID, messageBus, logger))
	}
	if len(sources) == 0 {
		logger.Warn("No telemetry source configured; sensors will show no live data")
	}

	// Run application ------------------------------------------------------------
	ed := app.NewEditor(session)
	if err := app.Run(ctx, cfg, ed, messageBus, sources, logger); err != nil {
		logger.WithError(err).Error("Editor stopped with error")
	}

	shutdown(ed.Session(), cfg, logger)
	logger.Info("SensorPlus stopped")
}

// restore brings the session to its starting state: an explicit project,
// else the last autosaved sensor layout, then an optional extra environment.
// It returns the broker connection stored in a legacy project, if any.
func restore(ctx context.Context, s *editor.Session, cfg *config.Config, st startup, logger *logrus.Logger) *project.Connection {
	var conn *project.Connection
	if cfg.LoadPath != "" {
		report, err := s.LoadProject(ctx, cfg.LoadPath)
		if err != nil {
			logger.WithError(err).WithField("path", cfg.LoadPath).Error("Failed to load project")
		} else {
			logReport(logger, report)
			conn = report.Connection
		}
	} else if report, err := s.RestoreSceneSensors(ctx); err == nil {
		logReport(logger, report)
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.WithError(err).Debug("No scene sensors restored")
	}

	if st.importEnv != "" {
		id, err := s.ImportEnvironmentFile(ctx, st.importEnv)
		if err != nil {
			logger.WithError(err).WithField("path", st.importEnv).Error("Failed to import environment")
		} else {
			logger.WithField("environment", id).Info("Environment imported")
		}
	}
	return conn
}

// adoptConnection fills the MQTT settings from a project's saved connection
// when none were configured. It reports whether cfg changed.
func adoptConnection(cfg *config.Config, conn *project.Connection) bool {
	if conn == nil || conn.URL == "" || cfg.HasMQTT() {
		return false
	}
	cfg.MQTTUrl = conn.URL
	if conn.Topic != "" {
		cfg.MQTTTopic = conn.Topic
	}
	if cfg.MQTTUser == "" && cfg.MQTTPass == "" {
		cfg.MQTTUser = conn.User
		cfg.MQTTPass = conn.Pass
	}
	return true
}

// shutdown persists the session after the editor loop has exited.
func shutdown(s *editor.Session, cfg *config.Config, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if _, err := s.AutosaveSensors(ctx); err != nil {
		logger.WithError(err).Warn("Final scene sensor autosave failed")
	}
	if cfg.HasProjectDir() {
		res, err := s.SaveProject(ctx)
		if err != nil {
			logger.WithError(err).Error("Failed to save project")
		} else {
			logger.WithFields(logrus.Fields{
				"dir":      res.Dir,
				"files":    len(res.Files),
				"archive":  res.Archive,
				"fallback": res.Fallback,
			}).Info("Project saved")
		}
	}
	if cfg.ArchiveOut != "" {
		if err := s.ExportArchive(ctx, cfg.ArchiveOut); err != nil {
			logger.WithError(err).WithField("path", cfg.ArchiveOut).Error("Failed to export archive")
		} else {
			logger.WithField("path", cfg.ArchiveOut).Info("Archive exported")
		}
	}
}

func logReport(logger *logrus.Logger, r *project.LoadReport) {
	fields := logrus.Fields{
		"version":      r.Version,
		"environments": r.Environments,
		"sensors":      r.Sensors,
		"warnings":     len(r.Warnings),
	}
	if r.Connection != nil && r.Connection.URL != "" {
		fields["connection"] = r.Connection.URL
	}
	logger.WithFields(fields).Info("Project restored")
	for _, w := range r.Warnings {
		logger.WithError(w).Warn("Project load warning")
	}
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags() (*config.Config, startup) {
	cfg := config.GetDefaultConfig()
	var st startup

	showVersion := flag.Bool("version", false, "Show version and exit")
	configFile := flag.String("config", getEnv("SENSORPLUS_CONFIG", ""), "YAML config file applied before flags")
	flag.StringVar(&st.inspect, "inspect", "", "Load a project, print what it contains and exit")
	flag.StringVar(&st.importEnv, "import-env", getEnv("SENSORPLUS_IMPORT_ENV", ""), "GLB file added as an environment at start")

	flag.StringVar(&cfg.MQTTUrl, "mqtt-url", getEnv("SENSORPLUS_MQTT_URL", cfg.MQTTUrl), "MQTT URL")
	flag.StringVar(&cfg.MQTTTopic, "topic", getEnv("SENSORPLUS_TOPIC", cfg.MQTTTopic), "MQTT subscription filter")
	flag.StringVar(&cfg.MQTTUser, "mqtt-user", getEnv("SENSORPLUS_MQTT_USER", cfg.MQTTUser), "MQTT username")
	flag.StringVar(&cfg.MQTTPass, "mqtt-pass", getEnv("SENSORPLUS_MQTT_PASS", cfg.MQTTPass), "MQTT password")
	flag.StringVar(&cfg.NATSUrl, "nats-url", getEnv("SENSORPLUS_NATS_URL", cfg.NATSUrl), "NATS URL")
	flag.StringVar(&cfg.NATSSubject, "nats-subject", getEnv("SENSORPLUS_NATS_SUBJECT", cfg.NATSSubject), "NATS subject filter")
	flag.StringVar(&cfg.ClientID, "client-id", getEnv("SENSORPLUS_CLIENT_ID", generateClientID()), "Broker client identifier")
	flag.BoolVar(&cfg.Verbose, "verbose", getEnv("SENSORPLUS_VERBOSE", "false") == "true", "Verbose logging")

	flag.StringVar(&cfg.ModelsDir, "models-dir", getEnv("SENSORPLUS_MODELS_DIR", cfg.ModelsDir), "Directory of <type>.glb sensor models")
	flag.StringVar(&cfg.ProjectDir, "save-dir", getEnv("SENSORPLUS_SAVE_DIR", cfg.ProjectDir), "Project folder written on shutdown")
	flag.StringVar(&cfg.DownloadDir, "download-dir", getEnv("SENSORPLUS_DOWNLOAD_DIR", cfg.DownloadDir), "Fallback directory for downloads")
	flag.StringVar(&cfg.LayoutDB, "layout-db", getEnv("SENSORPLUS_LAYOUT_DB", cfg.LayoutDB), "SQLite file for scene sensor layouts (empty disables)")
	flag.StringVar(&cfg.LoadPath, "load", getEnv("SENSORPLUS_LOAD", cfg.LoadPath), "Project folder, .json or .dtsp restored at start")
	flag.StringVar(&cfg.ArchiveOut, "archive-out", getEnv("SENSORPLUS_ARCHIVE_OUT", cfg.ArchiveOut), "Archive written on shutdown")

	flag.Parse()

	if *showVersion {
		fmt.Printf("sensorplus %s\n", version)
		os.Exit(0)
	}

	// Config file values sit under explicit flags
	if *configFile != "" {
		fileCfg := config.GetDefaultConfig()
		if err := fileCfg.LoadFile(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		overlay(cfg, fileCfg, set)
	}

	return cfg, st
}

// overlay copies file values into cfg for every flag the user did not pass
// and whose environment variable was not set.
func overlay(cfg, file *config.Config, set map[string]bool) {
	str := func(dst *string, src, flagName, env string) {
		if !set[flagName] && os.Getenv(env) == "" && src != "" {
			*dst = src
		}
	}
	str(&cfg.MQTTUrl, file.MQTTUrl, "mqtt-url", "SENSORPLUS_MQTT_URL")
	str(&cfg.MQTTTopic, file.MQTTTopic, "topic", "SENSORPLUS_TOPIC")
	str(&cfg.MQTTUser, file.MQTTUser, "mqtt-user", "SENSORPLUS_MQTT_USER")
	str(&cfg.MQTTPass, file.MQTTPass, "mqtt-pass", "SENSORPLUS_MQTT_PASS")
	str(&cfg.NATSUrl, file.NATSUrl, "nats-url", "SENSORPLUS_NATS_URL")
	str(&cfg.NATSSubject, file.NATSSubject, "nats-subject", "SENSORPLUS_NATS_SUBJECT")
	str(&cfg.ClientID, file.ClientID, "client-id", "SENSORPLUS_CLIENT_ID")
	str(&cfg.ModelsDir, file.ModelsDir, "models-dir", "SENSORPLUS_MODELS_DIR")
	str(&cfg.ProjectDir, file.ProjectDir, "save-dir", "SENSORPLUS_SAVE_DIR")
	str(&cfg.DownloadDir, file.DownloadDir, "download-dir", "SENSORPLUS_DOWNLOAD_DIR")
	str(&cfg.LayoutDB, file.LayoutDB, "layout-db", "SENSORPLUS_LAYOUT_DB")
	str(&cfg.LoadPath, file.LoadPath, "load", "SENSORPLUS_LOAD")
	str(&cfg.ArchiveOut, file.ArchiveOut, "archive-out", "SENSORPLUS_ARCHIVE_OUT")
	if !set["verbose"] && os.Getenv("SENSORPLUS_VERBOSE") == "" && file.Verbose {
		cfg.Verbose = true
	}
	if file.AssetTimeout > 0 {
		cfg.AssetTimeout = file.AssetTimeout
	}
	if file.PrefabsTimeout > 0 {
		cfg.PrefabsTimeout = file.PrefabsTimeout
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func generateClientID() string { return "sensorplus-" + uuid.NewString()[:8] }

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

func runInspect(cfg *config.Config, path string) {
	logger := setupLogger(true)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetAssetTimeout())
	defer cancel()

	mem := scene.NewMemory(logger)
	s := editor.NewSession(mem, scene.NewPrefabs(logger), editor.Options{AssetTimeout: cfg.GetAssetTimeout()}, logger)
	report, err := s.LoadProject(ctx, path)
	if err != nil {
		logger.WithError(err).Fatal("Inspect failed")
	}
	fmt.Printf("format version: %d\n", report.Version)
	fmt.Printf("environments:   %d\n", report.Environments)
	for _, e := range s.Environments().List() {
		fmt.Printf("  %s  %s\n", e.ID, e.Name)
	}
	fmt.Printf("sensors:        %d\n", report.Sensors)
	for _, r := range s.Sensors().Records() {
		fmt.Printf("  %s  %-12s %-20s device=%s\n", r.ID, r.Type, r.Label, r.DeviceID)
	}
	if report.Connection != nil {
		fmt.Printf("connection:     %s (topic %s)\n", report.Connection.URL, report.Connection.Topic)
	}
	for _, w := range report.Warnings {
		fmt.Printf("warning: %v\n", w)
	}
	os.Exit(0)
}
