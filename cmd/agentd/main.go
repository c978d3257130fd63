// Task Assistant Agent Daemon
//
// agentd is the automation engine of the Task Assistant platform. It owns
// the AI agent lifecycle (shadow -> supervised -> live), fires agents from
// schedules, task-state conditions, and task lifecycle events, and records
// every run for shadow-mode reconciliation.
//
// Task events arrive over MQTT from the task service; agent actions are
// published back over MQTT for the action workers to carry out. A REST API
// exposes agent management to the assistant's web app.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/shibinsp/task-assistant-ai/migrations"

	"github.com/shibinsp/task-assistant-ai/internal/api"
	"github.com/shibinsp/task-assistant-ai/internal/automation"
	"github.com/shibinsp/task-assistant-ai/internal/infrastructure/config"
	"github.com/shibinsp/task-assistant-ai/internal/infrastructure/database"
	"github.com/shibinsp/task-assistant-ai/internal/infrastructure/influxdb"
	"github.com/shibinsp/task-assistant-ai/internal/infrastructure/logging"
	"github.com/shibinsp/task-assistant-ai/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Task Assistant agentd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise repository and settle runs orphaned by an unclean shutdown
	repo := automation.NewSQLiteRepository(db.DB)

	interrupted, err := repo.MarkInterruptedRuns(ctx, "interrupted by daemon restart")
	if err != nil {
		return fmt.Errorf("marking interrupted runs: %w", err)
	}
	if interrupted > 0 {
		log.Warn("marked interrupted runs from previous shutdown", "count", interrupted)
	}

	// Initialise agent registry
	registry := automation.NewRegistry(repo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading agent registry: %w", refreshErr)
	}
	log.Info("agent registry initialised", "agents", registry.AgentCount())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Trigger evaluator over live task state
	taskState := automation.NewSQLiteTaskState(db.DB)
	evaluator := automation.NewEvaluator(taskState, log)

	// Execution engine publishing agent actions over MQTT
	executor := &mqttActionExecutor{client: mqttClient, log: log}

	var runMetrics automation.RunRecorder
	if influxClient != nil {
		runMetrics = influxClient
	}
	engine := automation.NewEngine(repo, executor, runMetrics, log)
	if cfg.Automation.DispatchTimeout > 0 {
		engine.SetTimeout(cfg.Automation.DispatchTimeoutDuration())
	}

	// Scheduler: per-agent cron jobs plus the periodic condition sweep
	scheduler := automation.NewScheduler(repo, evaluator, engine, log)
	if cfg.Automation.SweepInterval > 0 {
		scheduler.SetSweepInterval(cfg.Automation.SweepIntervalDuration())
	}
	if cfg.Automation.DefaultTimezone != "" {
		scheduler.SetDefaultTimezone(cfg.Automation.DefaultTimezone)
	}
	if influxClient != nil {
		scheduler.SetSweepRecorder(influxClient)
	}

	// Lifecycle, shadow reconciliation, and pattern intake services
	promotionCfg := automation.PromotionConfig{
		MinShadowRuns: cfg.Automation.Promotion.MinShadowRuns,
		MinMatchRate:  cfg.Automation.Promotion.MinMatchRate,
	}
	lifecycle := automation.NewLifecycle(repo, registry, scheduler, promotionCfg, log)
	shadowResolver := automation.NewShadowResolver(repo, registry, promotionCfg, log)
	patterns := automation.NewPatterns(repo, registry, log)

	// Event bridge: task lifecycle events in, agent dispatch out
	bridge := automation.NewEventBridge(repo, evaluator, engine, log)
	eventsTopic := mqtt.Topics{}.AllTaskEvents()
	err = mqttClient.Subscribe(eventsTopic, 1, func(topic string, payload []byte) error {
		return bridge.HandleEvent(ctx, mqtt.EventTypeFromTopic(topic), payload)
	})
	if err != nil {
		return fmt.Errorf("subscribing to task events: %w", err)
	}
	log.Info("event bridge subscribed", "topic", eventsTopic)

	// Start scheduler
	if startErr := scheduler.Start(ctx); startErr != nil {
		return fmt.Errorf("starting scheduler: %w", startErr)
	}
	defer func() {
		log.Info("stopping scheduler")
		scheduler.Stop()
	}()
	log.Info("scheduler started",
		"jobs", scheduler.JobCount(),
		"sweep_interval", cfg.Automation.SweepIntervalDuration().String(),
	)

	// Start management API
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log,
		Registry:  registry,
		Repo:      repo,
		Engine:    engine,
		Lifecycle: lifecycle,
		Shadow:    shadowResolver,
		Patterns:  patterns,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Scheduler
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Task Assistant agentd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TASKAI_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TASKAI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// actionQoS is the MQTT QoS for published action commands. At-least-once
// matches the engine's run semantics; action workers dedupe on run_id.
const actionQoS = 1

// actionCommand is the payload published for each real agent action.
type actionCommand struct {
	AgentID     string                 `json:"agent_id"`
	OrgID       string                 `json:"org_id"`
	ActionType  string                 `json:"action_type"`
	Target      string                 `json:"target"`
	Parameters  map[string]any         `json:"parameters,omitempty"`
	TriggerType automation.TriggerType `json:"trigger_type"`
	FiredAt     time.Time              `json:"fired_at"`
}

// mqttActionExecutor performs agent actions by publishing command messages
// for the action workers. In dry-run mode it computes the would-be command
// without publishing, which is what shadow execution records.
type mqttActionExecutor struct {
	client *mqtt.Client
	log    *logging.Logger
}

// Execute implements automation.ActionExecutor.
func (e *mqttActionExecutor) Execute(_ context.Context, req automation.ActionRequest) (automation.ActionResult, error) {
	result := automation.ActionResult{
		Type:       req.Action.Type,
		Target:     req.Action.Target,
		Parameters: req.Action.Parameters,
		Applied:    false,
	}

	if req.DryRun {
		return result, nil
	}

	cmd := actionCommand{
		AgentID:     req.AgentID,
		OrgID:       req.OrgID,
		ActionType:  req.Action.Type,
		Target:      req.Action.Target,
		Parameters:  req.Action.Parameters,
		TriggerType: req.TriggerData.TriggerType,
		FiredAt:     req.TriggerData.FiredAt,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return result, fmt.Errorf("encoding action command: %w", err)
	}

	topic := mqtt.Topics{}.ActionCommand(req.Action.Type)
	if err := e.client.Publish(topic, payload, actionQoS, false); err != nil {
		return result, fmt.Errorf("publishing action command: %w", err)
	}

	result.Applied = true
	return result, nil
}
