package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"vesselwatch/config"
	"vesselwatch/controllers"
	"vesselwatch/database"
	"vesselwatch/interfaces"
	"vesselwatch/repositories"
	"vesselwatch/routes"
	"vesselwatch/services"
	"vesselwatch/utils"
	"vesselwatch/websocket"
	"vesselwatch/workers"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	setupLogger(cfg)

	areas, err := config.LoadAreas(cfg.GeofenceFile)
	if err != nil {
		logrus.Fatal("Failed to load geofences: ", err)
	}
	if cfg.TestMode {
		logrus.Warnf("🧪 Test mode: idle threshold %s", cfg.IdleThreshold)
	}

	db, err := database.Connect(cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		logrus.Fatal("Failed to connect to database: ", err)
	}
	defer database.Disconnect()

	redisClient := config.InitRedis(cfg)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := utils.SystemClock{}

	// Storage
	eventLog := repositories.NewMongoEventLog(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	vesselRepo := repositories.NewVesselRepository(db)

	// Vessel registry, with static entries from the geofence file
	directory := services.NewVesselDirectory(vesselRepo, areas.Vessels)
	if err := directory.Refresh(ctx); err != nil {
		logrus.Warnf("Initial vessel registry load failed: %v", err)
	}
	go directory.Run(ctx, cfg.VesselRefreshInterval)

	notificationService := services.NewNotificationService(notificationRepo, directory, nil, clock)

	hub := websocket.NewHub(websocket.HubOptions{
		EventLog: eventLog,
		Unread:   notificationService,
	})
	notificationService.SetBroadcaster(hub)
	if owners := config.InitOwnerNotifier(ctx, cfg); owners != nil {
		notificationService.SetOwnerNotifier(owners)
	}

	// Event pipeline: log, live fan-out, consumers
	dispatcher := services.NewEventDispatcher(eventLog, hub)
	dispatcher.AddHandler(notificationService)
	localDedup, err := services.NewMemoryDedupWindow(cfg.DedupWindow, cfg.DedupRetention, 0)
	if err != nil {
		logrus.Fatal("Failed to create dedup window: ", err)
	}
	dedup := services.NewFallbackDedupWindow(services.NewRedisDedupWindow(redisClient, cfg.DedupWindow), localDedup)
	dashboardCue := newDashboardCue(cfg, hub, dedup)
	dispatcher.AddHandler(dashboardCue)

	var bus *services.RedisEventBus
	if cfg.EventBusEnabled {
		bus = services.NewRedisEventBus(redisClient, cfg.EventBusChannel)
		go bus.Run(ctx)
		if cfg.IngestEnabled {
			dispatcher.AddOrderedPublisher(bus)
		} else {
			// Read-only replica: live traffic comes from the ingesting instance
			go func() {
				if err := bus.Relay(ctx, hub, dashboardCue); err != nil && ctx.Err() == nil {
					logrus.Errorf("Event relay stopped: %v", err)
				}
			}()
		}
		logrus.Infof("📡 Event bus enabled on %s", cfg.EventBusChannel)
	}

	if cfg.AMQPURL != "" {
		if exporter, err := newViolationExporter(cfg.AMQPURL); err != nil {
			logrus.Errorf("Violation export disabled: %v", err)
		} else {
			defer exporter.Close()
			dispatcher.AddPublisher(exporter)
		}
	}

	// Tracker lanes
	geofences := services.NewGeofenceService(areas.Geofences)
	machine := services.NewTrackerMachine(cfg.DetectionConfig(), areas.Geofences, clock)
	poolConfig := workers.DefaultTrackerWorkerConfig()
	poolConfig.LaneQueueSize = cfg.LaneQueueSize
	pool := workers.NewTrackerWorkerPool(machine, dispatcher, hub, clock, poolConfig)
	for _, v := range directory.All() {
		if v.HomeArea != "" {
			pool.SetHomeArea(v.TrackerID, v.HomeArea)
		}
	}

	hub.AttachTrackers(pool, pool)
	go hub.Run()

	var heartbeat *workers.HeartbeatWorker
	var mqttWorker *workers.MQTTIngestWorker
	var ingestPool *workers.TrackerWorkerPool
	var purger workers.EventPurger
	if cfg.IngestEnabled {
		ingestPool = pool
		purger = eventLog
		if err := pool.Start(); err != nil {
			logrus.Fatal("Failed to start tracker workers: ", err)
		}
		defer pool.Stop()

		heartbeat = workers.NewHeartbeatWorker(pool, clock, cfg.StatusCheckInterval)
		if err := heartbeat.Start(); err != nil {
			logrus.Fatal("Failed to start heartbeat worker: ", err)
		}
		defer heartbeat.Stop()

		if cfg.MQTTBrokerURL != "" {
			mqttWorker = workers.NewMQTTIngestWorker(pool, workers.MQTTIngestConfig{
				BrokerURL: cfg.MQTTBrokerURL,
				ClientID:  cfg.MQTTClientID,
				Username:  cfg.MQTTUsername,
				Password:  cfg.MQTTPassword,
				Topic:     cfg.MQTTTopic,
				QoS:       1,
			})
			if err := mqttWorker.Start(); err != nil {
				logrus.Errorf("MQTT ingest disabled: %v", err)
				mqttWorker = nil
			} else {
				defer mqttWorker.Stop()
			}
		}
	} else {
		logrus.Warn("Ingest disabled on this instance, serving relayed events only")
	}

	cleanup := workers.NewCleanupWorker(purger, clock, workers.CleanupWorkerConfig{
		EventRetention: cfg.EventRetention,
	}, dedup)
	if err := cleanup.Start(); err != nil {
		logrus.Fatal("Failed to start cleanup worker: ", err)
	}
	defer cleanup.Stop()

	router := routes.SetupRoutes(routes.Dependencies{
		Config:        cfg,
		Redis:         redisClient,
		Hub:           hub,
		Pool:          pool,
		Geofences:     geofences,
		EventLog:      eventLog,
		Notifications: notificationService,
		Directory:     directory,
		Health: controllers.HealthDeps{
			Hub:        hub,
			Pool:       ingestPool,
			Heartbeat:  heartbeat,
			Dispatcher: dispatcher,
			Bus:        bus,
			Directory:  directory,
			MQTT:       mqttWorker,
			Cleanup:    cleanup,
			Redis:      redisClient,
			Database:   database.HealthCheck,
		},
	})

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logrus.Info("🚀 vesselwatch server starting on port ", cfg.Port)
		logrus.Infof("🗺️  Monitoring %d geofences", len(areas.Geofences))
		logrus.Info("📱 WebSocket endpoint: /ws")
		logrus.Info("💖 Health Check: /health")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("🛑 Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	hub.Shutdown()
	cancel()

	logrus.Info("✅ Server shutdown complete")
}

func setupLogger(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	if cfg.LogLevel != "" {
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logrus.SetLevel(level)
		}
	}
}

// newDashboardCue presents violations to connected dashboards: one toast
// and one cue per violation inside the dedup window.
func newDashboardCue(cfg *config.Config, hub *websocket.Hub, dedup interfaces.DedupStore) *services.AlertPresenter {
	cue := services.NewAttentionCue(services.NewBroadcastCuePlayer(hub), cfg.CueAsset)
	// Dashboards unlock audio on their side; the server only signals
	cue.Unlock()

	// Dashboards render toasts from the boundary_notification message
	return services.NewAlertPresenter(dedup, cue, utils.SystemClock{}, func(t services.Toast) {
		logrus.WithField("route", t.Key.String()).Infof("🚨 %s: %s", t.Title, t.Body)
	})
}

func newViolationExporter(url string) (*services.AMQPViolationExporter, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	exporter, err := services.NewAMQPViolationExporter(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	logrus.Info("🐇 Exporting violations to RabbitMQ")
	return exporter, nil
}
