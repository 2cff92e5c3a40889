package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shoply/tracking/internal/adapter/logger"
	"github.com/shoply/tracking/internal/adapter/postgres"
	"github.com/shoply/tracking/internal/adapter/rabbitmq"
	"github.com/shoply/tracking/internal/app/fulfillment"
	"github.com/shoply/tracking/internal/app/order"
	"github.com/shoply/tracking/internal/app/tracking"
	"github.com/shoply/tracking/internal/config"
	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/pkg/trackclient"

	amqpAdapter "github.com/shoply/tracking/internal/adapter/amqp"
	httpAdapter "github.com/shoply/tracking/internal/adapter/http"
	wsAdapter "github.com/shoply/tracking/internal/adapter/ws"
)

func main() {
	mode := flag.String("mode", "", "Service mode: tracking-service, fulfillment-worker, order-watch")
	port := flag.Int("port", 3003, "HTTP port (tracking-service)")
	courierName := flag.String("courier-name", "", "Courier name (fulfillment-worker)")
	heartbeatInterval := flag.Int("heartbeat-interval", 30, "Heartbeat interval in seconds (fulfillment-worker)")
	prefetch := flag.Int("prefetch", 1, "RabbitMQ prefetch count (fulfillment-worker)")
	handlingDelay := flag.Duration("handling-delay", 10*time.Second, "Simulated handling delay per step (fulfillment-worker)")
	orderID := flag.String("order-id", "", "Order id to watch (order-watch)")
	trackingURL := flag.String("tracking-url", "ws://localhost:3003", "Tracking endpoint base URL (order-watch)")
	flag.Parse()

	if *mode == "" {
		log.Fatal("--mode flag is required")
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	lgr := logger.New(*mode)

	switch *mode {
	case "tracking-service":
		runTrackingService(ctx, cfg, lgr, *port)

	case "fulfillment-worker":
		if *courierName == "" {
			log.Fatal("--courier-name is required for fulfillment-worker mode")
		}
		runFulfillmentWorker(ctx, cfg, lgr, *courierName, *heartbeatInterval, *prefetch, *handlingDelay)

	case "order-watch":
		if *orderID == "" {
			log.Fatal("--order-id is required for order-watch mode")
		}
		runOrderWatch(cfg, *trackingURL, *orderID)

	default:
		log.Fatalf("Invalid mode: %s", *mode)
	}
}

func runTrackingService(ctx context.Context, cfg *config.Config, lgr logger.Logger, port int) {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})

	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer mqConn.Close()

	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host": cfg.RabbitMQ.Host,
	})

	orderRepo := postgres.NewOrderRepository(db)

	tracker := tracking.NewService(orderRepo, lgr,
		tracking.WithValidator(domain.ValidTransition),
		tracking.WithSeedTimeout(cfg.Tracking.SeedTimeout),
		tracking.WithCleanupInterval(cfg.Tracking.CleanupInterval),
	)
	defer tracker.Close()

	orderService := order.NewService(orderRepo, tracker, lgr)

	orderHandler := httpAdapter.NewOrderHandler(orderService, lgr)
	trackingHandler := wsAdapter.NewTrackingHandler(tracker, lgr)
	statusHandler := amqpAdapter.NewStatusHandler(tracker, lgr)

	consumer := rabbitmq.NewConsumer(mqConn, 1, lgr)
	consumeCtx, cancelConsume := context.WithCancel(ctx)
	defer cancelConsume()

	go func() {
		if err := consumer.ConsumeStatusUpdates(consumeCtx, statusHandler.HandleStatusUpdate); err != nil {
			lgr.Error("consumer_error", "Error consuming status updates", "runtime", nil, err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/orders/", orderHandler.HandleOrders)
	mux.HandleFunc("/ws/orders/", trackingHandler.HandleTracking)

	handler := httpAdapter.LoggingMiddleware(lgr)(mux)
	handler = httpAdapter.RecoveryMiddleware(lgr)(handler)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	lgr.Info("service_started", fmt.Sprintf("Tracking Service started on port %d", port), "startup", map[string]interface{}{
		"port": port,
	})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		lgr.Info("shutdown_initiated", "Shutting down Tracking Service", "shutdown", nil)
		cancelConsume()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lgr.Error("server_error", "Server error", "runtime", nil, err)
	}
}

func runFulfillmentWorker(ctx context.Context, cfg *config.Config, lgr logger.Logger, courierName string, heartbeatInterval, prefetch int, handlingDelay time.Duration) {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer mqConn.Close()

	orderRepo := postgres.NewOrderRepository(db)
	courierRepo := postgres.NewCourierRepository(db)

	publisher := rabbitmq.NewPublisher(mqConn)
	consumer := rabbitmq.NewConsumer(mqConn, prefetch, lgr)

	fulfillmentService := fulfillment.NewService(orderRepo, courierRepo, publisher, lgr, courierName, heartbeatInterval, handlingDelay)

	orderHandlerAMQP := amqpAdapter.NewOrderHandler(fulfillmentService, lgr)

	if err := fulfillmentService.Start(ctx); err != nil {
		log.Fatalf("Failed to start fulfillment worker: %v", err)
	}

	lgr.Info("service_started", fmt.Sprintf("Fulfillment Worker %s started", courierName), "startup", map[string]interface{}{
		"courier_name": courierName,
		"prefetch":     prefetch,
	})

	go func() {
		if err := consumer.ConsumeOrders(ctx, orderHandlerAMQP.HandleOrder); err != nil {
			lgr.Error("consumer_error", "Error consuming orders", "runtime", nil, err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint

	lgr.Info("graceful_shutdown", "Shutting down Fulfillment Worker", "shutdown", nil)

	if err := fulfillmentService.Shutdown(ctx); err != nil {
		lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
	}
}

func runOrderWatch(cfg *config.Config, trackingURL, orderID string) {
	client := trackclient.NewClient(trackingURL,
		trackclient.WithBackoffFloor(cfg.Tracking.ClientBackoff),
		trackclient.WithMaxRetries(cfg.Tracking.ClientRetries),
	)

	presenter := trackclient.NewPresenter(client, orderID, func(view trackclient.ProgressView) {
		if view.Unavailable {
			fmt.Printf("Order %s: tracking unavailable, last known status %s (%d%%)\n",
				view.OrderID, view.Status, view.Progress)
			return
		}
		if view.Cancelled {
			fmt.Printf("Order %s: cancelled\n", view.OrderID)
			return
		}
		line := fmt.Sprintf("Order %s: %s (%d%%)", view.OrderID, view.Status, view.Progress)
		if view.EstimatedDelivery != nil {
			line += fmt.Sprintf(", estimated delivery %s", view.EstimatedDelivery.Format(time.RFC3339))
		}
		if view.Location != nil {
			line += fmt.Sprintf(", at %.6f,%.6f", view.Location.Lat, view.Location.Lng)
		}
		fmt.Println(line)
	})

	presenter.Start()
	defer presenter.Stop()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint
}
