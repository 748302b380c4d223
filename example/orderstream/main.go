// orderstream demonstrates the full recorder stack: an EventStore over a
// factory-built ApplicationRecorder on the producer side, and a tracking
// ProcessRecorder consuming the notification log on the other.
//
// Run it against the in-memory engine (the default) or set
// PERSISTENCE_MODULE=sqlite and DSN=/tmp/orderstream.db for a durable run.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/ordered-streams/eventrecorder-go/eventstore"
	"github.com/ordered-streams/eventrecorder-go/factory"
	"github.com/ordered-streams/eventrecorder-go/oteladapters"
	"github.com/ordered-streams/eventrecorder-go/recorder"
	"github.com/ordered-streams/eventrecorder-go/recorder/sqliteengine"
)

const (
	topicOrderPlaced  = "order_placed"
	topicOrderShipped = "order_shipped"

	consumerName = "shipping-report"
)

type orderPlaced struct {
	OrderID string  `json:"order_id"`
	Total   float64 `json:"total"`
}

type orderShipped struct {
	OrderID string `json:"order_id"`
	Carrier string `json:"carrier"`
}

func main() {
	ctx := context.Background()

	settings, err := factory.LoadSettings()
	if err != nil {
		log.Fatalf("loading settings failed: %v", err)
	}

	log.Printf("using persistence module: %s", settings.PersistenceModule)

	logger := oteladapters.NewSlogBridgeLoggerWithHandler(slog.NewTextHandler(os.Stderr, nil))

	registry := eventstore.NewRegistry()
	registry.Register(topicOrderPlaced, func() any { return &orderPlaced{} })
	registry.Register(topicOrderShipped, func() any { return &orderShipped{} })

	store, closeStore, err := factory.BuildEventStore(settings, eventstore.NewJSONMapper(registry))
	if err != nil {
		log.Fatalf("building the event store failed: %v", err)
	}
	defer func() { _ = closeStore() }()

	if sqliteEngine, ok := store.Recorder().(*sqliteengine.ApplicationRecorder); ok {
		if err = sqliteEngine.CreateTable(ctx); err != nil {
			log.Fatalf("creating tables failed: %v", err)
		}
	}

	produceOrders(ctx, store, logger)
	consumeNotifications(ctx, store, logger)
}

func produceOrders(ctx context.Context, store *eventstore.EventStore, logger recorder.ContextualLogger) {
	for range 3 {
		orderID := uuid.New()

		placed, err := eventstore.BuildDomainEvent(orderID, 1, topicOrderPlaced,
			&orderPlaced{OrderID: orderID.String(), Total: 42.5})
		if err != nil {
			log.Fatalf("building an event failed: %v", err)
		}

		shipped, err := eventstore.BuildDomainEvent(orderID, 2, topicOrderShipped,
			&orderShipped{OrderID: orderID.String(), Carrier: "dhl"})
		if err != nil {
			log.Fatalf("building an event failed: %v", err)
		}

		if err = store.Put(ctx, eventstore.DomainEvents{placed, shipped}); err != nil {
			log.Fatalf("appending events failed: %v", err)
		}

		logger.InfoContext(ctx, "order recorded", "order_id", orderID.String())
	}
}

func consumeNotifications(ctx context.Context, store *eventstore.EventStore, logger recorder.ContextualLogger) {
	applicationRecorder, ok := store.Recorder().(recorder.ApplicationRecorder)
	if !ok {
		log.Fatal("the configured persistence module produces no notifications")
	}

	start := int64(1)
	if processRecorder, isProcess := applicationRecorder.(recorder.ProcessRecorder); isProcess {
		maxTracking, err := processRecorder.MaxTrackingID(ctx, consumerName)
		if err != nil {
			log.Fatalf("reading the resume position failed: %v", err)
		}
		start = maxTracking + 1
	}

	notifications, err := applicationRecorder.SelectNotifications(ctx, start, 100,
		recorder.WithTopics(topicOrderShipped))
	if err != nil {
		log.Fatalf("scanning notifications failed: %v", err)
	}

	for _, notification := range notifications {
		logger.InfoContext(ctx, "shipment observed",
			"notification_id", notification.ID,
			"originator_id", notification.OriginatorID.String(),
		)
	}

	log.Printf("consumed %d shipment notifications from position %d", len(notifications), start)
}
