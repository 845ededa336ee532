// Package docdb fetches the document-database collections that make up an
// order payload. Every fetch is staged so failures name the collection that
// broke, and reads run behind a bounded retry loop.
package docdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrOrderNotResulted marks an order fetched before its result was
	// recorded. The message cannot be built yet.
	ErrOrderNotResulted = errors.New("order does not have a RESULTED state")

	// ErrMultipleEncounters marks an encounter id that resolved to more than
	// one encounter document.
	ErrMultipleEncounters = errors.New("multiple encounters found")
)

// Config carries the connection and retry settings for the document database.
type Config struct {
	URI           string
	Database      string
	RetryAttempts int
	RetryDelay    time.Duration
	Timeout       time.Duration
}

// Client reads the clinical collections backing the reporting pipeline.
type Client struct {
	db     *mongo.Database
	client *mongo.Client
	cfg    Config
	logger zerolog.Logger
}

// Connect dials the document database and verifies the connection before
// returning a usable client.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to document database: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging document database: %w", err)
	}
	return &Client{
		db:     client.Database(cfg.Database),
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// OrderData assembles the full payloads for every order attached to an
// encounter: the order itself plus its procedure, test kit type, facility,
// encounter, and patient documents.
func (c *Client) OrderData(ctx context.Context, encounterID string) ([]map[string]any, error) {
	orders, err := c.findAll(ctx, "order", bson.M{"encounter_id": encounterID})
	if err != nil {
		return nil, fmt.Errorf("fetching order: %w", err)
	}

	var payloads []map[string]any
	for _, order := range orders {
		payload, err := c.orderPayload(ctx, order, encounterID)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

// orderPayload fans out from one order document to the sibling collections.
func (c *Client) orderPayload(ctx context.Context, order map[string]any, encounterID string) (map[string]any, error) {
	states, _ := order["states"].(map[string]any)
	if _, resulted := states["RESULTED"]; !resulted {
		return nil, fmt.Errorf("fetching order: %w", ErrOrderNotResulted)
	}

	procedure, err := c.findOne(ctx, "procedure", stringField(order, "procedure_type_id"))
	if err != nil {
		return nil, fmt.Errorf("fetching procedure: %w", err)
	}

	testKitType, err := c.findOne(ctx, "test_kit_type", stringField(order, "test_kit_type_id"))
	if err != nil {
		return nil, fmt.Errorf("fetching test_kit_type: %w", err)
	}

	facility, err := c.findOne(ctx, "facility", stringField(order, "test_location_id"))
	if err != nil {
		return nil, fmt.Errorf("fetching facility: %w", err)
	}

	encounters, err := c.findAll(ctx, "encounter", bson.M{"id": encounterID})
	if err != nil {
		return nil, fmt.Errorf("fetching encounter: %w", err)
	}
	if len(encounters) != 1 {
		return nil, fmt.Errorf("fetching encounter: %w", ErrMultipleEncounters)
	}

	patient, err := c.findOne(ctx, "patient", stringField(order, "patient_id"))
	if err != nil {
		return nil, fmt.Errorf("fetching patient: %w", err)
	}

	return map[string]any{
		"order":          order,
		"procedure":      procedure,
		"test_kit_types": testKitType,
		"facility":       facility,
		"encounter":      encounters[0],
		"patient":        patient,
	}, nil
}

// EncounterData fetches the encounter documents for a vaccination event,
// which never carries an order.
func (c *Client) EncounterData(ctx context.Context, encounterID string) ([]map[string]any, error) {
	encounters, err := c.findAll(ctx, "encounter", bson.M{"id": encounterID})
	if err != nil {
		return nil, fmt.Errorf("fetching encounter: %w", err)
	}
	return encounters, nil
}

// findOne fetches a single document by its id field.
func (c *Client) findOne(ctx context.Context, collection, id string) (map[string]any, error) {
	var doc map[string]any
	err := c.withRetry(ctx, collection, func(ctx context.Context) error {
		return c.db.Collection(collection).FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// findAll fetches every document matching the filter.
func (c *Client) findAll(ctx context.Context, collection string, filter bson.M) ([]map[string]any, error) {
	var docs []map[string]any
	err := c.withRetry(ctx, collection, func(ctx context.Context) error {
		cursor, err := c.db.Collection(collection).Find(ctx, filter)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		docs = docs[:0]
		for cursor.Next(ctx) {
			var doc map[string]any
			if err := cursor.Decode(&doc); err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return cursor.Err()
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// withRetry runs fn up to the configured attempt count with a fixed delay
// between attempts and a per-attempt timeout.
func (c *Client) withRetry(ctx context.Context, collection string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		}
		err = fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		if attempt < c.cfg.RetryAttempts {
			c.logger.Warn().Err(err).Str("collection", collection).Int("attempt", attempt).Msg("document database read failed, retrying")
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}
