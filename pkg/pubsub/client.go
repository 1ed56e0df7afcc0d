package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

var (
	ErrNotInitialized     = errors.New("pubsub client not initialized")
	ErrTopicNotConfigured = errors.New("pubsub topic not configured")

	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscriptions   = errors.New("pubsub subscription name is required")
)

// Client owns the Pub/Sub connection and one ordered publisher per topic.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails fast when a configured subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp, cfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     psClient,
		projectID:  gcp.ProjectID,
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.checkSubscriptions(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"project_id": gcp.ProjectID,
			"emulator":   strings.TrimSpace(cfg.EmulatorHost) != "",
		})
		logg.Info(ctx, "pubsub client initialized")
	}
	return c, nil
}

// clientOptions: emulator first, then inline credentials, then a credentials file; none means ADC.
func clientOptions(gcp config.GCPConfig, cfg config.PubSubConfig) []option.ClientOption {
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		return []option.ClientOption{
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	}
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func subscriptionIDs(cfg config.PubSubConfig) []string {
	var ids []string
	for _, id := range []string{cfg.OrdersSubscription, cfg.NotificationSubscription} {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

func (c *Client) checkSubscriptions(ctx context.Context) error {
	ids := subscriptionIDs(c.cfg)
	if len(ids) == 0 {
		return errNoSubscriptions
	}
	for _, id := range ids {
		name := SubscriptionName(c.projectID, id)
		if name == "" {
			return fmt.Errorf("subscription %q not configured", id)
		}
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("subscription %q does not exist", id)
		case err != nil:
			return fmt.Errorf("checking subscription %q: %w", id, err)
		}
	}
	return nil
}

// Subscription returns a subscriber tuned with the configured receive settings.
func (c *Client) Subscription(id string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := SubscriptionName(c.projectID, id)
	if name == "" {
		return nil
	}
	sub := c.client.Subscriber(name)
	applyReceiveSettings(&sub.ReceiveSettings, c.cfg)
	return sub
}

func applyReceiveSettings(rs *pubsub.ReceiveSettings, cfg config.PubSubConfig) {
	if cfg.MaxOutstandingMessages > 0 {
		rs.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}
	if cfg.ReceiveGoroutines > 0 {
		rs.NumGoroutines = cfg.ReceiveGoroutines
	}
}

// OrdersSubscription receives cancellation and refund events from the order ledger.
func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.OrdersSubscription)
}

// NotificationSubscription is attached to the domain topic and feeds in-app notifications.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

// publisher returns the cached ordered publisher for topic, creating it on first use.
func (c *Client) publisher(topic string) (*pubsub.Publisher, error) {
	if c == nil || c.client == nil {
		return nil, ErrNotInitialized
	}
	name := TopicName(c.projectID, topic)
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrTopicNotConfigured, topic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p, nil
	}
	p := c.client.Publisher(name)
	p.EnableMessageOrdering = true
	c.publishers[name] = p
	return p, nil
}

// Publish sends msg and waits for the server ID. A failed ordered publish pauses its key,
// so the key is resumed before returning to let the next attempt through.
func (c *Client) Publish(ctx context.Context, topic string, msg *pubsub.Message) (string, error) {
	p, err := c.publisher(topic)
	if err != nil {
		return "", err
	}
	id, err := p.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			p.ResumePublish(msg.OrderingKey)
		}
		return "", err
	}
	return id, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrNotInitialized
	}
	return c.checkSubscriptions(ctx)
}

// Close flushes every cached publisher before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}
