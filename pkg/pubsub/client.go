// Package pubsub owns the Pub/Sub v2 connection shared by the relay and the
// event consumers.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/gcp"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

var errNoSubscriptions = errors.New("pubsub subscription name is required")

type Client struct {
	client  *pubsub.Client
	project string
	cfg     config.PubSubConfig
}

// NewClient connects and fails fast when a configured subscription is missing.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project, err := gcp.ProjectID(gcpCfg)
	if err != nil {
		return nil, err
	}
	raw, err := pubsub.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: raw, project: project, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}
	return c, nil
}

// subscriptionNames lists the configured subscriptions, skipping blanks.
func subscriptionNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.NotificationSubscription, cfg.AnalyticsSubscription} {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Ping checks that every configured subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	names := subscriptionNames(c.cfg)
	if len(names) == 0 {
		return errNoSubscriptions
	}
	for _, name := range names {
		req := &pubsubpb.GetSubscriptionRequest{Subscription: c.subscriptionName(name)}
		if _, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, req); err != nil {
			if gcp.IsNotFound(err) {
				return fmt.Errorf("subscription %q does not exist", name)
			}
			return fmt.Errorf("checking subscription %q: %w", name, err)
		}
	}
	return nil
}

// Subscription returns a subscriber for a short id or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	full := c.subscriptionName(name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns a publisher for a short topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	full := c.topicName(name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionName(name string) string {
	if c == nil || c.client == nil {
		return ""
	}
	return gcp.ResourceName(c.project, "subscriptions", name)
}

func (c *Client) topicName(name string) string {
	if c == nil || c.client == nil {
		return ""
	}
	return gcp.ResourceName(c.project, "topics", name)
}
