// Package pubsub wraps the Pub/Sub v2 client used by the outbox publisher and
// the notification worker.
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
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// Role selects which resources a process needs to exist before it starts.
type Role int

const (
	// RolePublisher checks the event topics.
	RolePublisher Role = iota
	// RoleSubscriber checks the notification subscription.
	RoleSubscriber
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client owns one Pub/Sub connection plus a publisher per topic. Publishers
// are created lazily and stopped on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	role      Role

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails fast when a resource required by role is
// missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     psClient,
		projectID:  projectID,
		cfg:        cfg,
		role:       role,
		publishers: make(map[string]*pubsub.Publisher),
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "pubsub_project", projectID), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if file := strings.TrimSpace(gcp.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

// requiredResources lists the resources a role depends on as (kind, name)
// pairs. Blank names are reported so a missing env var is caught at boot.
func requiredResources(cfg config.PubSubConfig, role Role) []resource {
	switch role {
	case RoleSubscriber:
		return []resource{{kind: kindSubscription, name: strings.TrimSpace(cfg.NotificationSubscription)}}
	default:
		return []resource{
			{kind: kindTopic, name: strings.TrimSpace(cfg.OrdersTopic)},
			{kind: kindTopic, name: strings.TrimSpace(cfg.PaymentsTopic)},
			{kind: kindTopic, name: strings.TrimSpace(cfg.NotificationTopic)},
		}
	}
}

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

type resource struct {
	kind string
	name string
}

// Ping confirms every resource the client's role relies on still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, res := range requiredResources(c.cfg, c.role) {
		if err := c.checkResource(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) checkResource(ctx context.Context, res resource) error {
	if res.name == "" {
		return fmt.Errorf("pubsub %s name is required", strings.TrimSuffix(res.kind, "s"))
	}
	fullName := resourceName(c.projectID, res.kind, res.name)

	var err error
	switch res.kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	default:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: fullName})
	}
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("pubsub %s %q does not exist", res.kind, res.name)
	}
	return fmt.Errorf("checking pubsub %s %q: %w", res.kind, res.name, err)
}

// NotificationSubscription returns the subscriber feeding the notification worker.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := resourceName(c.projectID, kindSubscription, c.cfg.NotificationSubscription)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

// Publisher returns the shared publisher for topic. Message ordering is
// enabled so events for one aggregate arrive in the order they were written.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := resourceName(c.projectID, kindTopic, topic)
	if fullName == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[fullName]; ok {
		return p
	}
	p := c.client.Publisher(fullName)
	p.EnableMessageOrdering = true
	c.publishers[fullName] = p
	return p
}

// Close flushes every publisher and releases the connection.
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

// resourceName expands a short ID into projects/<p>/<kind>/<id>. Names that
// are already fully qualified pass through.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/" + kind + "/" + n
}
