package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub settlements topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// ErrTopicMissing is returned when a configured topic has not been
// provisioned. Topics are infrastructure; the relay never creates them.
var ErrTopicMissing = errors.New("pubsub topic does not exist")

// Client wraps the Pub/Sub v2 client with the project's topic set.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	settle    string
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	raw, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:    raw,
		projectID: projectID,
		topics:    topics,
		settle:    strings.TrimSpace(cfg.SettlementsTopic),
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials over a key file; with neither the
// library falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	if t := strings.TrimSpace(cfg.SettlementsTopic); t != "" {
		names = append(names, t)
	}
	return names
}

// Ping checks that every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, name := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: topicResourceName(c.projectID, name),
		})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("%w: %s", ErrTopicMissing, name)
		case err != nil:
			return fmt.Errorf("checking topic %q: %w", name, err)
		}
	}
	return nil
}

// Publisher returns a handle for a topic id or full resource name. Callers own
// the handle and must Stop it.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := topicResourceName(c.projectID, name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) SettlementsPublisher() *pubsub.Publisher {
	if c == nil {
		return nil
	}
	return c.Publisher(c.settle)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// topicResourceName expands a bare topic id to projects/<p>/topics/<id>.
func topicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
