package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"proj", "ds-settlement-events", "projects/proj/topics/ds-settlement-events"},
		{"proj", " projects/other/topics/t ", "projects/other/topics/t"},
		{"", "ds-settlement-events", ""},
		{"proj", "  ", ""},
	}
	for _, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestTopicNames(t *testing.T) {
	if names := topicNames(config.PubSubConfig{}); len(names) != 0 {
		t.Fatalf("expected no topics, got %v", names)
	}
	names := topicNames(config.PubSubConfig{SettlementsTopic: " settlements "})
	if len(names) != 1 || names[0] != "settlements" {
		t.Fatalf("unexpected topics %v", names)
	}
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	if c.SettlementsPublisher() != nil {
		t.Fatal("expected nil publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestClientOptionsPreferInlineCredentials(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	opts := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"})
	if len(opts) != 1 {
		t.Fatalf("expected a single credential option, got %d", len(opts))
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{SettlementsTopic: "t"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil); !errors.Is(err, errNoTopics) {
		t.Fatalf("expected topic error, got %v", err)
	}
	var c *Client
	if err := c.Ping(ctx); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}
