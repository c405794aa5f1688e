package pubsub

import (
	"context"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"proj", "sf-order-events", "projects/proj/topics/sf-order-events"},
		{"proj", "projects/other/topics/x", "projects/other/topics/x"},
		{"proj", "  ", ""},
		{"", "topic", ""},
	}
	for _, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("topicResourceName(%q,%q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: "orders", NotificationTopic: " "})
	if len(names) != 1 || names[0] != "orders" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestNilClientPublisher(t *testing.T) {
	var c *Client
	if c.Publisher("orders") != nil {
		t.Fatal("expected nil publisher from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func TestPublisherIsSharedPerTopic(t *testing.T) {
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial fake pubsub: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	ps, err := pubsub.NewClient(context.Background(), "proj", option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c := &Client{
		client:     ps,
		projectID:  "proj",
		cfg:        config.PubSubConfig{OrdersTopic: "orders", NotificationTopic: "notices"},
		publishers: map[string]*pubsub.Publisher{},
	}

	first := c.Publisher("orders")
	if first == nil || !first.EnableMessageOrdering {
		t.Fatalf("expected ordered publisher, got %+v", first)
	}
	if again := c.Publisher("projects/proj/topics/orders"); again != first {
		t.Fatal("expected the cached publisher for the full resource name")
	}
	if c.NotificationPublisher() == first {
		t.Fatal("notification topic must not share the orders publisher")
	}
	if len(c.publishers) != 2 {
		t.Fatalf("expected 2 cached publishers, got %d", len(c.publishers))
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(c.publishers) != 0 {
		t.Fatal("close should drop cached publishers")
	}
}
