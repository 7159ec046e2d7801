package connect

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func connectedPublisher(t *testing.T) (*Publisher, *MockClient) {
	t.Helper()
	mockClient := NewMockClient()
	mockClient.SetConnected(true)
	return NewPublisher(mockClient, "reef"), mockClient
}

func decodeEvent(t *testing.T, msg MockMessage) Event {
	t.Helper()
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("invalid event payload %q: %v", msg.Payload, err)
	}
	return ev
}

func TestNewPublisher(t *testing.T) {
	publisher := NewPublisher(nil, "")
	if publisher.prefix != "marxanconnect" {
		t.Errorf("Default prefix = %s, want marxanconnect", publisher.prefix)
	}
	if publisher.qos != 1 {
		t.Errorf("Default QoS = %d, want 1", publisher.qos)
	}
	if publisher.retain {
		t.Error("Default retain should be false")
	}
}

func TestPublisher_PublishResult(t *testing.T) {
	publisher, mockClient := connectedPublisher(t)

	err := publisher.PublishResult(Result{Updated: []string{"vertex_degree_pu"}, Boundary: true})
	if err != nil {
		t.Fatalf("PublishResult() error = %v", err)
	}

	msgs := mockClient.Published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].Topic != "reef/events" {
		t.Errorf("Topic = %s, want reef/events", msgs[0].Topic)
	}
	if msgs[0].QoS != 1 || msgs[0].Retain {
		t.Errorf("QoS/retain = %d/%v, want 1/false", msgs[0].QoS, msgs[0].Retain)
	}

	ev := decodeEvent(t, msgs[0])
	if ev.Type != EventMetricsCalculated {
		t.Errorf("Type = %s, want %s", ev.Type, EventMetricsCalculated)
	}
	if len(ev.Keys) != 1 || ev.Keys[0] != "vertex_degree_pu" || !ev.Boundary {
		t.Errorf("event = %+v", ev)
	}
	if ev.Timestamp == 0 {
		t.Error("Timestamp should be set")
	}
}

func TestPublisher_PublishResultWarning(t *testing.T) {
	publisher, mockClient := connectedPublisher(t)

	w := &Warning{Path: "/data/pucm.csv", Message: "missing"}
	if err := publisher.PublishResult(Result{Warning: w}); err != nil {
		t.Fatal(err)
	}

	ev := decodeEvent(t, mockClient.Published()[0])
	if ev.Type != EventWarning || ev.Warning == nil || ev.Warning.Path != "/data/pucm.csv" {
		t.Errorf("event = %+v, want warning event", ev)
	}
}

func TestPublisher_PublishJob(t *testing.T) {
	tests := []struct {
		name string
		fn   JobFunc
		want string
	}{
		{"succeeded", func(context.Context) (*Warning, error) { return nil, nil }, EventRescaleFinished},
		{"warned", func(context.Context) (*Warning, error) { return &Warning{Message: "no cm"}, nil }, EventWarning},
		{"failed", func(context.Context) (*Warning, error) { return nil, errors.New("boom") }, EventRescaleFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher, mockClient := connectedPublisher(t)
			job := NewJobRunner(nil).Submit(context.Background(), "rescale", tt.fn)
			<-job.Done()

			if err := publisher.PublishJob(job); err != nil {
				t.Fatal(err)
			}
			ev := decodeEvent(t, mockClient.Published()[0])
			if ev.Type != tt.want {
				t.Errorf("Type = %s, want %s", ev.Type, tt.want)
			}
			if ev.Job == nil || ev.Job.ID != job.ID {
				t.Errorf("event job = %+v, want %s", ev.Job, job.ID)
			}
		})
	}
}

func TestPublisher_NotConnected(t *testing.T) {
	mockClient := NewMockClient()
	publisher := NewPublisher(mockClient, "reef")

	if err := publisher.PublishSaved("/tmp/p.json"); err == nil {
		t.Error("expected error when client is disconnected")
	}
	if err := NewPublisher(nil, "reef").PublishSaved("/tmp/p.json"); err == nil {
		t.Error("expected error with nil client")
	}

	// The event is remembered even though it was not sent
	ev, ok := publisher.LastEvent(EventProjectSaved)
	if !ok || ev.Path != "/tmp/p.json" {
		t.Errorf("LastEvent = %+v, %v", ev, ok)
	}
	if len(mockClient.Published()) != 0 {
		t.Error("nothing should be published while disconnected")
	}
}

func TestPublisher_PublishError(t *testing.T) {
	publisher, mockClient := connectedPublisher(t)
	mockClient.SetPublishError(errors.New("queue full"))

	if err := publisher.PublishWarning(&Warning{Message: "x"}); err == nil {
		t.Error("expected publish error")
	}
}

func TestPublisher_LastEvent(t *testing.T) {
	publisher, _ := connectedPublisher(t)

	if _, ok := publisher.LastEvent(EventProjectSaved); ok {
		t.Error("LastEvent should be empty before any publish")
	}

	_ = publisher.Publish(Event{Type: EventProjectSaved, Path: "a.json", Timestamp: 42})
	_ = publisher.Publish(Event{Type: EventProjectSaved, Path: "b.json"})

	ev, ok := publisher.LastEvent(EventProjectSaved)
	if !ok || ev.Path != "b.json" {
		t.Errorf("LastEvent = %+v, want b.json", ev)
	}
}

func TestPublisher_QoSAndRetain(t *testing.T) {
	publisher, mockClient := connectedPublisher(t)

	publisher.SetQoS(2)
	publisher.SetQoS(3) // out of range, ignored
	publisher.SetRetain(true)

	if err := publisher.PublishSaved("p.json"); err != nil {
		t.Fatal(err)
	}
	msg := mockClient.Published()[0]
	if msg.QoS != 2 || !msg.Retain {
		t.Errorf("QoS/retain = %d/%v, want 2/true", msg.QoS, msg.Retain)
	}

	ev := decodeEvent(t, msg)
	if ev.Timestamp == 0 {
		t.Error("Timestamp should be stamped")
	}
}
