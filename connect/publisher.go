package connect

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Event types published on the events topic
const (
	EventMetricsCalculated = "metrics_calculated"
	EventRescaleFinished   = "rescale_finished"
	EventRescaleFailed     = "rescale_failed"
	EventProjectSaved      = "project_saved"
	EventWarning           = "warning"
)

// Event is a project change notification
type Event struct {
	Type      string   `json:"type"`
	Timestamp int64    `json:"timestamp"`
	Keys      []string `json:"keys,omitempty"`
	Boundary  bool     `json:"boundary,omitempty"`
	Job       *JobInfo `json:"job,omitempty"`
	Warning   *Warning `json:"warning,omitempty"`
	Path      string   `json:"path,omitempty"`
}

// Publisher sends project events to MQTT
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
	last   map[string]Event
	mu     sync.RWMutex
}

// NewPublisher creates an event publisher. A nil client disables publishing.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "marxanconnect"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    1,
		last:   make(map[string]Event),
	}
}

// Publish sends ev to the events topic, stamping it when Timestamp is unset
func (p *Publisher) Publish(ev Event) error {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}

	p.mu.Lock()
	p.last[ev.Type] = ev
	p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	topic := EventsTopic(p.prefix)
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("[MQTT] published %s event", ev.Type)
	return nil
}

// PublishResult announces the outcome of a metric calculation
func (p *Publisher) PublishResult(res Result) error {
	if res.Warning != nil {
		return p.PublishWarning(res.Warning)
	}
	return p.Publish(Event{Type: EventMetricsCalculated, Keys: res.Updated, Boundary: res.Boundary})
}

// PublishJob announces a finished rescale job
func (p *Publisher) PublishJob(job *Job) error {
	info := job.Info()
	switch info.Status {
	case JobSucceeded:
		return p.Publish(Event{Type: EventRescaleFinished, Job: &info})
	case JobWarned:
		return p.Publish(Event{Type: EventWarning, Job: &info, Warning: info.Warning})
	default:
		return p.Publish(Event{Type: EventRescaleFailed, Job: &info})
	}
}

// PublishWarning announces a skipped operation
func (p *Publisher) PublishWarning(w *Warning) error {
	return p.Publish(Event{Type: EventWarning, Warning: w})
}

// PublishSaved announces a project save
func (p *Publisher) PublishSaved(path string) error {
	return p.Publish(Event{Type: EventProjectSaved, Path: path})
}

// LastEvent returns the most recent event of a type, published or not
func (p *Publisher) LastEvent(eventType string) (Event, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ev, ok := p.last[eventType]
	return ev, ok
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published events are retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
