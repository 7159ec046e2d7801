package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/marxanconnect/connect"
)

// TestMQTTServiceConfigLoading tests configuration loading for the service
func TestMQTTServiceConfigLoading(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		shouldError bool
		errorMsg    string
		check       func(t *testing.T, cfg *connect.Config)
	}{
		{
			name: "valid config",
			configYAML: `mqtt:
  broker: "mqtt://localhost:1883"
  publishPrefix: "reef"
  clientId: "test-client"

rescale:
  samples: 8
  idField: "PUID"
`,
			check: func(t *testing.T, cfg *connect.Config) {
				if cfg.MQTT.Broker != "mqtt://localhost:1883" {
					t.Errorf("Broker = %s, want mqtt://localhost:1883", cfg.MQTT.Broker)
				}
				if cfg.Rescale.Samples != 8 || cfg.Rescale.IDField != "PUID" {
					t.Errorf("Rescale = %+v", cfg.Rescale)
				}
				if !cfg.Rescale.Enabled {
					t.Error("Rescale.Enabled should keep its default")
				}
			},
		},
		{
			name: "no broker disables mqtt",
			configYAML: `mqtt:
  publishPrefix: "reef"
`,
			check: func(t *testing.T, cfg *connect.Config) {
				t.Setenv("MQTT_BROKER", "")
				client, err := connect.InitMQTT(cfg, nil)
				if err != nil || client != nil {
					t.Errorf("InitMQTT() = %v, %v; want nil, nil", client, err)
				}
			},
		},
		{
			name: "map layers",
			configYAML: `map:
  layers:
    - enabled: true
      kind: cu_metric
      metric: vertex_degree
      opacity: 60
`,
			check: func(t *testing.T, cfg *connect.Config) {
				if len(cfg.Map.Layers) != 1 || cfg.Map.Layers[0].Kind != connect.LayerCUMetric {
					t.Errorf("Layers = %+v", cfg.Map.Layers)
				}
			},
		},
		{
			name: "unknown layer kind",
			configYAML: `map:
  layers:
    - enabled: true
      kind: heatmap
`,
			shouldError: true,
			errorMsg:    "heatmap",
		},
		{
			name:        "invalid yaml",
			configYAML:  "mqtt: [unclosed",
			shouldError: true,
			errorMsg:    "parsing config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}

			cfg, err := connect.LoadConfig(configPath)
			if tt.shouldError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// TestMQTTServiceCommandFlow drives a calculate command from the broker
// through the app and checks the published event.
func TestMQTTServiceCommandFlow(t *testing.T) {
	p, dir := fixtureProject(t)
	writeMatrix(t, dir, "pucm.csv", []string{"1", "2"}, []float64{0.5, 0.5, 0, 1})

	app, _ := newTestApp(AppOptions{MqttMode: true})
	app.Store.Replace(p)

	mockClient := connect.NewMockClient()
	mockClient.SetConnected(true)
	app.Publisher = connect.NewPublisher(mockClient, "reef")

	app.handleCommand(connect.Selection{Betweenness: true, Eigenvector: true})

	snapshot := app.Store.Snapshot()
	for _, key := range []string{"betweenness_centrality_pu", "eigenvector_centrality_pu"} {
		if len(snapshot.Metrics[key]) != 2 {
			t.Errorf("metric %s = %v, want 2 values", key, snapshot.Metrics[key])
		}
	}

	msgs := mockClient.Published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	var ev connect.Event
	if err := json.Unmarshal(msgs[0].Payload, &ev); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if ev.Type != connect.EventMetricsCalculated || len(ev.Keys) != 2 {
		t.Errorf("event = %+v", ev)
	}
}

// TestMQTTServiceCommandWarning publishes a warning when the matrix is missing
func TestMQTTServiceCommandWarning(t *testing.T) {
	p, _ := fixtureProject(t)
	app, _ := newTestApp(AppOptions{MqttMode: true})
	app.Store.Replace(p)

	mockClient := connect.NewMockClient()
	mockClient.SetConnected(true)
	app.Publisher = connect.NewPublisher(mockClient, "reef")

	app.handleCommand(connect.Selection{VertexDegree: true})

	ev, ok := app.Publisher.LastEvent(connect.EventWarning)
	if !ok || ev.Warning == nil {
		t.Fatalf("expected a warning event, got %+v", ev)
	}
	if len(app.Store.Snapshot().Metrics) != 0 {
		t.Error("metrics should be untouched after a warning")
	}
}

// TestMQTTServiceDisconnectedPublisher keeps calculating while the broker is away
func TestMQTTServiceDisconnectedPublisher(t *testing.T) {
	p, _ := fixtureProject(t)
	app, _ := newTestApp(AppOptions{MqttMode: true})
	app.Store.Replace(p)
	app.Publisher = connect.NewPublisher(connect.NewMockClient(), "reef")

	app.handleCommand(connect.Selection{SelfRecruitment: true, Space: connect.SpaceCU})

	if got := app.Store.Snapshot().Metrics["self_recruitment_cu"]; len(got) != 2 {
		t.Errorf("self_recruitment_cu = %v, want 2 values", got)
	}
}
