package metrics

import (
	"testing"
)

func TestNewMetrics(t *testing.T) {
	config := DefaultMetricsConfig()
	metrics, err := NewMetrics(config)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Metrics instance is nil")
	}

	if metrics.IsRunning() {
		t.Error("Metrics should not be running initially")
	}
}

func TestMetricsConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  MetricsConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: MetricsConfig{
				Enabled: true,
				Port:    9090,
				Path:    "/metrics",
				Host:    "localhost",
			},
			wantErr: false,
		},
		{
			name: "invalid port - too low",
			config: MetricsConfig{
				Enabled: true,
				Port:    0,
				Path:    "/metrics",
				Host:    "localhost",
			},
			wantErr: true,
		},
		{
			name: "invalid port - too high",
			config: MetricsConfig{
				Enabled: true,
				Port:    70000,
				Path:    "/metrics",
				Host:    "localhost",
			},
			wantErr: true,
		},
		{
			name: "disabled config skips validation",
			config: MetricsConfig{
				Enabled: false,
				Port:    -1,
				Path:    "",
				Host:    "",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("MetricsConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetrics_RegisterDuplicate(t *testing.T) {
	m, err := NewMetrics(DefaultMetricsConfig())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if _, err := m.RegisterCounter("test_counter", "help", []string{"label"}); err != nil {
		t.Fatalf("First registration failed: %v", err)
	}

	if _, err := m.RegisterCounter("test_counter", "help", []string{"label"}); err != ErrMetricAlreadyRegistered {
		t.Errorf("Expected ErrMetricAlreadyRegistered, got %v", err)
	}
}

func TestMetrics_StopWithoutStart(t *testing.T) {
	m, err := NewMetrics(DefaultMetricsConfig())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if err := m.Stop(); err != ErrServerNotRunning {
		t.Errorf("Expected ErrServerNotRunning, got %v", err)
	}
}

func TestMetrics_DisabledStartIsNoop(t *testing.T) {
	config := DefaultMetricsConfig()
	config.Enabled = false

	m, err := NewMetrics(config)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if err := m.Start(); err != nil {
		t.Errorf("Disabled metrics Start should be a no-op, got %v", err)
	}

	if m.IsRunning() {
		t.Error("Disabled metrics should not report running")
	}
}

func TestNewSinkMetrics(t *testing.T) {
	m, err := NewMetrics(DefaultMetricsConfig())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	sm, err := NewSinkMetrics(m)
	if err != nil {
		t.Fatalf("Failed to create sink metrics: %v", err)
	}

	// 全部指标族已注册；记录操作不应panic
	sm.SetConnectionState("cam", ConnStateWaiting)
	sm.SetConnectionState("cam", ConnStateConnected)
	sm.RecordFrameForwarded("cam", 4096, 33000)
	sm.RecordFrameFailed("cam")
	sm.RecordFrameDiscarded("cam")
	sm.RecordNALUnits("cam", 3)
	sm.RecordControlMessage("cam")

	families, err := m.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected registered metric families")
	}

	// 重复注册同一套sink指标必须失败
	if _, err := NewSinkMetrics(m); err == nil {
		t.Error("Expected duplicate sink metrics registration to fail")
	}
}
