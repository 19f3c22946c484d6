package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus string
		wantDB     string
	}{
		{"healthy", fakePinger{}, statusHealthy, statusHealthy},
		{"ping failure", fakePinger{err: errors.New("no reachable servers")}, statusDegraded, statusUnhealthy},
		{"no store", nil, statusDegraded, statusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", NewHealthHandler(config.Default(), tt.db).HealthCheck)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status code = %d, want 200", w.Code)
			}

			var body struct {
				Status   string `json:"status"`
				Database struct {
					Status string `json:"status"`
					Driver string `json:"driver"`
				} `json:"database"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Database.Status != tt.wantDB {
				t.Errorf("database.status = %q, want %q", body.Database.Status, tt.wantDB)
			}
			if body.Database.Driver != config.DriverMemory {
				t.Errorf("database.driver = %q", body.Database.Driver)
			}
		})
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want int
	}{
		{"ready", fakePinger{}, http.StatusOK},
		{"store down", fakePinger{err: errors.New("server selection timeout")}, http.StatusServiceUnavailable},
		{"no store", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/ready", NewHealthHandler(nil, tt.db).Readiness)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.want {
				t.Errorf("status code = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHealthCheck_SanitizerSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Sanitizer.BatchSize = 5
	cfg.Sanitizer.SkipRedacted = true

	report := NewHealthHandler(cfg, fakePinger{}).report(context.Background())
	if report.Sanitizer.BatchSize != 5 || !report.Sanitizer.SkipRedacted {
		t.Errorf("sanitizer = %+v", report.Sanitizer)
	}
	if report.System.NumCPU == 0 {
		t.Error("num_cpu should be set")
	}
}
