package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"spinframe/internal/resource"
)

func TestHealthChecks(t *testing.T) {
	tests := []struct {
		name           string
		endpoint       string
		mockSetup      func(*testDeps)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Healthz Always OK",
			endpoint:       "/healthz",
			expectedStatus: http.StatusOK,
			expectedBody:   "healthy",
		},
		{
			name:           "Readyz Success",
			endpoint:       "/readyz",
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:     "Readyz Degraded Under Pressure",
			endpoint: "/readyz",
			mockSetup: func(d *testDeps) {
				d.resources.snap = resource.Snapshot{MemoryPressure: resource.LevelCritical, DiskPressure: resource.LevelNormal}
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"degraded"`,
		},
		{
			name:           "Readyz Ignores Snapshot Error",
			endpoint:       "/readyz",
			mockSetup:      func(d *testDeps) { d.resources.err = errors.New("no meminfo") },
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"ready"`,
		},
		{
			name:           "Readyz Catalog Fail",
			endpoint:       "/readyz",
			mockSetup:      func(d *testDeps) { d.catalog.pingErr = errors.New("db down") },
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "Catalog unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			if tt.mockSetup != nil {
				tt.mockSetup(deps)
			}

			req := httptest.NewRequest(http.MethodGet, tt.endpoint, nil)
			rr := httptest.NewRecorder()
			deps.router().ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedBody) {
				t.Errorf("body %q does not contain %q", rr.Body.String(), tt.expectedBody)
			}
		})
	}
}
