// internal/app/features/health/handler_test.go
package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/renewhub/internal/testutil"
	"go.uber.org/zap"
)

func TestServeHealthy(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := NewHandler(db.Client(), 2, zap.NewNop())

	w := httptest.NewRecorder()
	h.Serve(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}

	var resp struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		Bots     int    `json:"bot_endpoints"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Database != "connected" || resp.Bots != 2 {
		t.Errorf("response: %+v", resp)
	}
}
