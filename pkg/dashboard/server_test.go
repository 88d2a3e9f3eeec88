package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"aemo_2025-10-26_CLUNY_5min.csv":        "timestamp,CLUNY\n2025-10-26 00:05:00,1\n",
		"aemo_2025-10-27_CLUNY_AGLSOM_5min.csv": "timestamp,CLUNY,AGLSOM\n2025-10-27 00:05:00,12,-6\n2025-10-27 00:10:00,24,\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return New(Config{DataDir: dir})
}

func get(t *testing.T, s *Server, target string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: invalid JSON %q: %v", target, w.Body.String(), err)
	}
	return w.Code, body
}

func TestHealthz(t *testing.T) {
	code, body := get(t, newTestServer(t), "/healthz")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /healthz = %d %v", code, body)
	}
}

func TestDaysAndUnits(t *testing.T) {
	s := newTestServer(t)

	code, body := get(t, s, "/api/v1/days")
	if code != http.StatusOK {
		t.Fatalf("GET /api/v1/days = %d", code)
	}
	days := body["data"].([]any)
	if len(days) != 2 || days[1] != "2025-10-27" {
		t.Errorf("days = %v", days)
	}

	_, body = get(t, s, "/api/v1/units")
	units := body["data"].([]any)
	if len(units) != 2 || units[0] != "AGLSOM" {
		t.Errorf("units = %v", units)
	}
}

func TestSeries(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		target string
		code   int
		count  int
	}{
		{"one day", "/api/v1/series?day=2025-10-27&unit=AGLSOM", http.StatusOK, 2},
		{"all days", "/api/v1/series?unit=cluny", http.StatusOK, 3},
		{"missing unit param", "/api/v1/series?day=2025-10-27", http.StatusBadRequest, 0},
		{"unknown day", "/api/v1/series?day=2024-01-01&unit=CLUNY", http.StatusNotFound, 0},
		{"unknown unit", "/api/v1/series?unit=NOPE", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, s, tt.target)
			if code != tt.code {
				t.Fatalf("status = %d, want %d (%v)", code, tt.code, body)
			}
			if tt.code != http.StatusOK {
				return
			}
			if got := len(body["data"].([]any)); got != tt.count {
				t.Errorf("count = %d, want %d", got, tt.count)
			}
		})
	}
}

func TestKPIs(t *testing.T) {
	s := newTestServer(t)

	code, body := get(t, s, "/api/v1/kpis")
	if code != http.StatusOK {
		t.Fatalf("GET /api/v1/kpis = %d %v", code, body)
	}
	if day := body["meta"].(map[string]any)["day"]; day != "2025-10-27" {
		t.Errorf("default day = %v, want latest", day)
	}
	if n := len(body["data"].([]any)); n != 2 {
		t.Errorf("got %d KPI entries, want 2", n)
	}

	_, body = get(t, s, "/api/v1/kpis?day=2025-10-27&unit=CLUNY")
	data := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("got %d KPI entries, want 1", len(data))
	}
	k := data[0].(map[string]any)
	if k["unit"] != "CLUNY" || k["max_mw"] != 24.0 || k["mean_mw"] != 18.0 {
		t.Errorf("kpis = %v", k)
	}

	if code, _ := get(t, s, "/api/v1/kpis?day=2025-10-27&unit=NOPE"); code != http.StatusNotFound {
		t.Errorf("unknown unit status = %d, want 404", code)
	}
}
