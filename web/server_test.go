package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cryomon/alert"
	"cryomon/config"
	"cryomon/logdata"
	"cryomon/models"
	"cryomon/monitor"
)

func newTestServer(t *testing.T) (*Server, *monitor.Registry, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "24-06-10")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "CH1 T 24-06-10.log"),
		[]byte("10-06-24,12:00:00,273.15\n"), 0644))

	cfg := &config.Config{
		LogPath:             root,
		HistoryLimit:        300,
		BatchInterval:       1,
		SubchannelDelimiter: ":",
		MonitorFile:         filepath.Join(t.TempDir(), "monitors.json"),
		HTTP:                config.HTTPConfig{Addr: ":0"},
		Mail:                config.MailConfig{DebugDir: t.TempDir()},
	}

	mgr, err := logdata.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	reg := monitor.NewRegistry(":", zap.NewNop())
	mailer := alert.NewMailer(cfg.Mail, zap.NewNop())

	return NewServer(cfg, mgr, reg, mailer, zap.NewNop()), reg, cfg.Mail.DebugDir
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.SetupMux(), "GET", "/api/v1/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]models.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Contains(t, status, "CH1 T")
	assert.Equal(t, 273.15, status["CH1 T"].Value)
}

func TestChannelsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.SetupMux(), "GET", "/api/v1/channels", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var dump map[string][]models.Row
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dump))
	assert.Contains(t, dump, "CH1 T")
}

func TestMonitorLifecycle(t *testing.T) {
	srv, reg, _ := newTestServer(t)
	h := srv.SetupMux()

	rec := doJSON(t, h, "POST", "/api/v1/monitors", map[string]any{
		"name":      "OutRangeMonitor",
		"channel":   "CH1 T",
		"variables": map[string]any{"minimum": 0.0, "maximum": 300.0},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, reg.Active(), 1)

	rec = doJSON(t, h, "GET", "/api/v1/monitors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []monitor.ActiveMonitor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	require.Len(t, active, 1)
	assert.Equal(t, "CH1 T", active[0].Channel)
	assert.Equal(t, "OutRangeMonitor", active[0].Name)

	rec = doJSON(t, h, "DELETE", "/api/v1/monitors", map[string]any{
		"channel": "CH1 T",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, reg.Active())
}

func TestAddMonitorRejectsUnknownType(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.SetupMux(), "POST", "/api/v1/monitors", map[string]any{
		"name":    "FancyMonitor",
		"channel": "CH1 T",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitorPersistenceAcrossAdd(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.SetupMux(), "POST", "/api/v1/monitors", map[string]any{
		"name":    "WhenOn",
		"channel": "CH1 T",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	saved, err := monitor.LoadFile(srv.cfg.MonitorFile)
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestExportImportEndpoints(t *testing.T) {
	srv, reg, _ := newTestServer(t)
	h := srv.SetupMux()

	m, err := monitor.New("WhenOff", nil)
	require.NoError(t, err)
	reg.Add("CH1 T", "", m)

	rec := doJSON(t, h, "GET", "/api/v1/monitors/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var exported map[string]monitor.ExportEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	require.Len(t, exported, 1)

	reg.Remove("CH1 T", "")
	require.Empty(t, reg.Active())

	rec = doJSON(t, h, "POST", "/api/v1/monitors/import", exported)
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result["imported"])
	assert.Len(t, reg.Active(), 1)
}

func TestTestAlertEndpoint(t *testing.T) {
	srv, _, debugDir := newTestServer(t)
	rec := doJSON(t, srv.SetupMux(), "POST", "/api/v1/alerts/test", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	files, err := filepath.Glob(filepath.Join(debugDir, "alert_*.email"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestBadRequestBody(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/v1/monitors", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	srv.SetupMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
