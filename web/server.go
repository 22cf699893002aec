package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cryomon/alert"
	"cryomon/config"
	"cryomon/logdata"
	"cryomon/monitor"
)

// Server is the operator surface: live values and monitor toggles over
// HTTP, plus a websocket feed of every emitted change-set.
type Server struct {
	cfg    *config.Config
	mgr    *logdata.Manager
	reg    *monitor.Registry
	mailer *alert.Mailer
	lg     *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, mgr *logdata.Manager, reg *monitor.Registry, mailer *alert.Mailer, lg *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		mgr:    mgr,
		reg:    reg,
		mailer: mailer,
		lg:     lg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) SetupMux() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.statusHandler).Methods("GET")
	api.HandleFunc("/channels", s.channelsHandler).Methods("GET")
	api.HandleFunc("/changes", s.changesHandler).Methods("GET")
	api.HandleFunc("/monitors", s.monitorsHandler).Methods("GET")
	api.HandleFunc("/monitors", s.addMonitorHandler).Methods("POST")
	api.HandleFunc("/monitors", s.removeMonitorHandler).Methods("DELETE")
	api.HandleFunc("/monitors/export", s.exportHandler).Methods("GET")
	api.HandleFunc("/monitors/import", s.importHandler).Methods("POST")
	api.HandleFunc("/alerts/test", s.testAlertHandler).Methods("POST")
	r.HandleFunc("/ws", s.websocketHandler)
	return r
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) {
	srv := &http.Server{
		Addr:    s.cfg.HTTP.Addr,
		Handler: s.SetupMux(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.lg.Warn("HTTP shutdown", zap.Error(err))
		}
	}()
	s.lg.Info("HTTP server listening", zap.String("addr", s.cfg.HTTP.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.lg.Error("HTTP server failed", zap.Error(err))
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.mgr.CurrentStatus())
}

func (s *Server) channelsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.mgr.DumpAll())
}

func (s *Server) changesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.mgr.MostRecentChanges())
}

func (s *Server) monitorsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.reg.Active())
}

type monitorRequest struct {
	Name       string         `json:"name"`
	Channel    string         `json:"channel"`
	Subchannel string         `json:"subchannel"`
	Variables  map[string]any `json:"variables"`
}

func (s *Server) addMonitorHandler(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := monitor.New(req.Name, req.Variables)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reg.Add(req.Channel, req.Subchannel, m)
	s.lg.Info("Monitor activated",
		zap.String("monitor", req.Name), zap.String("channel", req.Channel),
		zap.String("subchannel", req.Subchannel))
	s.persistMonitors()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeMonitorHandler(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reg.Remove(req.Channel, req.Subchannel)
	s.lg.Info("Monitor deactivated",
		zap.String("channel", req.Channel), zap.String("subchannel", req.Subchannel))
	s.persistMonitors()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.reg.Export())
}

func (s *Server) importHandler(w http.ResponseWriter, r *http.Request) {
	entries := make(map[string]monitor.ExportEntry)
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	count := s.reg.Import(entries)
	s.persistMonitors()
	s.writeJSON(w, map[string]int{"imported": count})
}

func (s *Server) testAlertHandler(w http.ResponseWriter, r *http.Request) {
	s.mailer.SendTest(s.mgr.CurrentStatus())
	w.WriteHeader(http.StatusNoContent)
}

// websocketHandler streams every emitted change-set to the client.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.mgr.Subscribe()
	defer s.mgr.Unsubscribe(sub)

	for cs := range sub {
		if err := conn.WriteJSON(cs); err != nil {
			return // connection closed
		}
	}
}

// persistMonitors saves the active set so a restart restores it.
func (s *Server) persistMonitors() {
	if s.cfg.MonitorFile == "" {
		return
	}
	if err := monitor.SaveFile(s.cfg.MonitorFile, s.reg.Export()); err != nil {
		s.lg.Error("Failed to save monitors", zap.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.lg.Warn("Failed to encode response", zap.Error(err))
	}
}
