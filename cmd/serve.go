package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mifi-dashboard/monitor/metrics"
	"github.com/mifi-dashboard/monitor/poller"
	"github.com/mifi-dashboard/monitor/sink"
	"github.com/mifi-dashboard/monitor/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the device state, lifecycle controls and Prometheus metrics over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Address to listen on (default: :9110)")
	serveCmd.Flags().String("nats", "", "NATS URL to forward snapshots to")
	serveCmd.Flags().Bool("auto-refresh", true, "Start in-process polling on startup")
	serveCmd.Flags().Bool("service", false, "Start background polling on startup")

	_ = viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("nats.url", serveCmd.Flags().Lookup("nats"))
	_ = viper.BindPFlag("serve.auto_refresh", serveCmd.Flags().Lookup("auto-refresh"))
	_ = viper.BindPFlag("serve.service", serveCmd.Flags().Lookup("service"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, reg)
	if err != nil {
		return err
	}
	defer a.close()

	reg.MustRegister(metrics.NewCollector(a.store))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NATS.URL != "" {
		nc, err := sink.Connect(cfg.NATS.URL, "mifi-monitor", a.logger.With("component", "sink"))
		if err != nil {
			return err
		}
		defer nc.Close()

		sub := a.store.Subscribe()
		defer sub.Close()
		fwd := sink.NewForwarder(nc, cfg.NATS.Subject, a.logger.With("component", "sink"))
		go func() {
			if err := fwd.Run(ctx, sub.Updates()); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("nats forwarder stopped", "error", err)
			}
		}()
	}

	switch {
	case viper.GetBool("serve.service"):
		a.poller.StartService()
	case viper.GetBool("serve.auto_refresh"):
		a.poller.StartAutoRefresh()
	default:
		a.poller.LoadMetrics()
	}

	server := &http.Server{
		Addr: cfg.Server.Listen,
		Handler: newHandler(handlerOptions{
			store:       a.store,
			poller:      a.poller,
			gatherer:    reg,
			metricsPath: cfg.Server.MetricsPath,
			deviceURL:   cfg.Device.URL,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("HTTP server shutdown error", "error", err)
		}
	}()

	a.logger.Info("serving", "addr", cfg.Server.Listen, "device", cfg.Device.URL, "version", version)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

type handlerOptions struct {
	store       *store.Store
	poller      *poller.Poller
	gatherer    prometheus.Gatherer
	metricsPath string
	deviceURL   string
}

type stateResponse struct {
	State poller.State `json:"state"`
}

var indexTemplate = template.Must(template.New("index").Parse(`<html>
<head><title>MiFi Monitor</title></head>
<body>
<h1>MiFi Monitor</h1>
<p>Version: {{.Version}}</p>
<p>Device: {{.Device}}</p>
<p><a href="/status">Status</a> | <a href="{{.MetricsPath}}">Metrics</a></p>
</body>
</html>`))

func newHandler(opts handlerOptions) http.Handler {
	if opts.metricsPath == "" {
		opts.metricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+opts.metricsPath, promhttp.HandlerFor(opts.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, opts.store.Current())
	})

	mux.HandleFunc("POST /refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, opts.poller.Refresh(r.Context()))
	})

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, stateResponse{State: opts.poller.State()})
	})

	lifecycle := func(action func()) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			action()
			writeJSON(w, stateResponse{State: opts.poller.State()})
		}
	}
	mux.HandleFunc("POST /auto-refresh", lifecycle(opts.poller.StartAutoRefresh))
	mux.HandleFunc("DELETE /auto-refresh", lifecycle(opts.poller.StopAutoRefresh))
	mux.HandleFunc("POST /service", lifecycle(opts.poller.StartService))
	mux.HandleFunc("DELETE /service", lifecycle(opts.poller.StopService))

	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		streamEvents(w, r, opts.store)
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_ = indexTemplate.Execute(w, map[string]string{
			"Version":     version,
			"Device":      opts.deviceURL,
			"MetricsPath": opts.metricsPath,
		})
	})

	return mux
}

// streamEvents sends every snapshot as a server-sent event until the client
// goes away or the store closes.
func streamEvents(w http.ResponseWriter, r *http.Request, s *store.Store) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case m, ok := <-sub.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(m)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: metrics\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
