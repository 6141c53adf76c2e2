// Command server runs a meshrpc TCP RPC host: it accepts connections on
// Config.Transport.TCPListenAddr, builds one Session per connection routed
// against a fixed method table, and serves a debug introspection HTTP
// endpoint (internal/monitoring) alongside it.
package main

import (
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/config"
	"github.com/ocx/meshrpc/internal/eventproc"
	"github.com/ocx/meshrpc/internal/monitor"
	"github.com/ocx/meshrpc/internal/monitoring"
	"github.com/ocx/meshrpc/internal/protocoladapter"
	"github.com/ocx/meshrpc/pkg/rpc"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, continuing with process environment")
	}
	cfg := config.Get()

	group := rpc.NewSessionGroup()
	builder := rpc.NewServiceBuilder()
	echo := rpc.NewSignature[string]("echo")
	rpc.MustRoute(builder, echo, func(msg string) string { return msg })
	svc := builder.Build()

	mon := buildMonitor(cfg)

	debugSrv := monitoring.NewServer(nil, group)
	go func() {
		slog.Info("serving debug introspection", "addr", cfg.Server.Addr)
		if err := http.ListenAndServe(cfg.Server.Addr, debugSrv); err != nil {
			slog.Error("debug server exited", "error", err)
		}
	}()

	if cfg.Monitor.Backend == "prometheus" {
		go func() {
			slog.Info("serving prometheus metrics", "addr", cfg.Monitor.PrometheusListenAddr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Monitor.PrometheusListenAddr, mux); err != nil {
				slog.Error("prometheus listener exited", "error", err)
			}
		}()
	}

	archiveCfg := archive.Config{
		UseIntegerKey:        cfg.Protocol.UseIntegerKey,
		AllowMissingArgument: cfg.Protocol.AllowMissingArgument,
		AllowUnknownArgument: cfg.Protocol.AllowUnknownArgument,
		MergeOnRead:          cfg.Protocol.MergeOnRead,
	}

	if cfg.Transport.Kind == "grpc" {
		runGRPCTunnel(cfg, svc, mon, group, archiveCfg)
		return
	}

	listener, err := net.Listen("tcp", cfg.Transport.TCPListenAddr)
	if err != nil {
		slog.Error("listen failed", "addr", cfg.Transport.TCPListenAddr, "error", err)
		os.Exit(1)
	}
	slog.Info("meshrpc listening", "addr", cfg.Transport.TCPListenAddr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			slog.Error("accept failed", "error", err)
			continue
		}

		proc := eventproc.NewGoroutineEventProc()
		sess, err := rpc.NewSessionBuilder().
			Transport(bytestream.NewTCPStream(conn)).
			Protocol(protocoladapter.NewMsgpackRPC(archiveCfg, archiveCfg)).
			EventProc(proc).
			Service(svc).
			Monitor(mon).
			Build()
		if err != nil {
			slog.Error("session build failed", "error", err)
			proc.Close()
			conn.Close()
			continue
		}

		group.Add(sess.Internal())
		slog.Info("accepted connection", "remote", conn.RemoteAddr().String())
	}
}

// runGRPCTunnel serves sessions over bytestream.GRPCStream instead of raw
// TCP: every bidi stream opened against the tunnel service gets a
// protocoladapter.GRPCAdapter-backed Session, built the same way the plain
// TCP path does except for Transport/Protocol.
func runGRPCTunnel(cfg *config.Config, svc *rpc.Service, mon monitor.Monitor, group *rpc.SessionGroup, archiveCfg archive.Config) {
	listener, err := net.Listen("tcp", cfg.Transport.GRPCListenAddr)
	if err != nil {
		slog.Error("grpc listen failed", "addr", cfg.Transport.GRPCListenAddr, "error", err)
		os.Exit(1)
	}

	srv := grpc.NewServer()
	bytestream.RegisterTunnelService(srv, func(stream *bytestream.GRPCStream) {
		proc := eventproc.NewGoroutineEventProc()
		defer proc.Close()

		done := make(chan struct{})
		sess, err := rpc.NewSessionBuilder().
			Transport(stream).
			Protocol(protocoladapter.NewGRPCAdapter(archiveCfg, archiveCfg)).
			EventProc(proc).
			Service(svc).
			Monitor(untilExpired(mon, done)).
			Build()
		if err != nil {
			slog.Error("grpc session build failed", "error", err)
			return
		}

		group.Add(sess.Internal())
		<-done // keep the stream open for the session's lifetime
	})

	slog.Info("meshrpc listening (grpc tunnel)", "addr", cfg.Transport.GRPCListenAddr)
	if err := srv.Serve(listener); err != nil {
		slog.Error("grpc serve exited", "error", err)
	}
}

// expiryMonitor forwards every event to the wrapped Monitor and additionally
// closes done the first time OnSessionExpired fires. Each gRPC tunnel
// connection builds its own Session against its own expiryMonitor instance,
// so there is never more than one session's events to watch for.
type expiryMonitor struct {
	monitor.Monitor
	once sync.Once
	done chan struct{}
}

func untilExpired(m monitor.Monitor, done chan struct{}) *expiryMonitor {
	return &expiryMonitor{Monitor: m, done: done}
}

func (e *expiryMonitor) OnSessionExpired(p monitor.Profile) {
	e.Monitor.OnSessionExpired(p)
	e.once.Do(func() { close(e.done) })
}

func buildMonitor(cfg *config.Config) monitor.Monitor {
	switch cfg.Monitor.Backend {
	case "prometheus":
		return monitor.NewPrometheusMonitor(prometheus.DefaultRegisterer)
	default:
		return monitor.NewSlogMonitor(slog.Default())
	}
}
