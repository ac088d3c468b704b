package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gopkg.in/natefinch/lumberjack.v2"

	"netverify/config"
	"netverify/distributed"
	"netverify/network"
	"netverify/query"
	"netverify/reducer"
	"netverify/rtable"
	"netverify/solver"
	"netverify/trace"
	"netverify/transport"
	"netverify/verifier"
)

func initLogging(logDir string) {
	os.MkdirAll(logDir, 0755)

	fileLogger := &lumberjack.Logger{
		Filename:   logDir + "/netverify.log",
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}

	multiWriter := io.MultiWriter(os.Stdout, fileLogger)
	log.SetOutput(multiWriter)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(log.InfoLevel)
	log.Infof("logging initialized: file=%s/netverify.log, stdout=enabled", logDir)
}

func main() {
	configPath := flag.String("config", "netverify.toml", "path to TOML settings file")
	networkPath := flag.String("network", "", "path to network topology JSON (overrides config)")
	routingPath := flag.String("routing", "", "path to routing tables JSON (overrides config)")
	engine := flag.Int("e", 1, "saturation engine: 0 (no verification), 1 (post*), 2 (pre*)")
	reduction := flag.Int("r", -1, "reduction level 0..4 (defaults to the value in -config)")
	traceFlag := flag.Bool("t", false, "include the witness trace in each query's JSON report")
	serve := flag.String("serve", "", "run as a distributed worker against the given etcd endpoint list (comma-separated), exposing a gRPC health endpoint")
	remoteWorker := flag.String("remote-worker", "", "run as a remote-worker listening for multiplexed queries on the given address")
	remoteAddr := flag.String("remote", "", "evaluate queries against a --remote-worker at this address instead of locally")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
		log.WithError(err).Warnf("could not load %s, using defaults", *configPath)
	}
	if *networkPath != "" {
		cfg.Network = *networkPath
	}
	if *routingPath != "" {
		cfg.Routing = *routingPath
	}
	// The usage line's trailing `queries.txt` positional argument overrides
	// the queries file named in -config.
	if args := flag.Args(); len(args) > 0 {
		cfg.Queries = args[0]
	}
	if *reduction >= 0 {
		cfg.ReductionLevel = *reduction
	}

	initLogging(cfg.LogDir)

	level, err := reducer.ParseLevel(cfg.ReductionLevel)
	if err != nil {
		log.Fatalf("invalid reduction level: %v", err)
	}
	eng, err := solver.ParseEngine(*engine)
	if err != nil {
		log.Fatalf("invalid engine: %v", err)
	}
	opt := verifier.Options{ReductionLevel: level, Engine: eng}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case *serve != "":
		runDistributedWorker(ctx, *serve, cfg, opt)
	case *remoteWorker != "":
		runRemoteWorker(*remoteWorker, cfg, opt)
	case *remoteAddr != "":
		runViaRemote(*remoteAddr, cfg)
	default:
		runLocal(cfg, opt, *traceFlag)
		return
	}

	log.Infof("netverify running, awaiting shutdown signal")
	<-signalChan
	log.Infof("received signal, shutting down")
	cancel()
	time.Sleep(1 * time.Second)
}

func loadTopology(cfg config.Settings) (*network.Network, map[network.RouterID]*rtable.Table, []*query.Query) {
	net, err := config.LoadNetwork(cfg.Network)
	if err != nil {
		log.Fatalf("loading network: %v", err)
	}
	if err := net.ValidatePairing(); err != nil {
		log.Fatalf("network pairing invariant violated: %v", err)
	}
	tables, err := config.LoadRouting(cfg.Routing, net)
	if err != nil {
		log.Fatalf("loading routing tables: %v", err)
	}
	queries, err := config.LoadQueries(cfg.Queries)
	if err != nil {
		log.Fatalf("loading queries: %v", err)
	}
	return net, tables, queries
}

func runLocal(cfg config.Settings, opt verifier.Options, includeTrace bool) {
	net, tables, queries := loadTopology(cfg)

	workers := verifier.SizePool(cfg.Workers)
	runner, err := verifier.NewBatchRunner(net, tables, opt, workers)
	if err != nil {
		log.Fatalf("creating batch runner: %v", err)
	}
	defer runner.Close()

	log.Infof("evaluating %d queries with %d workers, engine=%v", len(queries), workers, opt.Engine)
	reports := runner.RunAll(queries)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, rep := range reports {
		if !includeTrace {
			for i := range rep.Modes {
				rep.Modes[i].Trace = trace.Trace{}
			}
		}
		if err := enc.Encode(rep); err != nil {
			log.WithError(err).Error("encoding report")
		}
	}
}

// serveHealth starts a gRPC server exposing only grpc_health_v1, so an
// orchestrator watching the etcd-coordinated worker fleet can probe
// liveness the standard way instead of polling an ad hoc endpoint.
func serveHealth(addr string) (*grpc.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cmd/verifier: listening for health checks on %s: %w", addr, err)
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("netverify", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, hs)

	go func() {
		if err := srv.Serve(ln); err != nil {
			log.WithError(err).Info("cmd/verifier: health server stopped")
		}
	}()
	log.Infof("cmd/verifier: gRPC health endpoint listening on %s", addr)
	return srv, nil
}

func runDistributedWorker(ctx context.Context, endpoints string, cfg config.Settings, opt verifier.Options) {
	net, tables, queries := loadTopology(cfg)

	healthSrv, err := serveHealth(cfg.ServeAddr)
	if err != nil {
		log.Fatalf("starting health endpoint: %v", err)
	}
	go func() {
		<-ctx.Done()
		healthSrv.GracefulStop()
	}()

	run := func(q *query.Query) *verifier.Report {
		return verifier.Run(net, tables, q, opt)
	}

	dcfg := distributed.DefaultConfig()
	dcfg.Endpoints = splitAddrs(endpoints)
	worker, err := distributed.NewWorker(dcfg, queries, run)
	if err != nil {
		log.Fatalf("starting distributed worker: %v", err)
	}
	defer worker.Close()

	go func() {
		if err := worker.Serve(ctx); err != nil {
			log.WithError(err).Error("distributed worker stopped")
		}
	}()
}

func runRemoteWorker(addr string, cfg config.Settings, opt verifier.Options) {
	net, tables, queries := loadTopology(cfg)
	byText := make(map[string]*query.Query, len(queries))
	for _, q := range queries {
		byText[q.Text] = q
	}

	handle := func(req transport.Request) transport.Response {
		q, ok := byText[req.QueryText]
		if !ok {
			return transport.Response{Err: fmt.Sprintf("unknown query %q", req.QueryText)}
		}
		rep := verifier.Run(net, tables, q, opt)
		return transport.Response{Verdict: rep.Verdict.String(), ElapsedMS: rep.Elapsed.Milliseconds(), Err: rep.Err}
	}

	if _, err := transport.Serve(addr, transport.DefaultConfig(), handle); err != nil {
		log.Fatalf("starting remote worker: %v", err)
	}
	log.Infof("remote worker listening on %s with %d queries loaded", addr, len(queries))
}

func runViaRemote(addr string, cfg config.Settings) {
	queries, err := config.LoadQueries(cfg.Queries)
	if err != nil {
		log.Fatalf("loading queries: %v", err)
	}

	client := transport.NewClient()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, q := range queries {
		resp, err := client.Evaluate(addr, transport.Request{QueryText: q.Text})
		if err != nil {
			log.WithError(err).Errorf("evaluating %q via %s", q.Text, addr)
			continue
		}
		if err := enc.Encode(resp); err != nil {
			log.WithError(err).Error("encoding response")
		}
	}
}

func splitAddrs(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if len(out) == 0 {
		return []string{s}
	}
	return out
}
