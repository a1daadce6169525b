package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"kelub/hashlb/balancer"
	"kelub/hashlb/discovry"
	"kelub/hashlb/frontend"
	"kelub/hashlb/healthcheck"
)

func main() {
	config := balancer.DefaultConfig()
	var (
		listen        string
		backends      string
		probe         string
		grpcPort      int
		consulAddr    string
		consulService string
		consulTag     string
		logLevel      string
		logJSON       bool
	)
	flag.StringVar(&listen, "listen", ":5000", "listen address")
	flag.IntVar(&config.Ring.NumSlots, "slots", config.Ring.NumSlots, "number of ring slots")
	flag.IntVar(&config.Ring.NumVirtuals, "virtuals", config.Ring.NumVirtuals, "virtual nodes per backend")
	flag.DurationVar(&config.Health.Interval, "health-interval", config.Health.Interval, "health check interval")
	flag.DurationVar(&config.Health.ProbeTimeout, "probe-timeout", config.Health.ProbeTimeout, "health probe timeout")
	flag.DurationVar(&config.Router.ForwardTimeout, "forward-timeout", config.Router.ForwardTimeout, "forwarded request timeout")
	flag.StringVar(&backends, "backends", strings.Join(config.Backends.Initial, ","), "comma-separated initial backend names")
	flag.StringVar(&config.Backends.Scheme, "backend-scheme", config.Backends.Scheme, "backend url scheme")
	flag.IntVar(&config.Backends.Port, "backend-port", config.Backends.Port, "backend port used for names without one")
	flag.StringVar(&probe, "probe", "http", "health probe: http or grpc")
	flag.IntVar(&grpcPort, "grpc-port", 50051, "backend gRPC health port for -probe=grpc")
	flag.StringVar(&consulAddr, "consul-addr", "", "consul agent address")
	flag.StringVar(&consulService, "consul-service", "", "consul service to seed backends from")
	flag.StringVar(&consulTag, "consul-tag", "", "consul service tag")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.BoolVar(&logJSON, "log-json", false, "log in JSON")
	flag.Parse()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("log level: %v", err)
	}
	logrus.SetLevel(level)
	if logJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	config.Backends.Initial = splitNames(backends)
	reg, err := config.NewRegistry()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if consulService != "" {
		d, err := discovry.NewDiscovry(consulAddr)
		if err != nil {
			logrus.Fatalf("consul: %v", err)
		}
		if _, err := discovry.Seed(d, consulService, consulTag, reg, config.Resolver()); err != nil {
			logrus.Errorf("consul seed: %v", err)
		}
	}

	var prober healthcheck.Prober
	switch probe {
	case "http":
		prober = healthcheck.NewHTTPProber()
	case "grpc":
		gp := healthcheck.NewGRPCProber(grpcPort)
		defer gp.Close()
		prober = gp
	default:
		logrus.Fatalf("unknown probe %q", probe)
	}

	monitor := balancer.NewMonitor(reg, prober, config.HealthConfig())
	monitor.Start()
	defer monitor.Stop()

	router := balancer.NewRouter(reg.Pool(), balancer.NewHTTPForwarder(), config.RouterConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := frontend.CreateHttpServer(router, reg).Main(ctx, listen); err != nil {
		logrus.Errorf("http server: %v", err)
	}
}

func splitNames(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
