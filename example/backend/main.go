package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"kelub/hashlb/example"
)

var opt example.Options

func init() {
	flag.StringVar(&opt.ServerName, "name", "server1", "Server name. Default: server1")
	flag.IntVar(&opt.HTTPPort, "port", 5000, "HTTP port. Default: 5000")
	flag.IntVar(&opt.HealthPort, "grpc-health-port", 0, "gRPC health port, 0 disables it. Default: 0")
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := example.CreateHttpServer(&opt).Main(ctx); err != nil {
		logrus.Fatalf("backend %s: %v", opt.ServerName, err)
	}
}
