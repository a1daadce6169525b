package example

type Options struct {
	ServerName string `flag:"name"`
	HTTPPort   int    `flag:"port"`
	HealthPort int    `flag:"grpc-health-port"`
}
