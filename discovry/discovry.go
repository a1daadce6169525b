// Service Discovry

package discovry

// Instance is one resolved service instance.
type Instance struct {
	Name string // service id, e.g. server4
	Addr string // host:port
}

type Discovry interface {
	// Name -> Addr    //like DNS
	// name servername
	// tag groupname
	NameResolve(serviceName string, tag string) ([]Instance, error)
}
