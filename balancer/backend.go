package balancer

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrInvalidName = errors.New("balancer: invalid instance name")
	ErrDuplicateID = errors.New("balancer: instance id already taken")
)

// Backend is one instance requests can be routed to.
type Backend struct {
	ID   int    // derived from Name, unique among known backends
	Name string // administrative name, e.g. server4
	Addr string // base URL, e.g. http://server4:5000
}

func (b Backend) String() string {
	return fmt.Sprintf("%s[%d]", b.Name, b.ID)
}

// Resolver maps an instance name to a Backend.
type Resolver interface {
	Resolve(name string) (Backend, error)
}

// ResolverFunc is an adapter to use ordinary functions as a Resolver.
type ResolverFunc func(name string) (Backend, error)

func (f ResolverFunc) Resolve(name string) (Backend, error) { return f(name) }

// NameResolver derives the id of a backend from the trailing digits of its
// host name and its address from Scheme and Port.
type NameResolver struct {
	Scheme string
	Port   int
}

func (n NameResolver) Resolve(name string) (Backend, error) {
	name = strings.TrimSpace(name)
	host, port := name, strconv.Itoa(n.Port)
	if h, p, err := net.SplitHostPort(name); err == nil {
		host, port = h, p
	}
	id, err := trailingID(host)
	if err != nil {
		return Backend{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	scheme := n.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return Backend{
		ID:   id,
		Name: name,
		Addr: fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, port)),
	}, nil
}

// ResolveAt returns the backend called name listening on hostport.
func (n NameResolver) ResolveAt(name, hostport string) (Backend, error) {
	host, _, err := net.SplitHostPort(name)
	if err != nil {
		host = name
	}
	id, err := trailingID(host)
	if err != nil {
		return Backend{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	scheme := n.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return Backend{
		ID:   id,
		Name: name,
		Addr: fmt.Sprintf("%s://%s", scheme, hostport),
	}, nil
}

func trailingID(host string) (int, error) {
	i := len(host)
	for i > 0 && host[i-1] >= '0' && host[i-1] <= '9' {
		i--
	}
	if i == len(host) {
		return 0, ErrInvalidName
	}
	return strconv.Atoi(host[i:])
}

func sortBackends(bs []Backend) []Backend {
	sort.Slice(bs, func(i, j int) bool { return bs[i].ID < bs[j].ID })
	return bs
}

// Names returns the names of bs in order.
func Names(bs []Backend) []string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = b.Name
	}
	return names
}
