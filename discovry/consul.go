// consul

package discovry

import (
	"fmt"
	"net"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/sirupsen/logrus"
)

type discovry struct {
	consulClient *consulapi.Client
}

func NewDiscovry(consulAddr string) (*discovry, error) {
	conf := consulapi.DefaultConfig()
	if consulAddr != "" {
		conf.Address = consulAddr
	}
	c, err := consulapi.NewClient(conf)
	if err != nil {
		return nil, err
	}
	return &discovry{
		consulClient: c,
	}, nil
}

// NameResolve returns the passing instances of serviceName having tag.
// Instances registered without an address use their node's address.
func (d *discovry) NameResolve(serviceName string, tag string) ([]Instance, error) {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name":   "NameResolve",
		"serviceName": serviceName,
		"tag":         tag,
	})
	serviceEntry, _, err := d.consulClient.Health().Service(serviceName, tag, true, nil)
	if err != nil {
		return nil, fmt.Errorf("discovry: resolve %s: %w", serviceName, err)
	}
	instances := make([]Instance, 0, len(serviceEntry))
	for _, e := range serviceEntry {
		if e.Service == nil {
			continue
		}
		addr := e.Service.Address
		if addr == "" && e.Node != nil {
			addr = e.Node.Address
		}
		name := e.Service.ID
		if name == "" {
			name = e.Service.Service
		}
		instances = append(instances, Instance{
			Name: name,
			Addr: net.JoinHostPort(addr, strconv.Itoa(e.Service.Port)),
		})
	}
	logEntry.Debugf("resolved %d instances", len(instances))
	return instances, nil
}
