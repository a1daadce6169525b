package discovry

import (
	"github.com/sirupsen/logrus"

	"kelub/hashlb/balancer"
)

// Seed registers the instances of serviceName known to d. Instances whose
// name does not carry a numeric id are skipped.
func Seed(d Discovry, serviceName, tag string, reg *balancer.Registry, res balancer.NameResolver) ([]balancer.Backend, error) {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name":   "Seed",
		"serviceName": serviceName,
	})
	instances, err := d.NameResolve(serviceName, tag)
	if err != nil {
		return nil, err
	}
	bs := make([]balancer.Backend, 0, len(instances))
	for _, in := range instances {
		b, err := res.ResolveAt(in.Name, in.Addr)
		if err != nil {
			logEntry.Errorf("skip instance %s: %v", in.Name, err)
			continue
		}
		bs = append(bs, b)
	}
	added, err := reg.Add(bs...)
	if err != nil {
		return nil, err
	}
	logEntry.Infof("seeded %d backends from %d instances", len(added), len(instances))
	return added, nil
}
