package etcdclient

import (
	"strings"
	"time"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	DefaultConnectionTimeout = 30 * time.Second
	DefaultKeepAliveTimeout  = 5 * time.Second
	DefaultKeepAliveInterval = 10 * time.Second
)

type Config struct {
	Endpoint          string        `configKey:"endpoint" configUsage:"Etcd endpoint."`
	Namespace         string        `configKey:"namespace" configUsage:"Etcd namespace."`
	Username          string        `configKey:"username" configUsage:"Etcd username."`
	Password          string        `configKey:"password" configUsage:"Etcd password." sensitive:"true"`
	ConnectTimeout    time.Duration `configKey:"connectTimeout" configUsage:"Etcd connect timeout."`
	KeepAliveTimeout  time.Duration `configKey:"keepAliveTimeout" configUsage:"Etcd keep alive timeout."`
	KeepAliveInterval time.Duration `configKey:"keepAliveInterval" configUsage:"Etcd keep alive interval."`
}

func NewConfig() Config {
	return Config{
		Namespace:         "dbsnap",
		ConnectTimeout:    DefaultConnectionTimeout,
		KeepAliveTimeout:  DefaultKeepAliveTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}

func (c *Config) Normalize() {
	c.Endpoint = strings.Trim(c.Endpoint, " /")
	c.Namespace = strings.Trim(c.Namespace, " /") + "/"
}

// Validate is called only if the etcd backend is used.
func (c *Config) Validate() error {
	errs := errors.NewMultiError()
	if c.Endpoint == "" {
		errs.Append(errors.New("etcd endpoint is not set"))
	}
	if c.Namespace == "/" {
		errs.Append(errors.New("etcd namespace is not set"))
	}
	if c.ConnectTimeout <= 0 {
		errs.Append(errors.New("etcd connect timeout must be positive"))
	}
	return errs.ErrorOrNil()
}
