package main

import (
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// RunConfig is the immutable configuration of one run.
type RunConfig struct {
	Host           string `flag:"hostname" validate:"required"`
	Port           int    `flag:"port" validate:"gte=0,lte=65535"`
	Username       string `flag:"username" validate:"required"`
	Strategy       Strategy
	SecretMaterial []string
	RemoteDir      string
	LocalDir       string
	DeleteRemote   bool
	LogLevel       zerolog.Level
	KnownHosts     string
	KeyFile        string
	ConnectTimeout time.Duration `flag:"timeout" validate:"gte=0"`
	ReportPath     string
	RunID          string
}

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("flag"); name != "" {
			return name
		}
		return f.Name
	})
}

func (c *RunConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Errorf("%w: %s", ErrInvalidArguments, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, "--"+fe.Field()+" is required")
			continue
		}
		msgs = append(msgs, "--"+fe.Field()+" must be "+fe.Tag()+" "+fe.Param())
	}
	return errors.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, ", "))
}

// MarshalZerologObject logs the configuration with the secret material masked.
func (c *RunConfig) MarshalZerologObject(e *zerolog.Event) {
	masked := make([]string, len(c.SecretMaterial))
	for i, s := range c.SecretMaterial {
		masked[i] = maskSecret(s)
	}
	e.Str("hostname", c.Host).
		Int("port", c.Port).
		Str("username", c.Username).
		Strs("password_data", masked).
		Stringer("password_handler", c.Strategy).
		Str("loglevel", c.LogLevel.String()).
		Str("remote_dir", c.RemoteDir).
		Str("local_dir", c.LocalDir).
		Bool("delete_remote", c.DeleteRemote)
}

// targetURL turns the hostname into a connection URL and picks the factory
// for its scheme. A bare host means sftp.
func (c *RunConfig) targetURL(factories []ConnectorFactory) (*url.URL, ConnectorFactory, error) {
	raw := c.Host
	if !strings.Contains(raw, "://") {
		raw = "sftp://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, errors.Errorf("%w: hostname %q: %s", ErrInvalidArguments, c.Host, err)
	}
	if u.Hostname() == "" {
		return nil, nil, errors.Errorf("%w: hostname %q has no host", ErrInvalidArguments, c.Host)
	}

	factory := getConnectorFactory(factories, u)
	if factory == nil {
		return nil, nil, errors.Errorf("%w: no connector available for scheme %q", ErrInvalidArguments, u.Scheme)
	}

	port := u.Port()
	switch {
	case c.Port != 0:
		port = strconv.Itoa(c.Port)
	case port == "":
		port = strconv.Itoa(factory.DefaultPort())
	}

	return &url.URL{
		Scheme: u.Scheme,
		User:   url.User(c.Username),
		Host:   net.JoinHostPort(u.Hostname(), port),
	}, factory, nil
}

func parseLogLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "critical", "fatal":
		return zerolog.FatalLevel, nil
	default:
		return zerolog.NoLevel, errors.Errorf("%w: invalid log level: %s", ErrInvalidArguments, name)
	}
}
