package main

import (
	"net/url"
	"time"
)

type connectOptions struct {
	knownHosts string
	keyFile    string
	timeout    time.Duration
}

func newConnectorFactories(opts connectOptions) []ConnectorFactory {
	return []ConnectorFactory{
		&SFTPConnectorFactory{KnownHosts: opts.knownHosts, KeyFile: opts.keyFile, Timeout: opts.timeout},
		&FTPConnectorFactory{Timeout: opts.timeout},
		// add more
	}
}

// buildConnectorFactories is replaced in tests.
var buildConnectorFactories = newConnectorFactories

func getConnectorFactory(factories []ConnectorFactory, u *url.URL) ConnectorFactory {
	for _, factory := range factories {
		if factory.Accept(u) {
			return factory
		}
	}
	return nil
}
