// Copyright (c) 2023 BVK Chaitanya

package internal

import (
	"time"
)

type Options struct {
	// IndexerHostname is the REST hostname of the indexer service.
	IndexerHostname string

	// WebsocketHostname is the hostname for the indexer streaming feed.
	WebsocketHostname string

	// NodeHostname is the REST hostname of the full node used for
	// transaction submission and account queries.
	NodeHostname string

	HttpClientTimeout time.Duration

	// WebsocketRetryInterval is the initial reconnect delay; it doubles on
	// every failed redial.
	WebsocketRetryInterval time.Duration

	// MaxRetryWait caps the escalating waits on throttled requests and on
	// websocket reconnects.
	MaxRetryWait time.Duration
}

func (v *Options) setDefaults() {
	if len(v.IndexerHostname) == 0 {
		v.IndexerHostname = "indexer.dydx.trade"
	}
	if len(v.WebsocketHostname) == 0 {
		v.WebsocketHostname = "indexer.dydx.trade/v4/ws"
	}
	if len(v.NodeHostname) == 0 {
		v.NodeHostname = "dydx-rest.publicnode.com"
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 10 * time.Second
	}
	if v.WebsocketRetryInterval == 0 {
		v.WebsocketRetryInterval = time.Second
	}
	if v.MaxRetryWait == 0 {
		v.MaxRetryWait = 5 * time.Second
	}
}
