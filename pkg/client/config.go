package client

import (
    "coapp/pkg/config"
    "coapp/pkg/core/netstack"
    "coapp/pkg/packages"
    "coapp/pkg/protocol/codec"
    "coapp/pkg/transport/mem"
)

// FromConfig builds a Manager from the loaded configuration. net is only
// consulted for the in-process transport and may be nil otherwise.
func FromConfig(cfg *config.Config, net *mem.Network) (*Manager, error) {
    svc := cfg.Service
    d, err := netstack.NewByKind(svc.Transport, netstack.DialerOptions{
        HandshakeTimeout: svc.HandshakeTimeout(),
        DiscoveryTimeout: svc.DiscoveryTimeout(),
        Mem:              net,
    })
    if err != nil { return nil, err }

    format, err := codec.ParseFormat(cfg.Cache.Format)
    if err != nil { return nil, err }
    cache, err := packages.NewCache(packages.CacheOptions{Format: format, TTL: cfg.Cache.TTL(), MaxBytes: cfg.Cache.MaxBytes})
    if err != nil { return nil, err }

    m, err := New(Options{
        Dialer:     d,
        Address:    svc.Address,
        ClientName: svc.ClientName,
        SessionID:  svc.SessionID,
        Retry:      netstack.RetryOptions{Attempts: svc.ConnectAttempts, Delay: svc.RetryDelay()},
        Cache:      cache,
    })
    if err != nil {
        cache.Close()
        return nil, err
    }
    m.ownsCache = true
    return m, nil
}
