package ws

import (
    "context"
    "fmt"
    "net"
    "strconv"
    "time"

    "github.com/hashicorp/mdns"
    "go.uber.org/zap"
)

// Service is a service instance announced over mDNS.
type Service struct {
    Name string
    Host string
    Port int
    Info []string
}

// URL returns the websocket endpoint of the service. A "path=/x" TXT record
// overrides the default root path.
func (s *Service) URL() string {
    path := "/"
    for _, f := range s.Info {
        if len(f) > 5 && f[:5] == "path=" { path = f[5:] }
    }
    return "ws://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + path
}

// Discover returns the first instance of service that answers within timeout.
func Discover(ctx context.Context, service string, timeout time.Duration) (*Service, error) {
    if timeout <= 0 { timeout = 5 * time.Second }
    entries := make(chan *mdns.ServiceEntry, 4)
    params := mdns.DefaultParams(service)
    params.Entries = entries
    params.Timeout = timeout
    go func() {
        defer close(entries)
        if err := mdns.Query(params); err != nil {
            zap.L().Debug("mdns query failed", zap.String("service", service), zap.Error(err))
        }
    }()

    timer := time.NewTimer(timeout)
    defer timer.Stop()
    for {
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-timer.C:
            return nil, fmt.Errorf("mdns discovery timeout for %s", service)
        case e, ok := <-entries:
            if !ok { return nil, fmt.Errorf("no %s service found", service) }
            var host string
            switch {
            case e.AddrV4 != nil:
                host = e.AddrV4.String()
            case e.AddrV6 != nil:
                host = e.AddrV6.String()
            default:
                continue
            }
            s := &Service{Name: e.Name, Host: host, Port: e.Port, Info: e.InfoFields}
            zap.L().Info("discovered package service", zap.String("name", s.Name), zap.String("host", s.Host), zap.Int("port", s.Port))
            return s, nil
        }
    }
}
