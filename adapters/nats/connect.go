package nats

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"
)

type closeFunc = func()

// Connector opens a connection and returns the function that releases it.
type Connector func() (nc *natsgo.Conn, close closeFunc, err error)

// ReuseConnection shares one connection between all callers of the returned
// Connector. The connection is closed when the last lease is released.
func ReuseConnection(connect Connector) Connector {
	var (
		mu       sync.Mutex
		nc       *natsgo.Conn
		closeCon closeFunc
		leased   atomic.Int64
	)
	weakClose := func() {
		mu.Lock()
		defer mu.Unlock()
		if leased.Add(-1) == 0 && nc != nil {
			closeCon()
			nc = nil
		}
	}
	return func() (*natsgo.Conn, closeFunc, error) {
		mu.Lock()
		defer mu.Unlock()
		if nc == nil {
			var err error
			nc, closeCon, err = connect()
			if err != nil {
				return nil, nil, err
			}
		}
		leased.Add(1)
		var once sync.Once
		return nc, func() { once.Do(weakClose) }, nil
	}
}

func ConnectURL(natsURL string, opts ...natsgo.Option) Connector {
	return func() (*natsgo.Conn, closeFunc, error) {
		log := slog.Default().With(slog.String("component", "nats"))
		base := []natsgo.Option{
			natsgo.Name("vfs-es"),
			natsgo.MaxReconnects(3),
			natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
				if err != nil {
					log.Warn("disconnected", slog.Any("error", err))
				}
			}),
			natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
				log.Info("reconnected", slog.String("url", nc.ConnectedUrlRedacted()))
			}),
		}
		nc, err := natsgo.Connect(natsURL, append(base, opts...)...)
		if err != nil {
			return nil, nil, err
		}
		return nc, func() { nc.Close() }, nil
	}
}

// ConnectDefault reads the server URL from VFS_NATS_URL or NATS_URL.
func ConnectDefault() Connector {
	for _, key := range []string{"VFS_NATS_URL", "NATS_URL"} {
		if natsURL := os.Getenv(key); natsURL != "" {
			return ConnectURL(natsURL)
		}
	}
	return ConnectURL(natsgo.DefaultURL)
}
