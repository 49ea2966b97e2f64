package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"periscope/internal/ipc"
	"periscope/internal/logging"
)

// bridge serves the WebSocket control endpoint for peers that cannot reach
// the unix socket. Bridged channels go through the same handshake and
// arbitration as local ones.
type bridge struct {
	server   *http.Server
	listener net.Listener
}

func startBridge(d *Daemon, bind string) (*bridge, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/channel", func(w http.ResponseWriter, r *http.Request) {
		ch, err := ipc.UpgradeWebSocket(w, r)
		if err != nil {
			d.logger.Warn("websocket upgrade failed",
				logging.String("remote", r.RemoteAddr),
				logging.Error(err))
			return
		}
		d.AttachChannel(ch)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Warn("bridge server stopped", logging.Error(err))
		}
	}()

	d.logger.Info("websocket bridge listening", logging.String("bind", ln.Addr().String()))
	return &bridge{server: srv, listener: ln}, nil
}

func (b *bridge) addr() string { return b.listener.Addr().String() }

func (b *bridge) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = b.server.Shutdown(ctx)
}
