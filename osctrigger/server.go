package osctrigger

import (
	"context"
	"net"

	"github.com/gruntwork-io/go-commons/errors"
	"github.com/hypebeast/go-osc/osc"
	"github.com/robmorgan/clicktrack/logger"
)

// ListenAndServe receives OSC over UDP on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, c Controller) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return errors.WithStackTrace(err)
	}
	return Serve(ctx, conn, c)
}

// Serve dispatches packets read from conn. conn is closed when ctx is done.
func Serve(ctx context.Context, conn net.PacketConn, c Controller) error {
	server := &osc.Server{Addr: conn.LocalAddr().String(), Dispatcher: NewDispatcher(c)}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.GetProjectLogger().WithField("addr", conn.LocalAddr().String()).Info("Listening for OSC")
	if err := server.Serve(conn); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.WithStackTrace(err)
	}
	return nil
}
