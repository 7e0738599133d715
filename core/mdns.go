package core

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
)

// PortOf extracts the port number from a listen address such as ":8080".
func PortOf(listen string) (int, error) {
	_, port, err := net.SplitHostPort(listen)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

// Advertise registers service on the local network until ctx is done.
func Advertise(ctx context.Context, service string, port int, txt []string) error {
	host, _ := os.Hostname()
	server, err := zeroconf.Register(
		fmt.Sprintf("%s-%s", "CollabText", host),
		service,
		"local.",
		port,
		txt,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register mDNS service %s: %w", service, err)
	}
	LogInfo("mDNS", "Service registered: ", service, " on port ", port)
	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()
	return nil
}
