// Command rudp-listen accepts a single reliable-UDP connection, receives one
// message, and reports throughput.
package main

import (
	"flag"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-rudp/rudp"
)

func main() {
	port := flag.Uint("p", 9000, "local port to listen on")
	mtu := flag.Uint("mtu", uint(rudp.DefaultMTU), "local MTU")
	timeoutMs := flag.Uint("timeout", uint(rudp.DefaultTimeoutMs), "per-receive timeout in milliseconds")
	retries := flag.Uint("retries", uint(rudp.DefaultMaxRetries), "max retransmission attempts")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	conn, err := rudp.Open(rudp.RoleListener, uint16(*port), uint16(*mtu), uint16(*timeoutMs), uint16(*retries), *debug)
	if err != nil {
		log.WithError(err).Error("failed to open listener")
		os.Exit(1)
	}
	defer conn.Close()

	log.WithField("port", *port).Info("waiting for a connection")
	if err := conn.Accept(); err != nil {
		log.WithError(err).Error("accept failed")
		os.Exit(1)
	}
	log.Info("connection established, waiting for data")

	buf := make([]byte, 1<<20)
	start := time.Now()
	n, err := conn.Recv(buf, len(buf))
	elapsed := time.Since(start)
	if err != nil {
		log.WithError(err).Error("recv failed")
		os.Exit(1)
	}

	bytesPerSec := float64(n) / elapsed.Seconds()
	log.WithFields(log.Fields{
		"bytes":     n,
		"elapsed":   elapsed,
		"bytes/sec": bytesPerSec,
	}).Info("received message")

	if err := conn.Disconnect(); err != nil {
		log.WithError(err).Warn("disconnect reported an error")
	}
}
