// Command rudp-connect dials a listening peer, sends a single message of
// random data, and reports throughput.
package main

import (
	"flag"
	"math/rand"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-rudp/rudp"
)

func main() {
	ip := flag.String("ip", "127.0.0.1", "peer IP address")
	port := flag.Uint("p", 9000, "peer port")
	mtu := flag.Uint("mtu", uint(rudp.DefaultMTU), "local MTU")
	timeoutMs := flag.Uint("timeout", uint(rudp.DefaultTimeoutMs), "per-receive timeout in milliseconds")
	retries := flag.Uint("retries", uint(rudp.DefaultMaxRetries), "max retransmission attempts")
	size := flag.Uint("size", 65536, "size in bytes of the random payload to send")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	conn, err := rudp.Open(rudp.RoleInitiator, 0, uint16(*mtu), uint16(*timeoutMs), uint16(*retries), *debug)
	if err != nil {
		log.WithError(err).Error("failed to open connection")
		os.Exit(1)
	}
	defer conn.Close()

	log.WithFields(log.Fields{"ip": *ip, "port": *port}).Info("connecting")
	if err := conn.Connect(*ip, uint16(*port)); err != nil {
		log.WithError(err).Error("connect failed")
		os.Exit(1)
	}
	log.Info("connection established")

	payload := make([]byte, *size)
	rand.Read(payload)

	start := time.Now()
	n, err := conn.Send(payload)
	elapsed := time.Since(start)
	if err != nil {
		log.WithError(err).Error("send failed")
		os.Exit(1)
	}

	bytesPerSec := float64(n) / elapsed.Seconds()
	log.WithFields(log.Fields{
		"bytes":     n,
		"elapsed":   elapsed,
		"bytes/sec": bytesPerSec,
	}).Info("sent message")

	if err := conn.Disconnect(); err != nil {
		log.WithError(err).Warn("disconnect reported an error")
	}
}
