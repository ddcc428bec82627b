// Package rudp implements a reliable, ordered, connection-oriented byte-message
// transport on top of unreliable UDP datagrams: a fixed-layout frame header with
// a one's-complement checksum, a SYN/SYN-ACK handshake that exchanges connection
// parameters, a stop-and-wait fragmentation and retransmission loop for data
// transfer, and a FIN/FIN-ACK graceful shutdown.
//
// A single Connection is not safe for concurrent use and represents exactly one
// peer relationship; there is no multiplexing, congestion control, or pipelining.
package rudp
