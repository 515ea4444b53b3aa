// Command coordinator runs the cluster coordinator: membership, tablet
// ownership and recovery for a fleet of masters and backups.
package main

import (
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"clustercoord/internal/coordfail"
	"clustercoord/internal/coordinator"
	"clustercoord/internal/dispatch"
	"clustercoord/internal/durablelog"
	"clustercoord/internal/recovery"
	"clustercoord/internal/tablet"
	"clustercoord/internal/transport"
)

func main() {
	listenAddr := flag.String("listen", ":7100", "address the coordinator listens on for RPCs")
	dialTimeout := flag.Duration("dial-timeout", 5*time.Second, "timeout for outbound connections to cluster members")
	dataPortOffset := flag.Int("data-port-offset", transport.DefaultDataPortOffset, "port offset from a member's advertised locator to its tablet/membership push listener")
	dbPath := flag.String("db", "", "path to a Pebble durable log; empty disables durable logging")
	leastLoaded := flag.Bool("least-loaded", false, "select the least-loaded master for new tables instead of first-in-slot-order")
	flag.Parse()

	var durable durablelog.Log = durablelog.NoopLog{}
	if *dbPath != "" {
		pl, err := durablelog.Open(*dbPath)
		if err != nil {
			log.Fatalf("coordinator: opening durable log at %s: %v", *dbPath, err)
		}
		defer pl.Close()
		durable = pl
	}

	var selector tablet.MasterSelector = tablet.FirstInSlotOrder{}
	if *leastLoaded {
		selector = tablet.LeastLoaded{}
	}

	tr := transport.NewTCPTransport(*dialTimeout)
	tr.DataPortOffset = *dataPortOffset
	coord := coordinator.New(tr, durable, selector, &recovery.NullEngine{})

	d := dispatch.New()
	coord.RegisterHandlers(d)

	go coord.Updates().Run()
	defer coord.Updates().Halt()

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatalf("coordinator: listen on %s: %v", *listenAddr, err)
	}
	defer ln.Close()
	log.Printf("coordinator: listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("coordinator: accept: %v", err)
			continue
		}
		go serve(conn, d)
	}
}

// serve reads one framed Envelope, dispatches it, and writes back one
// framed Reply, then closes the connection: one request per connection,
// no persistent client sessions.
func serve(conn net.Conn, d *dispatch.Dispatcher) {
	defer conn.Close()

	payload, err := transport.ReadFrame(conn)
	if err != nil {
		if err != io.EOF {
			log.Printf("coordinator: read request: %v", err)
		}
		return
	}

	var env dispatch.Envelope
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&env); err != nil {
		log.Printf("coordinator: decode envelope: %v", err)
		return
	}

	req, err := dispatch.DecodeRequest(env)
	if err != nil {
		writeReply(conn, dispatch.Reply{Error: err.Error()})
		return
	}

	d.Dispatch(env.Type, req, func(resp any, handlerErr error) {
		reply := toReply(resp, handlerErr)
		writeReply(conn, reply)
	})
}

func toReply(resp any, err error) dispatch.Reply {
	if err != nil {
		reply := dispatch.Reply{Error: err.Error()}
		if ce, ok := err.(*coordfail.Error); ok {
			reply.ErrCode = uint32(ce.Code())
			if ce.Kind == coordfail.Fatal {
				log.Fatalf("coordinator: fatal error: %v", ce)
			}
		}
		return reply
	}
	var buf bytes.Buffer
	if encErr := gob.NewEncoder(&buf).Encode(resp); encErr != nil {
		return dispatch.Reply{Error: fmt.Sprintf("encode response: %v", encErr)}
	}
	return dispatch.Reply{Payload: buf.Bytes()}
}

func writeReply(conn net.Conn, reply dispatch.Reply) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(reply); err != nil {
		log.Printf("coordinator: encode reply: %v", err)
		return
	}
	if err := transport.WriteFrame(conn, buf.Bytes()); err != nil {
		log.Printf("coordinator: write reply: %v", err)
	}
}
