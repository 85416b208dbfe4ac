// Command abd is the device-side bridge daemon: it accepts incoming links
// from a host controller, speaks the packet-multiplexed wire protocol over
// each one, and dispatches OPEN requests to local services. Structurally
// grounded on the teacher's krd/krd.go: SetupLogging, then listen, then a
// signal channel blocking until shutdown.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/agrinman/abd"
	"github.com/agrinman/abd/internal/control"
	"github.com/op/go-logging"
)

func main() {
	log := abd.SetupLogging("abd", logging.NOTICE, true)

	listenAddr := flag.String("listen", ":5038", "address to accept host links on")
	controlSocket := flag.String("control-socket", "", "path to the admin control unix socket (defaults under the state dir)")
	lockedMode := flag.Bool("locked", false, "restrict the service dispatcher to a locked-mode allowlist")
	authRequired := flag.Bool("auth", true, "require AUTH before completing the handshake")
	flag.Parse()

	cfg, err := abd.DefaultConfig()
	if err != nil {
		log.Fatal(err)
	}
	cfg.AuthRequired = *authRequired
	cfg.LockedMode = *lockedMode

	if *controlSocket == "" {
		*controlSocket = cfg.StateFile("abd.sock")
	}

	registry := abd.NewRegistry()
	transports := abd.NewTransportList()
	met := abd.NewMetrics()

	policy := abd.NewPolicy()
	if cfg.LockedMode {
		policy.Lock("sink", "source")
	}
	dispatcher := abd.NewServiceDispatcher(policy)
	abd.RegisterDefaultServices(dispatcher)

	authorizer, err := abd.NewAuthorizer(nil, nil)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		if err := runControlServer(*controlSocket, transports, met, log); err != nil {
			log.Error("control server stopped:", err)
		}
	}()

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatal(err)
	}
	defer ln.Close()
	log.Notice("listening on", *listenAddr)

	go acceptLoop(ln, registry, transports, authorizer, &cfg, met, dispatcher, log)

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)
	sig, ok := <-stopSignal
	if ok {
		log.Notice("stopping with signal", sig)
	}
	for _, t := range transports.Snapshot() {
		t.Kick()
	}
}

func acceptLoop(ln net.Listener, registry *abd.Registry, transports *abd.TransportList, authorizer *abd.Authorizer, cfg *abd.Config, met *abd.Metrics, dispatcher *abd.ServiceDispatcher, log *logging.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Error("accept:", err)
			return
		}
		go handleLink(conn, registry, transports, authorizer, cfg, met, dispatcher, log)
	}
}

// handleLink wires one accepted net.Conn up to a fresh Transport. The
// transport_id is derived from the remote address until the peer's banner
// supplies a stable serial; once parsed, handleCNXN re-keys the visible
// product/model/device fields but the transport_id (derived at construction
// time) stays fixed for the life of the link.
func handleLink(conn net.Conn, registry *abd.Registry, transports *abd.TransportList, authorizer *abd.Authorizer, cfg *abd.Config, met *abd.Metrics, dispatcher *abd.ServiceDispatcher, log *logging.Logger) {
	serial := conn.RemoteAddr().String()
	t := abd.NewTransport(serial, registry, authorizer, cfg.AuthRequired, met, dispatcher)
	t.SetLocal(true)
	transports.Add(t)
	t.AddDisconnect(func() {
		transports.Remove(t)
		log.Notice("transport", serial, "disconnected")
	})

	sc := abd.NewStreamConnection(conn, abd.ProtocolV2, cfg.MaxPayload)
	t.SetConnection(sc)

	if !cfg.AuthRequired {
		banner := fmt.Sprintf("device::features=%s", joinDefaultFeatures())
		t.SendPacket(abd.NewPacket(abd.CmdCNXN, 0, 0, []byte(banner)))
	}
}

func joinDefaultFeatures() string {
	return "shell_v2,cmd"
}

func runControlServer(socketPath string, transports *abd.TransportList, met *abd.Metrics, log *logging.Logger) error {
	ln, err := control.Listen(socketPath)
	if err != nil {
		return err
	}
	defer ln.Close()
	srv := control.NewServer(transports, met, log)
	return srv.Serve(ln)
}
