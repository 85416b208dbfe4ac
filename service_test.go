package abd

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
)

func TestParseServiceRequestShellWithFlags(t *testing.T) {
	req := ParseServiceRequest("shell,v2,pty:ls -la")
	if req.Name != "shell" {
		t.Fatalf("got name %q, want shell", req.Name)
	}
	if len(req.Flags) != 2 || req.Flags[0] != "v2" || req.Flags[1] != "pty" {
		t.Fatalf("got flags %v, want [v2 pty]", req.Flags)
	}
	if req.Rest != "ls -la" {
		t.Fatalf("got rest %q, want %q", req.Rest, "ls -la")
	}
}

func TestParseServiceRequestBareNoColon(t *testing.T) {
	req := ParseServiceRequest("reconnect")
	if req.Name != "reconnect" {
		t.Fatalf("got name %q, want reconnect", req.Name)
	}
	if req.Rest != "" || len(req.Flags) != 0 {
		t.Fatalf("expected no rest/flags for a bare name, got %+v", req)
	}
}

func TestParseServiceRequestSinkWithCount(t *testing.T) {
	req := ParseServiceRequest("sink:1024")
	if req.Name != "sink" {
		t.Fatalf("got name %q, want sink", req.Name)
	}
	n, err := req.Int()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1024 {
		t.Fatalf("got %d, want 1024", n)
	}
}

func TestParseServiceRequestExecEmptyRest(t *testing.T) {
	req := ParseServiceRequest("exec:")
	if req.Name != "exec" || req.Rest != "" {
		t.Fatalf("got %+v", req)
	}
}

func TestDispatchUnknownServiceIsServiceError(t *testing.T) {
	d := NewServiceDispatcher(nil)
	_, err := d.Dispatch("made-up-service:", nil, DefaultMaxPayload)
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected a *ServiceError, got %T", err)
	}
	if !strings.Contains(err.Error(), "made-up-service") {
		t.Fatalf("expected the error to name the unrecognized service, got %v", err)
	}
}

func TestDispatchSocketServiceSuccess(t *testing.T) {
	d := NewServiceDispatcher(nil)
	registerSinkSource(d)
	sock, err := d.Dispatch("sink:10", nil, DefaultMaxPayload)
	if err != nil {
		t.Fatal(err)
	}
	if sock == nil {
		t.Fatal("expected a non-nil socket")
	}
}

func TestDispatchFDServiceWrapsInFDSocket(t *testing.T) {
	d := NewServiceDispatcher(nil)
	client, server := net.Pipe()
	defer client.Close()
	d.RegisterFD("echo", func(req ServiceRequest, t *Transport) (io.ReadWriteCloser, error) {
		return server, nil
	})
	sock, err := d.Dispatch("echo:", nil, DefaultMaxPayload)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sock.(*Socket); !ok {
		t.Fatalf("expected an FD-backed *Socket, got %T", sock)
	}
}

func TestDispatchRejectsForbiddenServiceUnderLockedPolicy(t *testing.T) {
	policy := NewPolicy()
	policy.Lock("sink")
	d := NewServiceDispatcher(policy)
	registerSinkSource(d)

	if _, err := d.Dispatch("source:1", nil, DefaultMaxPayload); err == nil {
		t.Fatal("expected source: to be forbidden under a sink-only locked policy")
	} else {
		var pe *PolicyError
		if !errors.As(err, &pe) {
			t.Fatalf("expected a *PolicyError, got %T: %v", err, err)
		}
	}

	if _, err := d.Dispatch("sink:1", nil, DefaultMaxPayload); err != nil {
		t.Fatalf("sink: should remain allowed: %v", err)
	}
}

func TestDispatchServiceFailureWrapsAsServiceError(t *testing.T) {
	d := NewServiceDispatcher(nil)
	d.RegisterFD("broken", func(req ServiceRequest, t *Transport) (io.ReadWriteCloser, error) {
		return nil, errors.New("boom")
	})
	_, err := d.Dispatch("broken:", nil, DefaultMaxPayload)
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected a *ServiceError, got %T: %v", err, err)
	}
}
