package control

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// testClassifier mimics the matrix family rules closely enough for
// connection-level tests: OK accepts, ERR rejects, close-with-data accepts,
// close-empty rejects.
type testClassifier struct{}

func (testClassifier) Classify(buf []byte, _ string, closed bool) Classification {
	s := string(buf)
	switch {
	case strings.Contains(s, "OK"):
		return Classification{Verdict: Accepted}
	case strings.Contains(s, "ERR"):
		return Classification{Verdict: Rejected, Reason: strings.TrimSpace(s)}
	case closed && len(buf) > 0:
		return Classification{Verdict: Accepted}
	case closed:
		return Classification{Verdict: Rejected, Reason: "connection closed with no data"}
	default:
		return Classification{Verdict: Pending}
	}
}

// startTCPDevice runs a one-shot mock device that reads a command and
// responds with the given bytes. An empty response closes without writing.
func startTCPDevice(t *testing.T, response string) Endpoint {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 64)
				if _, err := conn.Read(buf); err != nil {
					return
				}
				if response != "" {
					conn.Write([]byte(response)) //nolint:errcheck // test device
				}
			}(conn)
		}
	}()

	return listenerEndpoint(t, ln.Addr().String())
}

func listenerEndpoint(t *testing.T, addr string) Endpoint {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return Endpoint{DeviceID: "test-device", Address: host, Port: port, Transport: TransportTCP}
}

func newTestConn(t *testing.T, ep Endpoint, timeout time.Duration) *Conn {
	t.Helper()
	conn, err := NewConn(ep, testClassifier{}, Options{Timeout: timeout})
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}
	return conn
}

func TestSend_Success(t *testing.T) {
	ep := startTCPDevice(t, "1X2.OK\r\n")
	conn := newTestConn(t, ep, 2*time.Second)

	outcome := conn.Send(context.Background(), Request{Command: "1X2.\r", Kind: "switch"})

	if !outcome.Success {
		t.Fatalf("Send() success = false, err = %q", outcome.Err)
	}
	if !strings.Contains(outcome.Response, "OK") {
		t.Errorf("Response = %q, want OK token", outcome.Response)
	}
	if outcome.Duration <= 0 {
		t.Error("Duration should be positive")
	}
	if conn.State() != StateIdle {
		t.Errorf("State after send = %v, want idle", conn.State())
	}
}

func TestSend_DeviceError(t *testing.T) {
	ep := startTCPDevice(t, "ERR: bad channel")
	conn := newTestConn(t, ep, 2*time.Second)

	outcome := conn.Send(context.Background(), Request{Command: "9X9.\r"})

	if outcome.Success {
		t.Fatal("Send() success = true, want false")
	}
	if !strings.Contains(outcome.Err, "ERR") {
		t.Errorf("Err = %q, want device error text", outcome.Err)
	}
}

func TestSend_CloseWithDataIsSuccess(t *testing.T) {
	ep := startTCPDevice(t, "ack")
	conn := newTestConn(t, ep, 2*time.Second)

	outcome := conn.Send(context.Background(), Request{Command: "1X1.\r"})

	if !outcome.Success {
		t.Fatalf("Send() success = false (err %q), want success on close-with-data", outcome.Err)
	}
}

func TestSend_CloseEmptyIsFailure(t *testing.T) {
	ep := startTCPDevice(t, "")
	conn := newTestConn(t, ep, 2*time.Second)

	outcome := conn.Send(context.Background(), Request{Command: "1X1.\r"})

	if outcome.Success {
		t.Fatal("Send() success = true, want failure on close-with-zero-bytes")
	}
}

func TestSend_Timeout(t *testing.T) {
	// Device accepts and reads but never responds.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		conn.Read(buf) //nolint:errcheck // test device
		<-done
	}()

	conn := newTestConn(t, listenerEndpoint(t, ln.Addr().String()), 150*time.Millisecond)
	outcome := conn.Send(context.Background(), Request{Command: "1X1.\r"})

	if outcome.Success {
		t.Fatal("Send() success = true, want timeout failure")
	}
	if outcome.Err != ErrorTimeout {
		t.Errorf("Err = %q, want %q", outcome.Err, ErrorTimeout)
	}
	if got := conn.Stats().Timeouts; got != 1 {
		t.Errorf("Stats().Timeouts = %d, want 1", got)
	}
}

func TestSend_ConnectRefused(t *testing.T) {
	// Grab a port and close the listener so nothing is there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ep := listenerEndpoint(t, ln.Addr().String())
	ln.Close()

	conn := newTestConn(t, ep, time.Second)
	outcome := conn.Send(context.Background(), Request{Command: "1X1.\r"})

	if outcome.Success {
		t.Fatal("Send() success = true, want connect failure")
	}
	if outcome.Err == "" {
		t.Error("Err should carry the connect error")
	}
}

func TestSend_EmptyCommand(t *testing.T) {
	ep := Endpoint{DeviceID: "d", Address: "127.0.0.1", Port: 9, Transport: TransportTCP}
	conn := newTestConn(t, ep, time.Second)

	outcome := conn.Send(context.Background(), Request{})
	if outcome.Success {
		t.Fatal("Send() with empty command should fail")
	}
	if outcome.Err != ErrEmptyCommand.Error() {
		t.Errorf("Err = %q, want %q", outcome.Err, ErrEmptyCommand.Error())
	}
}

func TestSend_UDPFireAndForget(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		received <- string(buf[:n])
	}()

	host, portStr, _ := net.SplitHostPort(pc.LocalAddr().String())
	port, _ := strconv.Atoi(portStr)
	ep := Endpoint{DeviceID: "udp-device", Address: host, Port: port, Transport: TransportUDP}

	conn, err := NewConn(ep, nil, Options{})
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}

	outcome := conn.Send(context.Background(), Request{Command: "2X5."})
	if !outcome.Success {
		t.Fatalf("UDP Send() success = false, err = %q", outcome.Err)
	}

	select {
	case got := <-received:
		if got != "2X5." {
			t.Errorf("datagram = %q, want %q", got, "2X5.")
		}
	case <-time.After(time.Second):
		t.Fatal("datagram not received")
	}
}

func TestSend_Serialized(t *testing.T) {
	// Each command arrives on its own connection; the device tracks how many
	// are open at once. Serialised sends never overlap.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var mu sync.Mutex
	active, maxActive := 0, 0

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				buf := make([]byte, 64)
				if _, err := conn.Read(buf); err == nil {
					time.Sleep(50 * time.Millisecond) // hold the wire open
					conn.Write([]byte("OK\r\n"))      //nolint:errcheck // test device
				}

				mu.Lock()
				active--
				mu.Unlock()
			}(conn)
		}
	}()

	conn := newTestConn(t, listenerEndpoint(t, ln.Addr().String()), 2*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			o := conn.Send(context.Background(), Request{Command: "1X1.\r"})
			if !o.Success {
				t.Errorf("concurrent send %d failed: %s", n, o.Err)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxActive > 1 {
		t.Errorf("max concurrent wire connections = %d, want 1", maxActive)
	}
}

func TestProbe(t *testing.T) {
	ep := startTCPDevice(t, "OK")
	conn := newTestConn(t, ep, time.Second)

	if err := conn.Probe(context.Background()); err != nil {
		t.Errorf("Probe() against live device error = %v", err)
	}

	// Dead endpoint
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	dead := listenerEndpoint(t, ln.Addr().String())
	ln.Close()
	deadConn := newTestConn(t, dead, time.Second)

	if err := deadConn.Probe(context.Background()); err == nil {
		t.Error("Probe() against dead endpoint expected error")
	}
}

func TestEndpointValidate(t *testing.T) {
	tests := []struct {
		name    string
		ep      Endpoint
		wantErr bool
	}{
		{
			name: "valid tcp",
			ep:   Endpoint{DeviceID: "d", Address: "10.0.0.1", Port: 23, Transport: TransportTCP},
		},
		{
			name: "valid udp",
			ep:   Endpoint{DeviceID: "d", Address: "10.0.0.1", Port: 4000, Transport: TransportUDP},
		},
		{
			name:    "missing id",
			ep:      Endpoint{Address: "10.0.0.1", Port: 23, Transport: TransportTCP},
			wantErr: true,
		},
		{
			name:    "missing address",
			ep:      Endpoint{DeviceID: "d", Port: 23, Transport: TransportTCP},
			wantErr: true,
		},
		{
			name:    "port out of range",
			ep:      Endpoint{DeviceID: "d", Address: "10.0.0.1", Port: 70000, Transport: TransportTCP},
			wantErr: true,
		},
		{
			name:    "bad transport",
			ep:      Endpoint{DeviceID: "d", Address: "10.0.0.1", Port: 23, Transport: "serial"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ep.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewConn_RequiresClassifierForTCP(t *testing.T) {
	ep := Endpoint{DeviceID: "d", Address: "10.0.0.1", Port: 23, Transport: TransportTCP}
	if _, err := NewConn(ep, nil, Options{}); err == nil {
		t.Error("NewConn() without classifier for TCP expected error")
	}
}
