package matrix

import (
	"errors"
	"testing"

	"github.com/quarterline/avops-core/internal/control"
)

func TestEncodeSwitch(t *testing.T) {
	tests := []struct {
		name    string
		input   int
		output  int
		want    string
		wantErr bool
	}{
		{name: "first pair", input: 1, output: 1, want: "1X1."},
		{name: "typical", input: 3, output: 2, want: "3X2."},
		{name: "double digit", input: 12, output: 8, want: "12X8."},
		{name: "zero input", input: 0, output: 1, wantErr: true},
		{name: "zero output", input: 1, output: 0, wantErr: true},
		{name: "negative", input: -1, output: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeSwitch(tt.input, tt.output)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidChannel) {
					t.Fatalf("EncodeSwitch() error = %v, want ErrInvalidChannel", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeSwitch() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeSwitch() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSwitchRequest_Terminator(t *testing.T) {
	tcp, err := SwitchRequest(1, 2, control.TransportTCP)
	if err != nil {
		t.Fatalf("SwitchRequest(tcp) error = %v", err)
	}
	if tcp.Command != "1X2.\r" {
		t.Errorf("tcp command = %q, want CR terminated", tcp.Command)
	}
	if tcp.Kind != "switch" {
		t.Errorf("tcp kind = %q, want switch", tcp.Kind)
	}

	udp, err := SwitchRequest(1, 2, control.TransportUDP)
	if err != nil {
		t.Fatalf("SwitchRequest(udp) error = %v", err)
	}
	if udp.Command != "1X2." {
		t.Errorf("udp command = %q, want bare command", udp.Command)
	}
}

func TestClassify(t *testing.T) {
	sent := "1X2.\r"

	tests := []struct {
		name   string
		cfg    *ClassifierConfig
		buf    string
		closed bool
		want   control.Verdict
	}{
		{
			name: "explicit ok",
			buf:  "1X2.OK\r\n",
			want: control.Accepted,
		},
		{
			name: "ok flanked by echo",
			buf:  "1X2. OK",
			want: control.Accepted,
		},
		{
			name: "explicit err",
			buf:  "ERR: bad channel",
			want: control.Rejected,
		},
		{
			name: "error word",
			buf:  "Error 3",
			want: control.Rejected,
		},
		{
			name: "err wins over length",
			buf:  "ERR: this response is far longer than the echo",
			want: control.Rejected,
		},
		{
			name: "echo longer than sent plus slack",
			buf:  "1X2.ROUTED1",
			want: control.Accepted,
		},
		{
			name: "bare echo stays pending",
			buf:  "1X2.",
			want: control.Pending,
		},
		{
			name: "echo within slack stays pending",
			buf:  "1X2.\r\n",
			want: control.Pending,
		},
		{
			name: "heuristic disabled",
			cfg:  &ClassifierConfig{ImplicitSuccess: false},
			buf:  "1X2.ROUTED1",
			want: control.Pending,
		},
		{
			name:   "close with data",
			buf:    "ack",
			closed: true,
			want:   control.Accepted,
		},
		{
			name:   "close empty",
			buf:    "",
			closed: true,
			want:   control.Rejected,
		},
		{
			name: "silence stays pending",
			buf:  "",
			want: control.Pending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ClassifierConfig{ImplicitSuccess: true}
			if tt.cfg != nil {
				cfg = *tt.cfg
			}
			c := NewClassifier(cfg)
			got := c.Classify([]byte(tt.buf), sent, tt.closed)
			if got.Verdict != tt.want {
				t.Errorf("Classify(%q) verdict = %v, want %v (reason %q)",
					tt.buf, got.Verdict, tt.want, got.Reason)
			}
		})
	}
}

func TestClassify_RejectReasonIsTrimmedResponse(t *testing.T) {
	c := NewClassifier(ClassifierConfig{ImplicitSuccess: true})
	got := c.Classify([]byte("ERR: bad channel\r\n"), "9X1.\r", false)
	if got.Verdict != control.Rejected {
		t.Fatalf("verdict = %v, want Rejected", got.Verdict)
	}
	if got.Reason != "ERR: bad channel" {
		t.Errorf("reason = %q, want trimmed device text", got.Reason)
	}
}
