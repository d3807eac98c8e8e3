package device

import (
	"bytes"
	"net"
	"testing"
)

type recordConn struct {
	net.Conn
	written bytes.Buffer
}

func (r *recordConn) Write(p []byte) (int, error) { return r.written.Write(p) }

func TestTelnetFilter(t *testing.T) {
	tests := []struct {
		name  string
		in    []byte
		want  string
		reply []byte
	}{
		{
			name: "plain text",
			in:   []byte("login: "),
			want: "login: ",
		},
		{
			name:  "will echo accepted",
			in:    []byte{telnetIAC, telnetWILL, telnetEcho, 'o', 'k'},
			want:  "ok",
			reply: []byte{telnetIAC, telnetDO, telnetEcho},
		},
		{
			name:  "do terminal type refused",
			in:    []byte{telnetIAC, telnetDO, 24, 'x'},
			want:  "x",
			reply: []byte{telnetIAC, telnetWONT, 24},
		},
		{
			name:  "do suppress go ahead accepted",
			in:    []byte{telnetIAC, telnetDO, telnetSuppressGoAhead},
			reply: []byte{telnetIAC, telnetWILL, telnetSuppressGoAhead},
		},
		{
			name: "subnegotiation dropped",
			in:   []byte{'a', telnetIAC, telnetSB, 24, 1, telnetIAC, telnetSE, 'b'},
			want: "ab",
		},
		{
			name: "escaped IAC kept",
			in:   []byte{'a', telnetIAC, telnetIAC, 'b'},
			want: "a\xffb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &recordConn{}
			tc := &telnetConn{Conn: rc}
			buf := append([]byte(nil), tt.in...)
			n := tc.filter(buf)
			if got := string(buf[:n]); got != tt.want {
				t.Errorf("filter() = %q, want %q", got, tt.want)
			}
			if !bytes.Equal(rc.written.Bytes(), tt.reply) {
				t.Errorf("reply = %v, want %v", rc.written.Bytes(), tt.reply)
			}
		})
	}
}

func TestTelnetFilter_SplitSequence(t *testing.T) {
	rc := &recordConn{}
	tc := &telnetConn{Conn: rc}

	first := []byte{'a', telnetIAC}
	second := []byte{telnetWILL, telnetEcho, 'b'}
	n1 := tc.filter(first)
	n2 := tc.filter(second)
	if got := string(first[:n1]) + string(second[:n2]); got != "ab" {
		t.Errorf("filtered = %q, want %q", got, "ab")
	}
	if !bytes.Equal(rc.written.Bytes(), []byte{telnetIAC, telnetDO, telnetEcho}) {
		t.Errorf("reply = %v", rc.written.Bytes())
	}
}
