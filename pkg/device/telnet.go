package device

import (
	"context"
	"net"
	"sync"

	"github.com/nxshell/nxshell/pkg/resource"
)

// Telnet protocol bytes (RFC 854).
const (
	telnetIAC  = 255
	telnetDONT = 254
	telnetDO   = 253
	telnetWONT = 252
	telnetWILL = 251
	telnetSB   = 250
	telnetSE   = 240

	telnetEcho            = 1
	telnetSuppressGoAhead = 3
)

// telnetConn strips option negotiation from the stream. The client agrees
// to the server echoing and suppressing go-ahead and refuses every other
// option.
type telnetConn struct {
	net.Conn
	wmu sync.Mutex

	state int // 0 data, 1 after IAC, 2 after verb, 3 in subnegotiation, 4 IAC in subnegotiation
	verb  byte
}

// DialTelnet opens a Telnet connection. Login prompts are answered by the
// session.
func DialTelnet(ctx context.Context, cfg *resource.Config, opts DialOptions) (Conn, error) {
	raw, _, err := dialTCP(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &telnetConn{Conn: raw}, nil
}

func (t *telnetConn) Read(p []byte) (int, error) {
	for {
		n, err := t.Conn.Read(p)
		if n > 0 {
			out := t.filter(p[:n])
			if out > 0 || err != nil {
				return out, err
			}
			continue
		}
		return n, err
	}
}

// filter removes protocol bytes from p in place and answers negotiation.
func (t *telnetConn) filter(p []byte) int {
	out := 0
	for _, b := range p {
		switch t.state {
		case 0:
			if b == telnetIAC {
				t.state = 1
				continue
			}
			p[out] = b
			out++
		case 1:
			switch b {
			case telnetIAC:
				p[out] = b
				out++
				t.state = 0
			case telnetDO, telnetDONT, telnetWILL, telnetWONT:
				t.verb = b
				t.state = 2
			case telnetSB:
				t.state = 3
			default:
				t.state = 0
			}
		case 2:
			t.negotiate(t.verb, b)
			t.state = 0
		case 3:
			if b == telnetIAC {
				t.state = 4
			}
		case 4:
			if b == telnetSE {
				t.state = 0
			} else {
				t.state = 3
			}
		}
	}
	return out
}

func (t *telnetConn) negotiate(verb, opt byte) {
	var reply byte
	switch verb {
	case telnetWILL:
		if opt == telnetEcho || opt == telnetSuppressGoAhead {
			reply = telnetDO
		} else {
			reply = telnetDONT
		}
	case telnetDO:
		if opt == telnetSuppressGoAhead {
			reply = telnetWILL
		} else {
			reply = telnetWONT
		}
	default:
		return
	}
	t.wmu.Lock()
	t.Conn.Write([]byte{telnetIAC, reply, opt})
	t.wmu.Unlock()
}

func (t *telnetConn) Write(p []byte) (int, error) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.Conn.Write(p)
}
