//go:build unix

package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Default socket buffer sizes.
const (
	DefaultUDPBufSize  = 1 << 16
	DefaultUnixBufSize = 1 << 18
)

// socket is a non-blocking datagram socket driven through raw recvfrom and
// sendto calls with MSG_DONTWAIT, so nothing ever parks the caller.
type socket struct {
	network string
	addr    string
	bufSize int

	conn  net.PacketConn
	raw   syscall.RawConn
	inet6 bool
	buf   []byte
	addrs map[string]unix.Sockaddr
}

// UDP is a non-blocking UDP transport.
type UDP struct{ socket }

// NewUDP returns an unopened UDP transport for addr ("host:port").
func NewUDP(addr string, bufSize int) *UDP {
	if bufSize <= 0 {
		bufSize = DefaultUDPBufSize
	}
	return &UDP{socket{network: "udp", addr: addr, bufSize: bufSize}}
}

// Unixgram is a non-blocking unix domain datagram transport. Its address is
// a socket file path.
type Unixgram struct{ socket }

// NewUnixgram returns an unopened unix datagram transport bound to path.
func NewUnixgram(path string, bufSize int) *Unixgram {
	if bufSize <= 0 {
		bufSize = DefaultUnixBufSize
	}
	return &Unixgram{socket{network: "unixgram", addr: path, bufSize: bufSize}}
}

var (
	_ Datagram = (*UDP)(nil)
	_ Datagram = (*Unixgram)(nil)
)

func (s *socket) Open() error {
	if s.conn != nil {
		return nil
	}
	var (
		conn interface {
			net.PacketConn
			SyscallConn() (syscall.RawConn, error)
			SetReadBuffer(int) error
			SetWriteBuffer(int) error
		}
		err error
	)
	switch s.network {
	case "udp":
		laddr, rerr := net.ResolveUDPAddr("udp", s.addr)
		if rerr != nil {
			return fmt.Errorf("resolve %s: %w", s.addr, rerr)
		}
		conn, err = net.ListenUDP("udp", laddr)
	case "unixgram":
		if dir := filepath.Dir(s.addr); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create socket dir: %w", err)
			}
		}
		// A leftover file from a dead process would make bind fail.
		_ = os.Remove(s.addr)
		conn, err = net.ListenUnixgram("unixgram", &net.UnixAddr{Name: s.addr, Net: "unixgram"})
	default:
		return fmt.Errorf("unsupported network %q", s.network)
	}
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", s.network, s.addr, err)
	}
	_ = conn.SetReadBuffer(s.bufSize)
	_ = conn.SetWriteBuffer(s.bufSize)

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return err
	}
	var inet6 bool
	_ = raw.Control(func(fd uintptr) {
		if sa, err := unix.Getsockname(int(fd)); err == nil {
			_, inet6 = sa.(*unix.SockaddrInet6)
		}
	})

	s.conn = conn
	s.raw = raw
	s.inet6 = inet6
	s.buf = make([]byte, s.bufSize)
	s.addrs = make(map[string]unix.Sockaddr)
	if s.network == "udp" {
		s.addr = conn.LocalAddr().String()
	}
	return nil
}

func (s *socket) Receive() ([]byte, string, error) {
	if s.conn == nil {
		return nil, "", ErrClosed
	}
	var (
		n    int
		from unix.Sockaddr
		rerr error
	)
	err := s.raw.Read(func(fd uintptr) bool {
		n, from, rerr = unix.Recvfrom(int(fd), s.buf, unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return nil, "", err
	}
	if rerr != nil {
		if errors.Is(rerr, unix.EAGAIN) || errors.Is(rerr, unix.EWOULDBLOCK) || errors.Is(rerr, unix.EINTR) {
			return nil, "", nil
		}
		// Late ICMP errors from earlier sends surface here on some kernels.
		if errors.Is(rerr, unix.ECONNREFUSED) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("recvfrom: %w", rerr)
	}
	data := make([]byte, n)
	copy(data, s.buf[:n])
	return data, sockaddrString(from), nil
}

func (s *socket) Send(b []byte, addr string) (int, error) {
	if s.conn == nil {
		return 0, ErrClosed
	}
	sa, err := s.sockaddr(addr)
	if err != nil {
		return 0, err
	}
	var werr error
	err = s.raw.Write(func(fd uintptr) bool {
		werr = unix.Sendto(int(fd), b, unix.MSG_DONTWAIT, sa)
		return true
	})
	if err != nil {
		return 0, err
	}
	if werr != nil {
		return 0, classifyErrno(werr)
	}
	return len(b), nil
}

func (s *socket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if s.network == "unixgram" {
		_ = os.Remove(s.addr)
	}
	return err
}

func (s *socket) Addr() string { return s.addr }

func (s *socket) sockaddr(addr string) (unix.Sockaddr, error) {
	if sa, ok := s.addrs[addr]; ok {
		return sa, nil
	}
	var sa unix.Sockaddr
	switch s.network {
	case "unixgram":
		sa = &unix.SockaddrUnix{Name: addr}
	default:
		ua, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", addr, err)
		}
		if ip4 := ua.IP.To4(); ip4 != nil && !s.inet6 {
			in4 := &unix.SockaddrInet4{Port: ua.Port}
			copy(in4.Addr[:], ip4)
			sa = in4
		} else if s.inet6 {
			in6 := &unix.SockaddrInet6{Port: ua.Port}
			copy(in6.Addr[:], ua.IP.To16())
			sa = in6
		} else {
			return nil, fmt.Errorf("address %s does not match an IPv4 socket", addr)
		}
	}
	s.addrs[addr] = sa
	return sa, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}
		return net.JoinHostPort(ip.String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		return a.Name
	default:
		return ""
	}
}

func classifyErrno(err error) error {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK),
		errors.Is(err, unix.ENOBUFS), errors.Is(err, unix.EINTR):
		return fmt.Errorf("%w: %v", ErrWouldBlock, err)
	case errors.Is(err, unix.ECONNREFUSED), errors.Is(err, unix.ENOENT),
		errors.Is(err, unix.ECONNRESET), errors.Is(err, unix.ENOTCONN):
		return fmt.Errorf("%w: %v", ErrPeerGone, err)
	default:
		return fmt.Errorf("sendto: %w", err)
	}
}
