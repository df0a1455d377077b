// Package netdriver implements the physical instrument drivers behind the
// handlers package's class interfaces (PowerDriver, MeterDriver,
// SerialDriver, ConsoleDriver, TCPDriver, RelayDriver, RFDriver, MPUDriver).
// Every instrument in the fleet speaks line-oriented text over one of three
// transports: a TCP socket, a local serial device, or an SSH console, so a
// single command/response round trip is the common primitive.
package netdriver

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Conn is the minimal capability the generic drivers need: write a command
// line, read back one response line within a deadline.
type Conn interface {
	WriteLine(ctx context.Context, line string) error
	ReadLine(ctx context.Context, timeout time.Duration) (string, error)
	Close() error
}

// DialTCP opens a line-oriented TCP connection to addr ("host:port").
func DialTCP(ctx context.Context, addr string) (Conn, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netdriver: dial tcp %s: %w", addr, err)
	}
	return &streamConn{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// DialSerial opens a local serial/character device at path. The OS exposes
// no portable termios configuration primitive through the standard library,
// so baud/parity are left at whatever the device driver or udev rule already
// configured; callers needing non-default line settings must configure the
// device out of band (e.g. via stty before the process starts).
func DialSerial(path string) (Conn, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("netdriver: open serial %s: %w", path, err)
	}
	return &streamConn{conn: f, reader: bufio.NewReader(f)}, nil
}

// streamConn adapts any io.ReadWriteCloser (a TCP socket or an open serial
// device) to Conn. Reads run on a background goroutine so a hung instrument
// cannot block the caller past its requested timeout.
type streamConn struct {
	conn   readWriteCloser
	reader *bufio.Reader
}

type readWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func (c *streamConn) WriteLine(ctx context.Context, line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	done := make(chan error, 1)
	go func() {
		_, err := c.conn.Write([]byte(line))
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *streamConn) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := c.reader.ReadString('\n')
		done <- result{line: strings.TrimRight(line, "\r\n"), err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.line, r.err
	case <-timer.C:
		return "", fmt.Errorf("netdriver: read timed out after %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *streamConn) Close() error { return c.conn.Close() }

// sshRunner issues one command per SSH session against a pre-authenticated
// client, matching RunCommand's stateless per-call contract.
type sshRunner struct {
	client *ssh.Client
}

// DialSSH connects to addr ("host:22") with the given credentials. Password
// auth is the common case for embedded console fixtures. The returned runner
// can issue several commands over one client; DialDriver.RunCommand dials a
// new client per call and closes it afterwards.
func DialSSH(ctx context.Context, addr, user, password string, timeout time.Duration) (*sshRunner, error) {
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("netdriver: ssh dial %s: %w", addr, err)
	}
	return &sshRunner{client: client}, nil
}

func (r *sshRunner) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("netdriver: ssh session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out: out, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return strings.TrimSpace(string(r.out)), r.err
	case <-timer.C:
		return "", fmt.Errorf("netdriver: ssh command timed out after %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *sshRunner) Close() error { return r.client.Close() }
