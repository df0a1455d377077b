package netdriver

import (
	"context"
	"fmt"
	"time"
)

// DialDriver backs the handler-level interfaces whose methods already carry
// a host/port/device argument per call (SerialDriver, ConsoleDriver,
// TCPDriver). Each call dials fresh, round-trips one command, and closes;
// there is no persistent session to reset, since the point itself names the
// endpoint every time.
type DialDriver struct {
	sshUser     string
	sshPassword string
}

// NewDialDriver builds a DialDriver. sshUser/sshPassword are used only by
// RunCommand (ConSole handler) and may be empty for deployments that gate
// console access some other way.
func NewDialDriver(sshUser, sshPassword string) *DialDriver {
	return &DialDriver{sshUser: sshUser, sshPassword: sshPassword}
}

func (d *DialDriver) Initialize() error  { return nil }
func (d *DialDriver) Reset() error       { return nil }
func (d *DialDriver) NeedsReset() bool   { return false }

// SendCommand satisfies handlers.SerialDriver.
func (d *DialDriver) SendCommand(ctx context.Context, port string, baud int, command string, timeout time.Duration) (string, error) {
	conn, err := DialSerial(port)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.WriteLine(ctx, command); err != nil {
		return "", err
	}
	return conn.ReadLine(ctx, timeout)
}

// RunCommand satisfies handlers.ConsoleDriver.
func (d *DialDriver) RunCommand(ctx context.Context, host, command string, timeout time.Duration) (string, error) {
	addr := host
	if !hasPort(host) {
		addr = host + ":22"
	}
	runner, err := DialSSH(ctx, addr, d.sshUser, d.sshPassword, timeout)
	if err != nil {
		return "", err
	}
	defer runner.Close()
	return runner.Run(ctx, command, timeout)
}

// SendLine satisfies handlers.TCPDriver.
func (d *DialDriver) SendLine(ctx context.Context, host, port, line string, timeout time.Duration) (string, error) {
	conn, err := DialTCP(ctx, fmt.Sprintf("%s:%s", host, port))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.WriteLine(ctx, line); err != nil {
		return "", err
	}
	return conn.ReadLine(ctx, timeout)
}

func hasPort(host string) bool {
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return true
		}
		if host[i] == ']' {
			return false
		}
	}
	return false
}
