package instruments

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/webpdtool/engine/internal/app/domain/instrument"
	"github.com/webpdtool/engine/internal/app/services/handlers/chassis"
	"github.com/webpdtool/engine/internal/app/services/instruments/netdriver"
)

// PhysicalRegistry is the production DriverRegistry: it turns an instrument
// ID into a concrete driver using the station's configured address map.
//
// Two families of ID are recognised:
//
//   - Dynamic IDs the handlers mint themselves from point parameters
//     ("serial:<port>", "console:<host>", "tcp:<host>:<port>") back a
//     stateless DialDriver that dials fresh per call, since the point
//     supplies the endpoint every time.
//   - Named instrument IDs (switch_mode values such as "MODEL2303" or
//     "chassis") are looked up in the configured port map and bound to a
//     persistent driver for the life of the Instrument Manager entry.
type PhysicalRegistry struct {
	ports       map[string]string
	sshUser     string
	sshPassword string
}

// NewPhysicalRegistry builds a registry over a station's configured
// instrument address map (see config.Config.InstrumentPorts). sshUser and
// sshPassword authenticate "console:" instruments (the DialDriver's SSH
// path); named instruments do not use them. They may be empty where console
// access is unused.
func NewPhysicalRegistry(ports map[string]string, sshUser, sshPassword string) *PhysicalRegistry {
	return &PhysicalRegistry{ports: ports, sshUser: sshUser, sshPassword: sshPassword}
}

// NewDriver satisfies instruments.DriverRegistry.
func (r *PhysicalRegistry) NewDriver(instrumentID string) (instrument.Driver, error) {
	switch {
	case strings.HasPrefix(instrumentID, "serial:"),
		strings.HasPrefix(instrumentID, "console:"),
		strings.HasPrefix(instrumentID, "tcp:"):
		return netdriver.NewDialDriver(r.sshUser, r.sshPassword), nil
	case instrumentID == "chassis" || strings.HasPrefix(instrumentID, "chassis:"):
		addr, ok := r.ports[instrumentID]
		if !ok {
			return nil, fmt.Errorf("No instrument found: no configured port for %s", instrumentID)
		}
		transport, err := chassis.OpenSerialTransport(addr)
		if err != nil {
			return nil, err
		}
		return chassis.NewDriver(transport), nil
	default:
		addr, ok := r.ports[instrumentID]
		if !ok {
			return nil, fmt.Errorf("No instrument found: no configured port for %s", instrumentID)
		}
		return netdriver.NewDriver(addr, dialFor(addr)), nil
	}
}

// dialFor picks DialTCP for a "host:port" address and DialSerial for
// anything else (a bare device path, e.g. "/dev/ttyUSB0").
func dialFor(addr string) func(ctx context.Context, addr string) (netdriver.Conn, error) {
	if looksLikeHostPort(addr) {
		return netdriver.DialTCP
	}
	return func(_ context.Context, addr string) (netdriver.Conn, error) {
		return netdriver.DialSerial(addr)
	}
}

func looksLikeHostPort(addr string) bool {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return false
	}
	_, err := strconv.Atoi(addr[idx+1:])
	return err == nil
}
