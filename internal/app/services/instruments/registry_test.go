package instruments

import (
	"strings"
	"testing"

	"github.com/webpdtool/engine/internal/app/services/instruments/netdriver"
)

func TestPhysicalRegistryRoutesDynamicPrefixesToDialDriver(t *testing.T) {
	reg := NewPhysicalRegistry(map[string]string{}, "user", "pass")

	for _, id := range []string{"serial:/dev/ttyUSB0", "console:10.0.0.9", "tcp:10.0.0.9:5000"} {
		drv, err := reg.NewDriver(id)
		if err != nil {
			t.Fatalf("NewDriver(%q): %v", id, err)
		}
		if _, ok := drv.(*netdriver.DialDriver); !ok {
			t.Fatalf("expected *netdriver.DialDriver for %q, got %T", id, drv)
		}
	}
}

func TestPhysicalRegistryNamedInstrumentUsesConfiguredPort(t *testing.T) {
	reg := NewPhysicalRegistry(map[string]string{"MODEL2303": "10.0.0.5:5025"}, "", "")

	drv, err := reg.NewDriver("MODEL2303")
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if _, ok := drv.(*netdriver.Driver); !ok {
		t.Fatalf("expected *netdriver.Driver, got %T", drv)
	}
}

func TestPhysicalRegistryUnknownNamedInstrumentIsNoInstrumentFound(t *testing.T) {
	reg := NewPhysicalRegistry(map[string]string{}, "", "")

	_, err := reg.NewDriver("UNCONFIGURED")
	if err == nil {
		t.Fatalf("expected error for unconfigured instrument id")
	}
	if !strings.HasPrefix(err.Error(), "No instrument found") {
		t.Fatalf("expected a \"No instrument found\" error, got %q", err)
	}
}

func TestPhysicalRegistryChassisWithoutConfiguredPortIsNoInstrumentFound(t *testing.T) {
	reg := NewPhysicalRegistry(map[string]string{}, "", "")

	_, err := reg.NewDriver("chassis")
	if err == nil {
		t.Fatalf("expected error for chassis with no configured port")
	}
	if !strings.HasPrefix(err.Error(), "No instrument found") {
		t.Fatalf("expected a \"No instrument found\" error, got %q", err)
	}
}
