package config

import "testing"

func TestConnectionString(t *testing.T) {
	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "user", Password: "pass", Name: "db", SSLMode: "disable"}
	want := "host=localhost port=5432 user=user password=pass dbname=db sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Fatalf("connection string mismatch: %s", got)
	}
}

func TestConnectionString_EmptyFields(t *testing.T) {
	cfg := DatabaseConfig{}
	want := "host= port=0 user= password= dbname= sslmode="
	if got := cfg.ConnectionString(); got != want {
		t.Fatalf("connection string mismatch: %s", got)
	}
}

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg == nil {
		t.Fatal("New() should return non-nil config")
	}
	if cfg.ServerHost != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.ServerHost)
	}
	if cfg.ServerPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.ServerPort)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected default MaxOpenConns 10, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected default MaxIdleConns 5, got %d", cfg.Database.MaxIdleConns)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.StationID == "" {
		t.Error("expected a non-empty default StationID")
	}
	if !cfg.AutoMigrate {
		t.Error("expected AutoMigrate to default to true")
	}
}

func TestParseEnvironment(t *testing.T) {
	cases := map[string]bool{
		"development": true,
		"testing":     true,
		"production":  true,
		"staging":     false,
		"":            false,
	}
	for in, wantOK := range cases {
		_, ok := ParseEnvironment(in)
		if ok != wantOK {
			t.Errorf("ParseEnvironment(%q) ok = %v, want %v", in, ok, wantOK)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEBPD_ENV", "testing")
	t.Setenv("SERVER_HOST", "test.local")
	t.Setenv("SERVER_PORT", "3000")
	t.Setenv("DB_HOST", "db.test.local")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("STATION_ID", "station-qa")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Env != Testing {
		t.Errorf("expected testing environment, got %s", cfg.Env)
	}
	if cfg.ServerHost != "test.local" {
		t.Errorf("expected SERVER_HOST override test.local, got %s", cfg.ServerHost)
	}
	if cfg.ServerPort != 3000 {
		t.Errorf("expected SERVER_PORT override 3000, got %d", cfg.ServerPort)
	}
	if cfg.Database.Host != "db.test.local" {
		t.Errorf("expected DB_HOST override db.test.local, got %s", cfg.Database.Host)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected LOG_LEVEL override warn, got %s", cfg.LogLevel)
	}
	if cfg.StationID != "station-qa" {
		t.Errorf("expected STATION_ID override station-qa, got %s", cfg.StationID)
	}
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("WEBPD_ENV", "staging")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unrecognised WEBPD_ENV")
	}
}

func TestLoadFromEnv_InstrumentPorts(t *testing.T) {
	t.Setenv("WEBPD_ENV", "development")
	t.Setenv("INSTRUMENT_PORTS", "power1=/dev/ttyUSB0, chassis=/dev/ttyUSB1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.InstrumentPorts["power1"] != "/dev/ttyUSB0" {
		t.Errorf("expected power1 port mapping, got %q", cfg.InstrumentPorts["power1"])
	}
	if cfg.InstrumentPorts["chassis"] != "/dev/ttyUSB1" {
		t.Errorf("expected chassis port mapping, got %q", cfg.InstrumentPorts["chassis"])
	}
}

func TestLoadFromEnv_InvalidInstrumentPorts(t *testing.T) {
	t.Setenv("WEBPD_ENV", "development")
	t.Setenv("INSTRUMENT_PORTS", "not-a-valid-pair")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a malformed INSTRUMENT_PORTS entry")
	}
}

func TestValidate_RequiresStationID(t *testing.T) {
	cfg := New()
	cfg.StationID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an empty StationID")
	}
}

func TestValidate_ProductionRequiresPassword(t *testing.T) {
	cfg := New()
	cfg.Env = Production
	cfg.Database.SSLMode = "require"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when DB_PASSWORD is unset in production")
	}

	cfg.Database.Password = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error once password is set: %v", err)
	}
}

func TestValidate_ProductionRejectsDisabledSSL(t *testing.T) {
	cfg := New()
	cfg.Env = Production
	cfg.Database.Password = "secret"
	cfg.Database.SSLMode = "disable"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when SSL is disabled in production")
	}
}

func TestEnvironmentPredicates(t *testing.T) {
	cfg := New()
	cfg.Env = Testing
	if cfg.IsDevelopment() || cfg.IsProduction() || !cfg.IsTesting() {
		t.Fatalf("unexpected environment predicates for %s", cfg.Env)
	}
}
