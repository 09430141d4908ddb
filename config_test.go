package dbsession

import "testing"

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	cases := map[string]string{
		"Table":        cfg.Table,
		"IDColumn":     cfg.IDColumn,
		"DataColumn":   cfg.DataColumn,
		"ExpiryColumn": cfg.ExpiryColumn,
		"TimeColumn":   cfg.TimeColumn,
	}
	want := map[string]string{
		"Table":        "sessions",
		"IDColumn":     "sess_id",
		"DataColumn":   "sess_data",
		"ExpiryColumn": "sess_expiry",
		"TimeColumn":   "sess_time",
	}
	for field, got := range cases {
		if got != want[field] {
			t.Errorf("%s: got %q, want %q", field, got, want[field])
		}
	}
}

func TestConfigDefaultsPreserveOverrides(t *testing.T) {
	cfg := Config{Table: "custom_sessions"}
	cfg.applyDefaults()
	if cfg.Table != "custom_sessions" {
		t.Errorf("expected override to survive applyDefaults, got %q", cfg.Table)
	}
	if cfg.IDColumn != "sess_id" {
		t.Errorf("expected unset field to still default, got %q", cfg.IDColumn)
	}
}

func TestConfigDefaultLockModeIsTransactional(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	if cfg.LockMode == nil || *cfg.LockMode != LockTransactional {
		t.Fatalf("expected default LockMode to be LockTransactional, got %v", cfg.LockMode)
	}
}

func TestConfigDefaultsPreserveExplicitLockNone(t *testing.T) {
	cfg := Config{LockMode: LockModePtr(LockNone)}
	cfg.applyDefaults()
	if cfg.LockMode == nil || *cfg.LockMode != LockNone {
		t.Fatalf("expected an explicit LockNone to survive applyDefaults, got %v", cfg.LockMode)
	}
}

func TestLockModeString(t *testing.T) {
	cases := map[LockMode]string{
		LockNone:          "none",
		LockAdvisory:      "advisory",
		LockTransactional: "transactional",
		LockMode(99):      "unknown",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", mode, got, want)
		}
	}
}

func TestNewHandlerRequiresMaxLifetime(t *testing.T) {
	_, err := NewHandler(DriverSQLite, Config{})
	if err == nil {
		t.Fatal("expected an error when MaxLifetime is not configured")
	}
}

func TestNewHandlerRejectsUnknownDriver(t *testing.T) {
	_, err := NewHandler(Driver("mongo"), Config{MaxLifetime: func() int { return 60 }})
	if err == nil {
		t.Fatal("expected an error for an unregistered driver")
	}
}
