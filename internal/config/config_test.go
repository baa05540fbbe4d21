package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORE_DRIVER", "JWT_ISSUER", "JWT_TTL", "CORS_ORIGINS", "WS_RATE_WINDOW"} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()
	if cfg.HTTPAddr != ":8001" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Fatalf("StoreDriver=%q", cfg.StoreDriver)
	}
	if cfg.JWTIssuer != "" {
		t.Fatalf("JWTIssuer=%q, issuer check must be off by default", cfg.JWTIssuer)
	}
	if cfg.JWTTTL != 7*24*time.Hour {
		t.Fatalf("JWTTTL=%s", cfg.JWTTTL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("CORSOrigins=%v", cfg.CORSOrigins)
	}
	if cfg.WSRateWindow != 10*time.Second {
		t.Fatalf("WSRateWindow=%s", cfg.WSRateWindow)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/rentchat")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("WS_SEND_QUEUE", "-3")
	t.Setenv("IDENTITY_CACHE_TTL", "2m")

	cfg := FromEnv()
	if cfg.StoreDriver != DriverPostgres || cfg.DBDSN == "" {
		t.Fatalf("store config not read: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("CORSOrigins=%v", cfg.CORSOrigins)
	}
	if cfg.WSSendQueue != 256 {
		t.Fatalf("negative queue must fall back to default, got %d", cfg.WSSendQueue)
	}
	if cfg.IdentityCacheTTL != 2*time.Minute {
		t.Fatalf("IdentityCacheTTL=%s", cfg.IdentityCacheTTL)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing secret", cfg: Config{StoreDriver: DriverMemory}, wantErr: "JWT_SECRET"},
		{name: "memory ok", cfg: Config{StoreDriver: DriverMemory, JWTSecret: "s"}},
		{name: "postgres without dsn", cfg: Config{StoreDriver: DriverPostgres, JWTSecret: "s"}, wantErr: "DB_DSN"},
		{name: "mongo without url", cfg: Config{StoreDriver: DriverMongo, JWTSecret: "s"}, wantErr: "MONGO_URL"},
		{name: "unknown driver", cfg: Config{StoreDriver: "sqlite", JWTSecret: "s"}, wantErr: "unknown STORE_DRIVER"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%v want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "text")

	log.Info("dropped")
	log.Warn("kept", "k", "v")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=kept") || !strings.Contains(out, "k=v") {
		t.Fatalf("unexpected text output: %q", out)
	}

	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatalf("unknown level should map to info")
	}
}
