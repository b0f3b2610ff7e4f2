package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestParsePeer(t *testing.T) {
	tests := []struct {
		entry   string
		want    Peer
		wantErr bool
	}{
		{entry: "8002", want: Peer{Name: "8002", Addr: "localhost:8002"}},
		{entry: " 8003 ", want: Peer{Name: "8003", Addr: "localhost:8003"}},
		{entry: "east@10.0.0.2:9000", want: Peer{Name: "east", Addr: "10.0.0.2:9000"}},
		{entry: "east@", wantErr: true},
		{entry: "host:8001", wantErr: true},
		{entry: "*", wantErr: true},
		{entry: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := ParsePeer(tt.entry, "localhost")
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePeer: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidateAndResolve(t *testing.T) {
	cfg := Default()
	cfg.Name = "8001"
	cfg.Peers = []string{"8002", "west@192.168.1.5:7000"}

	peers, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ListenAddress() != "localhost:8001" {
		t.Errorf("unexpected listen address %q", cfg.ListenAddress())
	}

	resolve := cfg.Resolver(peers)
	for name, want := range map[string]string{
		"8002":           "localhost:8002",
		"west":           "192.168.1.5:7000",
		"8009":           "localhost:8009",
		"other.net:1234": "other.net:1234",
	} {
		if got := resolve(name); got != want {
			t.Errorf("resolve(%q) = %q, want %q", name, got, want)
		}
	}

	dup := cfg
	dup.Peers = []string{"8002", "8001"}
	if _, err := dup.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected a peer named after the server to be rejected, got %v", err)
	}

	named := cfg
	named.Name = "east"
	if _, err := named.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected a non-numeric name without listen_addr to be rejected, got %v", err)
	}
	named.ListenAddr = ":9000"
	if _, err := named.Validate(); err != nil {
		t.Errorf("Validate with listen_addr: %v", err)
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Name: "8001", Peers: []string{"8002"}, IOTimeout: time.Second})
	if cfg.Name != "8001" || cfg.IOTimeout != time.Second || cfg.QueueSize != Default().QueueSize {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if diff := cmp.Diff([]string{"8002"}, cfg.Peers); diff != "" {
		t.Errorf("peers (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	logger := zerolog.Nop()
	dir := t.TempDir()

	t.Run("missing file without write", func(t *testing.T) {
		path := filepath.Join(dir, "absent.yaml")
		cfg, got, err := Load(&logger, path, false)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got != path || cfg.BufferSize != Default().BufferSize {
			t.Fatalf("unexpected result %q %+v", got, cfg)
		}
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("config file should not have been written")
		}
	})

	t.Run("file and env", func(t *testing.T) {
		path := filepath.Join(dir, "server.yaml")
		data := "name: \"8001\"\npeers:\n  - \"8002\"\nio_timeout: 2s\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		t.Setenv("MESHCHAT_LOG_LEVEL", "debug")

		cfg, _, err := Load(&logger, path, false)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Name != "8001" || cfg.IOTimeout != 2*time.Second || cfg.LogLevel != "debug" {
			t.Fatalf("unexpected config %+v", cfg)
		}
		if diff := cmp.Diff([]string{"8002"}, cfg.Peers); diff != "" {
			t.Errorf("peers (-want +got):\n%s", diff)
		}
	})

	t.Run("writes defaults", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "config.yaml")
		if _, _, err := Load(&logger, path, true); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected default config to be written: %v", err)
		}
	})
}
