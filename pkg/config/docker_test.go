package config

import (
	"strings"
	"testing"
)

func TestResolveHostForDocker_RemoteHostsUnchanged(t *testing.T) {
	for _, host := range []string{"db.example.com", "10.0.0.12", "host.docker.internal"} {
		if got := ResolveHostForDocker(host); got != host {
			t.Errorf("ResolveHostForDocker(%q) = %q, want %q", host, got, host)
		}
	}
}

func TestResolveHostForDocker_Loopback(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1", "::1"} {
		want := host
		if IsRunningInDocker() {
			want = "host.docker.internal"
		}
		if got := ResolveHostForDocker(host); got != want {
			t.Errorf("ResolveHostForDocker(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestSyncConfig_ConnectionStringResolvesHost(t *testing.T) {
	cfg := &SyncConfig{Host: "localhost", Port: 5432, User: "survey", Password: "pw", Database: "surveys", SSLMode: "disable"}

	dsn := cfg.ConnectionString()

	wantHost := "@localhost:5432/"
	if IsRunningInDocker() {
		wantHost = "@host.docker.internal:5432/"
	}
	if !strings.Contains(dsn, wantHost) {
		t.Errorf("ConnectionString() = %q, want host segment %q", dsn, wantHost)
	}
}
