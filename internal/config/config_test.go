package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestMergeOverridesNonZero(t *testing.T) {
	base := Default()
	got := base.Merge(Config{Addr: ":1", CtxSize: 128, Store: Store{Kind: "none"}, Defaults: Defaults{TopK: 5}})
	if got.Addr != ":1" || got.CtxSize != 128 || got.Store.Kind != "none" || got.Defaults.TopK != 5 {
		t.Fatalf("override not applied: %+v", got)
	}
	if got.BatchSize != base.BatchSize || got.Log != base.Log || got.Defaults.TopP != base.Defaults.TopP {
		t.Fatalf("zero fields must keep base values: %+v", got)
	}
	if base.Addr != ":8080" {
		t.Fatalf("merge mutated receiver")
	}
}

func TestMergeStoreKindPath(t *testing.T) {
	base := Default()
	cases := []struct {
		name string
		in   Store
		want Store
	}{
		{"kind only", Store{Kind: "sqlite"}, Store{Kind: "sqlite", Path: "~/.local/share/dialogd/conversations.db"}},
		{"kind and path", Store{Kind: "sqlite", Path: "/tmp/s.db"}, Store{Kind: "sqlite", Path: "/tmp/s.db"}},
		{"same kind keeps path", Store{Kind: "FILE"}, base.Store},
		{"path only", Store{Path: "/tmp/c.json"}, Store{Kind: "file", Path: "/tmp/c.json"}},
		{"dynamodb", Store{Kind: "dynamodb", Table: "t"}, Store{Kind: "dynamodb", Table: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := base.Merge(Config{Store: tc.in})
			if got.Store != tc.want {
				t.Fatalf("store=%+v want %+v", got.Store, tc.want)
			}
			if err := got.Validate(); err != nil {
				t.Fatalf("merged config invalid: %v", err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{EnvAddr: ":9", EnvModel: "/m.gguf"}
	got := Default().ApplyEnv(func(k string) string { return env[k] })
	if got.Addr != ":9" || got.ModelPath != "/m.gguf" || got.Log.Level != "info" {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ctx", func(c *Config) { c.CtxSize = 0 }, "ctx_size"},
		{"negative queue", func(c *Config) { c.MaxQueueDepth = -1 }, "max_queue_depth"},
		{"file path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"dynamo table", func(c *Config) { c.Store = Store{Kind: "dynamodb"} }, "store.table"},
		{"store kind", func(c *Config) { c.Store.Kind = "redis" }, "unknown store kind"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"top_p", func(c *Config) { c.Defaults.TopP = 2 }, "sampling"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	c := Config{MaxWaitMS: 1500, DrainTimeoutMS: 20, AutosaveSeconds: 2}
	if c.MaxWait() != 1500*time.Millisecond || c.DrainTimeout() != 20*time.Millisecond || c.AutosaveInterval() != 2*time.Second {
		t.Fatalf("unexpected durations")
	}
	if c.GenerateTimeout() != 0 {
		t.Fatalf("generate timeout should be disabled")
	}
}
