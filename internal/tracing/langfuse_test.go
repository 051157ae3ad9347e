package tracing

import "testing"

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	cfg := ConfigFromEnv()
	if cfg.Host != defaultHost {
		t.Errorf("Host: expected %q, got %q", defaultHost, cfg.Host)
	}
	if cfg.Enabled() {
		t.Error("expected tracing disabled without keys")
	}
}

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{},
		{PublicKey: "pk"},
		{SecretKey: "sk"},
	}
	for _, cfg := range cases {
		handler, flush, ok := Setup(cfg)
		if ok || handler != nil || flush != nil {
			t.Errorf("Setup(%+v): expected disabled, got ok=%v", cfg, ok)
		}
	}
}

func TestInstall_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	flush, ok := Install(Config{})
	if ok {
		t.Fatal("expected ok=false")
	}
	flush()
}
