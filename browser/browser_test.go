package browser

import "testing"

func TestShouldBlock(t *testing.T) {
	blockSet := map[string]bool{"images": true, "fonts": true}
	cases := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"Stylesheet", false},
		{"Document", false},
		{"XHR", false},
	}
	for _, c := range cases {
		if got := shouldBlock(blockSet, c.resType); got != c.want {
			t.Errorf("shouldBlock(%q): got %v, want %v", c.resType, got, c.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("headless") != ModeHeadless {
		t.Fatal("headless not parsed")
	}
	if ParseMode("headful") != ModeHeadful || ParseMode("") != ModeHeadful {
		t.Fatal("headful must be the fallback")
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.MemoryWarnLimit != 1<<30 {
		t.Fatalf("memory limit: got %d", c.MemoryWarnLimit)
	}
	if c.Logger == nil {
		t.Fatal("logger must default")
	}
	if c.Mode != ModeHeadful {
		t.Fatalf("mode must default to headful, got %v", c.Mode)
	}
}
