package container

import "testing"

func TestParseMemory(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"512m", 512 * 1024 * 1024, false},
		{"2g", 2 * 1024 * 1024 * 1024, false},
		{"1024", 1024, false},
		{"bogus", 0, true},
	}
	for _, c := range cases {
		got, err := ParseMemory(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseMemory(%q) expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMemory(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseMemory(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseCPU(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"1.0", 1_000_000_000, false},
		{"0.5", 500_000_000, false},
		{"2", 2_000_000_000, false},
		{"nope", 0, true},
	}
	for _, c := range cases {
		got, err := ParseCPU(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseCPU(%q) expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCPU(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseCPU(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
