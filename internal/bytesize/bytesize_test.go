package bytesize

import "testing"

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"0", 0},
		{"1024", 1024},
		{"1024B", 1024},
		{"1024b", 1024},
		{"1K", 1000},
		{"1KB", 1000},
		{"1Ki", KiB},
		{"1KiB", KiB},
		{"100MB", 100 * MB},
		{"100Mi", 100 * MiB},
		{"1GB", GB},
		{"1Gi", GiB},
		{"1TB", TB},
		{"1TiB", TiB},
		{"1gib", GiB},
		{"1GI", GiB},
		{"  1Gi  ", GiB},
		{"1 Gi", GiB},
		{"1.5Mi", ByteSize(1.5 * float64(MiB))},
		{"0.5Gi", 512 * MiB},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if err != nil {
			t.Errorf("ParseByteSize(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseByteSizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "Gi", "-1Gi", "1Xi", "abc", "1e6"} {
		if got, err := ParseByteSize(in); err == nil {
			t.Errorf("ParseByteSize(%q) = %d, want error", in, got)
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("512Ki")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if b != 512*KiB {
		t.Errorf("UnmarshalText(512Ki) = %d, want %d", b, 512*KiB)
	}
	if err := b.UnmarshalText([]byte("nope")); err == nil {
		t.Error("UnmarshalText(nope) did not fail")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{2 * KiB, "2.00KiB"},
		{100 * MiB, "100.00MiB"},
		{GiB, "1.00GiB"},
		{ByteSize(1.5 * float64(GiB)), "1.50GiB"},
		{2 * TiB, "2.00TiB"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", uint64(tt.in), got, tt.want)
		}
	}
}
