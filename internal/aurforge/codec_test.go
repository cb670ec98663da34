package aurforge

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		canonical string
		encoded   string
	}{
		{
			name:      "epoch version",
			canonical: "foo-2:1.0-1-x86_64.pkg.tar.zst",
			encoded:   "foo-2_EPOCH_1.0-1-x86_64.pkg.tar.zst",
		},
		{
			name:      "no epoch",
			canonical: "foo-1.0-1-x86_64.pkg.tar.zst",
			encoded:   "foo-1.0-1-x86_64.pkg.tar.zst",
		},
		{
			name:      "epoch in signature name",
			canonical: "bar-1:2.3-4-any.pkg.tar.zst.sig",
			encoded:   "bar-1_EPOCH_2.3-4-any.pkg.tar.zst.sig",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EncodeFilename(tc.canonical)
			if got != tc.encoded {
				t.Fatalf("encode: got %q want %q", got, tc.encoded)
			}
			back := DecodeFilename(got)
			if back != tc.canonical {
				t.Fatalf("round trip: got %q want %q", back, tc.canonical)
			}
		})
	}
}

func TestEncodeLeavesPlainNamesAlone(t *testing.T) {
	name := "linux-headers-6.1.0-1-x86_64.pkg.tar.zst"
	if got := EncodeFilename(name); got != name {
		t.Fatalf("expected identity for plain name, got %q", got)
	}
	if IsEncodedFilename(name) {
		t.Fatalf("plain name reported as encoded")
	}
}

func TestIsEncodedFilename(t *testing.T) {
	if !IsEncodedFilename("foo-2_EPOCH_1.0-1-x86_64.pkg.tar.zst") {
		t.Fatalf("encoded name not detected")
	}
}
