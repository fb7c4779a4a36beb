package ipam

import "testing"

func TestHostsToPrefixLength(t *testing.T) {
	cases := []struct {
		hosts int
		want  int
	}{
		{1, 26},
		{50, 26},
		{59, 26},
		{60, 25},
		{100, 25},
		{500, 23},
		{1000, 22},
		{2043, 21},
		{2044, 20},
		{4000, 20},
	}

	for _, tc := range cases {
		if got := DefaultPolicy.HostsToPrefixLength(tc.hosts); got != tc.want {
			t.Errorf("HostsToPrefixLength(%d) = %d, want %d", tc.hosts, got, tc.want)
		}
	}
}

func TestHostsToPrefixLengthCoversRequest(t *testing.T) {
	// Whenever the result is not pinned at the clamp boundary the block
	// must hold the requested hosts after the reserve.
	for hosts := MinHosts; hosts <= MaxHosts; hosts++ {
		prefixLength := DefaultPolicy.HostsToPrefixLength(hosts)
		if prefixLength == DefaultPolicy.MinPrefix || prefixLength == DefaultPolicy.MaxPrefix {
			continue
		}
		if usable := DefaultPolicy.UsableCount(prefixLength); usable < hosts {
			t.Fatalf("hosts=%d got /%d with only %d usable", hosts, prefixLength, usable)
		}
	}
}

func TestHostsToPrefixLengthClampEdges(t *testing.T) {
	// The clamp is policy: tiny requests still get /26, and requests
	// near the cap can end up under-provisioned at /20.
	if got := DefaultPolicy.UsableCount(26); got != 59 {
		t.Fatalf("UsableCount(26) = %d, want 59", got)
	}
	if prefixLength := DefaultPolicy.HostsToPrefixLength(4000); prefixLength != 20 {
		t.Fatalf("HostsToPrefixLength(4000) = %d, want 20", prefixLength)
	}
	if usable := DefaultPolicy.UsableCount(20); usable >= 4096 {
		t.Fatalf("UsableCount(20) = %d, expected the reserve to bite", usable)
	}
}

func TestUsableCount(t *testing.T) {
	for prefixLength := 15; prefixLength <= 26; prefixLength++ {
		want := (1 << (32 - prefixLength)) - 5
		if got := DefaultPolicy.UsableCount(prefixLength); got != want {
			t.Errorf("UsableCount(%d) = %d, want %d", prefixLength, got, want)
		}
	}
}

func TestCGNATPrefixFor(t *testing.T) {
	for primary := 20; primary <= 26; primary++ {
		got, err := DefaultPolicy.CGNATPrefixFor(primary)
		if err != nil {
			t.Fatalf("CGNATPrefixFor(%d) returned error: %v", primary, err)
		}
		if got != primary-5 {
			t.Errorf("CGNATPrefixFor(%d) = %d, want %d", primary, got, primary-5)
		}
	}

	if _, err := DefaultPolicy.CGNATPrefixFor(3); err == nil {
		t.Fatal("CGNATPrefixFor(3) did not fail")
	} else if failure, ok := AsFailure(err); !ok || failure.Code != CodeBadPolicy {
		t.Fatalf("CGNATPrefixFor(3) returned %v, want BAD_POLICY failure", err)
	}
}
