package matchpool

import "testing"

type entry struct {
	id  uint32
	val uint64
}

func TestGetSizeBuckets(t *testing.T) {
	p := New[entry]()
	tests := []struct {
		hint      int
		expectCap int
	}{
		{1, bucketSmall},
		{bucketSmall, bucketSmall},
		{bucketSmall + 1, bucketMedium},
		{bucketMedium, bucketMedium},
		{bucketMedium + 1, bucketLarge},
	}
	for _, tt := range tests {
		s := p.Get(tt.hint)
		if len(s) != 0 {
			t.Fatalf("Get(%d) len = %d, want 0", tt.hint, len(s))
		}
		if cap(s) != tt.expectCap {
			t.Fatalf("Get(%d) cap = %d, want %d", tt.hint, cap(s), tt.expectCap)
		}
		p.Put(s)
	}
}

func TestPutNonBucketCapDropped(t *testing.T) {
	p := New[entry]()
	s := make([]entry, 0, 100)
	// Should not panic even though 100 isn't a bucket size.
	p.Put(s)
}

func TestReuseAfterPut(t *testing.T) {
	p := New[entry]()
	s := p.Get(bucketSmall)
	s = append(s, entry{id: 1, val: 2})
	p.Put(s)

	s2 := p.Get(bucketSmall)
	if len(s2) != 0 {
		t.Fatalf("reused slice len = %d, want 0", len(s2))
	}
}
