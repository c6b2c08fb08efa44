package dbtypes

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDArrayRoundTrip(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	arr := UUIDArray{a, b}

	raw, err := arr.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var scanned UUIDArray
	if err := scanned.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scanned) != 2 || scanned[0] != a || scanned[1] != b {
		t.Fatalf("unexpected scan result %v", scanned)
	}
}

func TestUUIDArrayScanQuotedAndEmpty(t *testing.T) {
	id := uuid.New()
	var arr UUIDArray
	if err := arr.Scan([]byte(`{"` + id.String() + `"}`)); err != nil {
		t.Fatalf("scan quoted: %v", err)
	}
	if len(arr) != 1 || arr[0] != id {
		t.Fatalf("unexpected %v", arr)
	}
	if err := arr.Scan("{}"); err != nil || len(arr) != 0 {
		t.Fatalf("expected empty array, got %v err=%v", arr, err)
	}
	if err := arr.Scan("{nope}"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestUUIDArrayOnlyPreservesOrder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	arr := UUIDArray{a, b, c}
	got := arr.Only([]uuid.UUID{c, a})
	if len(got) != 2 || got[0] != a || got[1] != c {
		t.Fatalf("unexpected %v", got)
	}
	if !arr.Contains(b) || got.Contains(b) {
		t.Fatalf("contains mismatch")
	}
}

func TestUUIDArrayScanNullAndEmptyValue(t *testing.T) {
	var arr UUIDArray
	if err := arr.Scan(nil); err != nil || arr == nil || len(arr) != 0 {
		t.Fatalf("expected empty non-nil array, got %#v err=%v", arr, err)
	}
	raw, err := UUIDArray(nil).Value()
	if err != nil || raw != "{}" {
		t.Fatalf("expected empty literal, got %v err=%v", raw, err)
	}
	if err := arr.Scan(42); err == nil {
		t.Fatal("expected unsupported type error")
	}
}
