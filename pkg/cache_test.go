package stylecache

import (
	"testing"

	"github.com/kelpgfx/stylecache/internal/tuplearena"
)

func TestNewDefaultConstruction(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	_, err := New(WithDelayQueueCapacity(0, 4096))
	if err == nil {
		t.Fatalf("New() with zero kv delay capacity should error")
	}
}

func TestStyleCreateFindModify(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	h := c.StyleCreate([]tuplearena.Pair{{Key: 1, Value: []byte("red")}})
	v, ok := c.StyleFind(h, 1)
	if !ok || string(v) != "red" {
		t.Fatalf("StyleFind(1) = (%q,%v), want (\"red\",true)", v, ok)
	}

	c.StyleModify(h, []tuplearena.PatchOp{{Key: 1, Value: []byte("blue")}})
	v2, ok2 := c.StyleFind(h, 1)
	if !ok2 || string(v2) != "blue" {
		t.Fatalf("StyleFind(1) after Modify = (%q,%v), want (\"blue\",true)", v2, ok2)
	}
}

func TestStyleInheritAndExplain(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	parent := c.StyleCreate([]tuplearena.Pair{{Key: 1, Value: []byte("red")}})
	child := c.StyleCreate(nil)
	composed := c.StyleInherit(child, parent, false)

	v, ok := c.StyleFind(composed, 1)
	if !ok || string(v) != "red" {
		t.Fatalf("StyleFind(composed,1) = (%q,%v), want (\"red\",true)", v, ok)
	}

	frames := c.Explain(composed, 1)
	if len(frames) == 0 || !frames[len(frames)-1].Resolved {
		t.Fatalf("Explain did not resolve: %+v", frames)
	}
}

func TestStyleCloneSharesSnapshot(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	orig := c.StyleCreate([]tuplearena.Pair{{Key: 1, Value: []byte("red")}})
	clone := c.StyleClone(orig)

	c.StyleModify(orig, []tuplearena.PatchOp{{Key: 1, Value: []byte("blue")}})

	cv, ok := c.StyleFind(clone, 1)
	if !ok || string(cv) != "red" {
		t.Fatalf("clone value = (%q,%v), want (\"red\",true) unaffected by original's Modify", cv, ok)
	}
}

func TestFlushReclaimsReleasedStyle(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	h := c.StyleCreate([]tuplearena.Pair{{Key: 1, Value: []byte("red")}})
	c.StyleRelease(h)
	c.Flush()

	if err := c.selfCheck(); err != nil {
		t.Fatalf("selfCheck() after Flush: %v", err)
	}
}

func TestAttribLevelInternAndInherit(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	parent := c.CreateAttrib([]tuplearena.Pair{{Key: 1, Value: []byte("a")}, {Key: 2, Value: []byte("b")}})
	child := c.CreateAttrib([]tuplearena.Pair{{Key: 1, Value: []byte("override")}})

	composed := c.InheritAttrib(child, parent, false)
	v, ok := c.FindAttrib(composed, 2)
	if !ok || string(v) != "b" {
		t.Fatalf("FindAttrib(composed,2) = (%q,%v), want (\"b\",true)", v, ok)
	}
	v2, ok2 := c.FindAttrib(composed, 1)
	if !ok2 || string(v2) != "override" {
		t.Fatalf("FindAttrib(composed,1) = (%q,%v), want (\"override\",true)", v2, ok2)
	}
}
