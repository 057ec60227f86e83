package journal

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/camguard/internal/hw/camera"
	"github.com/cjeanneret/camguard/internal/logic/capture"
)

func TestRecord_Success(t *testing.T) {
	j := New(5)
	o := j.Record(&camera.Photo{ID: "abc"}, nil, 10*time.Millisecond)
	if !o.OK || o.PhotoID != "abc" {
		t.Errorf("outcome = %+v", o)
	}
	if o.Kind != nil || o.Message != "" {
		t.Errorf("success carries failure fields: %+v", o)
	}
	if o.ID == "" {
		t.Error("outcome has no ID")
	}
}

func TestRecord_Failure(t *testing.T) {
	j := New(5)
	err := &capture.Error{Message: "Camera failed to start: device busy", Kind: capture.StartupFailure}
	o := j.Record(nil, err, time.Millisecond)
	if o.OK || o.PhotoID != "" {
		t.Errorf("failure marked ok: %+v", o)
	}
	if o.Kind == nil || *o.Kind != capture.StartupFailure {
		t.Errorf("Kind = %v, want StartupFailure", o.Kind)
	}
	if o.Message != "Camera failed to start: device busy" {
		t.Errorf("Message = %q", o.Message)
	}
}

func TestRecord_PlainErrorIsClassified(t *testing.T) {
	j := New(1)
	o := j.Record(nil, errors.New("permission denied"), 0)
	if o.Kind == nil || *o.Kind != capture.Unclassified {
		t.Errorf("Kind = %v, want Unclassified", o.Kind)
	}
}

func TestRecent_NewestFirstAndBounded(t *testing.T) {
	j := New(3)
	for i := 0; i < 5; i++ {
		j.Record(&camera.Photo{ID: fmt.Sprint(i)}, nil, 0)
	}
	if j.Len() != 3 {
		t.Errorf("Len = %d, want 3", j.Len())
	}
	got := j.Recent(0)
	want := []string{"4", "3", "2"}
	if len(got) != len(want) {
		t.Fatalf("Recent returned %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].PhotoID != w {
			t.Errorf("Recent[%d] = %q, want %q", i, got[i].PhotoID, w)
		}
	}
	if two := j.Recent(2); len(two) != 2 || two[0].PhotoID != "4" {
		t.Errorf("Recent(2) = %+v", two)
	}
}

func TestRecent_Empty(t *testing.T) {
	if got := New(4).Recent(10); len(got) != 0 {
		t.Errorf("Recent on empty journal = %v", got)
	}
}

func TestNew_MinimumSize(t *testing.T) {
	j := New(0)
	j.Record(&camera.Photo{ID: "a"}, nil, 0)
	j.Record(&camera.Photo{ID: "b"}, nil, 0)
	got := j.Recent(0)
	if len(got) != 1 || got[0].PhotoID != "b" {
		t.Errorf("Recent = %+v", got)
	}
}

func TestRecord_Concurrent(t *testing.T) {
	j := New(100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Record(&camera.Photo{ID: "x"}, nil, 0)
			_ = j.Recent(5)
		}()
	}
	wg.Wait()
	if j.Len() != 50 {
		t.Errorf("Len = %d, want 50", j.Len())
	}
}
