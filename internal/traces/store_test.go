package traces

import (
	"testing"
	"time"

	"neurogut/internal/model"
)

func report(id string, at time.Time, rejectedBy ...string) model.DebugReport {
	r := model.DebugReport{RecordingID: id, CreatedAt: at}
	for i, stage := range rejectedBy {
		r.Events = append(r.Events, model.EventTrace{Index: i, RejectedBy: stage})
	}
	r.Events = append(r.Events, model.EventTrace{Index: len(rejectedBy), Accepted: true})
	return r
}

func TestStoreKeepsNewest(t *testing.T) {
	s := NewStore(3)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		s.Add(report(id, base.Add(time.Duration(i)*time.Minute)))
	}
	got := s.List(0)
	if len(got) != 3 || got[0].RecordingID != "b" || got[2].RecordingID != "d" {
		t.Fatalf("unexpected ring contents %+v", got)
	}
	if last := s.List(1); len(last) != 1 || last[0].RecordingID != "d" {
		t.Fatalf("List(1) = %+v", last)
	}
	if since := s.Since(base.Add(2 * time.Minute)); len(since) != 2 {
		t.Fatalf("Since returned %d reports", len(since))
	}
	if _, ok := s.Get("a"); ok {
		t.Fatalf("evicted report still found")
	}
	if r, ok := s.Get("c"); !ok || r.RecordingID != "c" {
		t.Fatalf("Get(c) = %+v, %v", r, ok)
	}
	s.Clear()
	if len(s.List(0)) != 0 {
		t.Fatalf("clear left reports behind")
	}
}

func TestRejectionCounts(t *testing.T) {
	s := NewStore(10)
	now := time.Now()
	s.Add(report("a", now, "breath_shape", "spectral_noise"))
	s.Add(report("b", now, "spectral_noise"))
	got := s.RejectionCounts()
	if got["spectral_noise"] != 2 || got["breath_shape"] != 1 || len(got) != 2 {
		t.Fatalf("counts %v", got)
	}
}
