package metrics

import (
	"slices"
	"testing"
	"time"

	"neurogut/internal/model"
)

func TestStoreUpdateAndEvict(t *testing.T) {
	s := NewStore(2)
	s.Update(model.SessionAnalytics{DeviceID: "a", MotilityIndex: 10}, nil)
	time.Sleep(time.Millisecond)
	s.Update(model.SessionAnalytics{DeviceID: "b", MotilityIndex: 20}, []model.DeviceTrend{{DeviceID: "b", Sessions: 1}})
	time.Sleep(time.Millisecond)
	s.Update(model.SessionAnalytics{DeviceID: "c", MotilityIndex: 30}, nil)

	if _, ok := s.Get("a"); ok {
		t.Fatalf("oldest device should be evicted")
	}
	v, ok := s.Get("b")
	if !ok || v.Latest.MotilityIndex != 20 || len(v.Trends) != 1 {
		t.Fatalf("unexpected view %+v", v)
	}
	if got := s.Devices(); !slices.Equal(got, []string{"b", "c"}) {
		t.Fatalf("devices %v", got)
	}
	s.Update(model.SessionAnalytics{MotilityIndex: 99}, nil)
	if len(s.GetAll()) != 2 {
		t.Fatalf("analytics without a device id should be ignored")
	}
	s.Clear()
	if len(s.GetAll()) != 0 {
		t.Fatalf("clear left devices behind")
	}
}

func TestStoreKeysByNormalizedDevice(t *testing.T) {
	s := NewStore(10)
	s.Update(model.SessionAnalytics{DeviceID: "Phone-07", MotilityIndex: 10}, nil)
	s.Update(model.SessionAnalytics{DeviceID: "phone07", MotilityIndex: 40}, nil)
	if got := s.Devices(); !slices.Equal(got, []string{"phone07"}) {
		t.Fatalf("devices %v", got)
	}
	v, ok := s.Get("PHONE 07")
	if !ok || v.Latest.MotilityIndex != 40 {
		t.Fatalf("unexpected view %+v", v)
	}
}
