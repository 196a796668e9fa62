package features

import "testing"

func TestManager_UnknownFlagIsOff(t *testing.T) {
	m := NewManager()
	if m.IsEnabled("nope") {
		t.Error("unknown flag should be disabled")
	}
	if m.Set("nope", true) {
		t.Error("Set on unknown flag should report false")
	}
}

func TestManager_Defaults(t *testing.T) {
	m := NewManager()
	Defaults(m, true, false, true)

	if !m.IsEnabled(SingleActiveSubscription) {
		t.Error("single active subscription should be on")
	}
	if m.IsEnabled(CascadeClientDelete) {
		t.Error("cascade delete should be off")
	}

	if !m.Set(CascadeClientDelete, true) {
		t.Fatal("Set should succeed on a registered flag")
	}
	if !m.IsEnabled(CascadeClientDelete) {
		t.Error("cascade delete should now be on")
	}

	flags := m.List()
	if len(flags) != 3 {
		t.Fatalf("expected 3 flags, got %d", len(flags))
	}
	if flags[0].Name != CascadeClientDelete {
		t.Errorf("flags not sorted: first is %s", flags[0].Name)
	}
}
