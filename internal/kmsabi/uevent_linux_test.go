//go:build linux

package kmsabi

import "testing"

func TestParseUevent(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantAction string
		wantVars   map[string]string
	}{
		{
			name:       "drm card change",
			raw:        "change@/devices/pci0000:00/card0\x00ACTION=change\x00SUBSYSTEM=drm\x00DEVTYPE=drm_minor\x00MINOR=0\x00",
			wantAction: "change",
			wantVars:   map[string]string{"ACTION": "change", "SUBSYSTEM": "drm", "DEVTYPE": "drm_minor", "MINOR": "0"},
		},
		{
			name:       "add event no trailing nul",
			raw:        "add@/devices/pci0000:00/card1\x00ACTION=add\x00SUBSYSTEM=drm",
			wantAction: "add",
			wantVars:   map[string]string{"ACTION": "add", "SUBSYSTEM": "drm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := parseUevent([]byte(tt.raw))
			if ev.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", ev.Action, tt.wantAction)
			}
			for k, v := range tt.wantVars {
				if ev.Vars[k] != v {
					t.Errorf("Vars[%q] = %q, want %q", k, ev.Vars[k], v)
				}
			}
		})
	}
}

func TestIsDRMCardEvent(t *testing.T) {
	if !IsDRMCardEvent(Uevent{Vars: map[string]string{"SUBSYSTEM": "drm"}}) {
		t.Error("expected drm subsystem event to match")
	}
	if IsDRMCardEvent(Uevent{Vars: map[string]string{"SUBSYSTEM": "usb"}}) {
		t.Error("expected non-drm subsystem event not to match")
	}
}
