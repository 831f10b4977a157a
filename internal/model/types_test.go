package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSource_SourceType(t *testing.T) {
	tests := []struct {
		kind SourceKind
		want string
	}{
		{KindSheet, SourceTypeSheet},
		{KindJSON, SourceTypeExternal},
		{KindXML, SourceTypeExternal},
	}

	for _, tt := range tests {
		s := Source{Kind: tt.kind}
		if got := s.SourceType(); got != tt.want {
			t.Errorf("SourceType(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestSource_HasLocation(t *testing.T) {
	tests := []struct {
		name   string
		source Source
		want   bool
	}{
		{"sheet with id", Source{Kind: KindSheet, SheetID: "sheet-1"}, true},
		{"sheet without id", Source{Kind: KindSheet}, false},
		{"json with url", Source{Kind: KindJSON, URL: "https://example.com"}, true},
		{"json without url", Source{Kind: KindJSON}, false},
		{"xml without url but with sheet id", Source{Kind: KindXML, SheetID: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.source.HasLocation(); got != tt.want {
				t.Errorf("HasLocation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessage_TypeSelection(t *testing.T) {
	ts := time.Now()

	if m := UpdateMessage("sheet-9", SourceTypeSheet, nil, ts); m.Type != MessageUpdate {
		t.Errorf("sheet update type = %q, want %q", m.Type, MessageUpdate)
	}
	if m := UpdateMessage("ext-1", SourceTypeExternal, nil, ts); m.Type != MessageExternalUpdate {
		t.Errorf("external update type = %q, want %q", m.Type, MessageExternalUpdate)
	}
	if m := InitialDataMessage("sheet-9", SourceTypeSheet, nil, ts); m.Type != MessageInitialData {
		t.Errorf("sheet initial type = %q, want %q", m.Type, MessageInitialData)
	}
	if m := InitialDataMessage("ext-1", SourceTypeExternal, nil, ts); m.Type != MessageExternalInitialData {
		t.Errorf("external initial type = %q, want %q", m.Type, MessageExternalInitialData)
	}
}

func TestMessage_WireShape(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := UpdateMessage("sheet-9", SourceTypeSheet, []string{"A", "C"}, ts)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, field := range []string{`"type":"UPDATE"`, `"id":"sheet-9"`, `"sourceType":"sheet"`, `"data":["A","C"]`, `"timestamp":"2025-06-01T12:00:00Z"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("wire message missing %s: %s", field, data)
		}
	}
}

func TestChangeEvent_Envelope(t *testing.T) {
	ev := ChangeEvent{
		SourceID:   "ext-1",
		SourceType: SourceTypeExternal,
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Changes:    Change{Type: ChangeUpdate, Data: map[string]any{"k": "v"}},
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ChangeEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.SourceID != "ext-1" || decoded.Changes.Type != ChangeUpdate {
		t.Errorf("round trip lost fields: %+v", decoded)
	}
	if !strings.Contains(string(data), `"sourceId":"ext-1"`) {
		t.Errorf("envelope should use sourceId key: %s", data)
	}
}
