package inspector

import (
	"testing"
)

type luaLikeString string

func TestNewExceptionReportScriptID(t *testing.T) {
	tests := []struct {
		name     string
		scriptID int
		stack    StackTrace
		want     int
	}{
		{"top frame shares script", 7, StackTrace{{ScriptID: 7}, {ScriptID: 9}}, 0},
		{"top frame differs", 7, StackTrace{{ScriptID: 9}, {ScriptID: 7}}, 7},
		{"no stack", 7, nil, 7},
		{"zero ids", 0, StackTrace{{ScriptID: 0}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewExceptionReport("boom", &Message{ScriptID: tt.scriptID, StackTrace: tt.stack})
			if report.ScriptID != tt.want {
				t.Errorf("script id = %d, want %d", report.ScriptID, tt.want)
			}
		})
	}
}

func TestNewExceptionReportFields(t *testing.T) {
	stack := StackTrace{{FunctionName: "f", URL: "main.lua", Line: 3, ScriptID: 2}}
	report := NewExceptionReport(42, &Message{
		Text:         "main.lua:3: boom",
		ResourceName: luaLikeString("main.lua"),
		Line:         3,
		Column:       1,
		ScriptID:     1,
		StackTrace:   stack,
	})

	if report.Detail != "Uncaught" {
		t.Errorf("detail = %q", report.Detail)
	}
	if report.Exception != 42 {
		t.Errorf("exception = %v", report.Exception)
	}
	if report.Text != "main.lua:3: boom" {
		t.Errorf("text = %q", report.Text)
	}
	if report.URL != "main.lua" {
		t.Errorf("url = %q", report.URL)
	}
	if report.Line != 3 || report.Column != 1 {
		t.Errorf("position = %d:%d", report.Line, report.Column)
	}
	if len(report.StackTrace) != 1 || report.StackTrace[0].FunctionName != "f" {
		t.Errorf("stack = %v", report.StackTrace)
	}
	if report.ScriptID != 1 {
		t.Errorf("script id = %d", report.ScriptID)
	}
}

func TestNewExceptionReportNilMessage(t *testing.T) {
	report := NewExceptionReport(nil, nil)

	if report.Detail != UncaughtDetail || report.Text != "" || report.URL != "" || report.ScriptID != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestToProtocolString(t *testing.T) {
	var nilPtr *string
	s := "x"

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"empty", "", ""},
		{"named string kind", luaLikeString("lua"), "lua"},
		{"number", 3.5, ""},
		{"bool", true, ""},
		{"nil pointer", nilPtr, ""},
		{"pointer", &s, ""},
		{"bytes", []byte("raw"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToProtocolString(tt.in); got != tt.want {
				t.Errorf("ToProtocolString(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFatalExceptionWithoutSession(t *testing.T) {
	insp, core, _ := newTestInspector(t)

	insp.FatalException("boom", &Message{Text: "boom"})

	if len(core.exceptions) != 1 {
		t.Fatalf("core should still be told, got %d reports", len(core.exceptions))
	}
	if len(core.conns) != 0 {
		t.Error("reporting must not open a connection")
	}
}

func TestFatalExceptionWithSession(t *testing.T) {
	insp, _, _ := newTestInspector(t)
	sink := &recordingSink{}
	if err := insp.Connect(sink); err != nil {
		t.Fatalf("connect: %v", err)
	}

	insp.FatalException("boom", &Message{Text: "boom", ScriptID: 7, StackTrace: StackTrace{{ScriptID: 7}}})

	if len(sink.messages) != 1 || sink.messages[0] != "exception:boom" {
		t.Errorf("unexpected sink messages %v", sink.messages)
	}
}

func TestFatalExceptionNeverPanics(t *testing.T) {
	insp, core, _ := newTestInspector(t)
	core.panicOnExc = true
	sink := &recordingSink{}
	if err := insp.Connect(sink); err != nil {
		t.Fatalf("connect: %v", err)
	}

	insp.FatalException(nil, nil)

	if len(sink.messages) != 0 {
		t.Errorf("dropped notification should not reach the sink, got %v", sink.messages)
	}
}
