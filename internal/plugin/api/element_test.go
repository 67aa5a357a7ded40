package api

import (
	"strings"
	"testing"
)

func TestCreateElement(t *testing.T) {
	tests := []struct {
		name     string
		tag      string
		attrs    map[string]any
		children []any
		want     []string
		wantErr  bool
	}{
		{
			name: "plain",
			tag:  "div",
			want: []string{`<div data-plugin-id="viz">`, `</div>`},
		},
		{
			name:  "attributes",
			tag:   "button",
			attrs: map[string]any{"className": "primary", "title": "Play", "textContent": "Go"},
			want:  []string{`class="primary"`, `title="Play"`, `>Go</button>`},
		},
		{
			name:  "plugin id cannot be overridden",
			tag:   "span",
			attrs: map[string]any{PluginAttr: "evil"},
			want:  []string{`data-plugin-id="viz"`},
		},
		{
			name:  "text is escaped",
			tag:   "p",
			attrs: map[string]any{"textContent": "<b>x</b>"},
			want:  []string{`&lt;b&gt;x&lt;/b&gt;`},
		},
		{
			name:  "inner html",
			tag:   "ul",
			attrs: map[string]any{"innerHTML": "<li>a</li><li>b</li>"},
			want:  []string{`<ul data-plugin-id="viz"><li>a</li><li>b</li></ul>`},
		},
		{
			name: "nested children",
			tag:  "div",
			children: []any{
				"hello ",
				map[string]any{"tag": "em", "attrs": map[string]any{"className": "x"}, "children": []any{"there"}},
			},
			want: []string{`hello <em class="x">there</em>`},
		},
		{name: "empty tag", tag: "", wantErr: true},
		{name: "bad tag", tag: "di v", wantErr: true},
		{name: "bad child tag", tag: "div", children: []any{map[string]any{"tag": "1x"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateElement("viz", tt.tag, tt.attrs, tt.children)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CreateElement = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateElement error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("CreateElement = %q, missing %q", got, w)
				}
			}
			if strings.Count(got, PluginAttr) != 1 {
				t.Errorf("CreateElement = %q, want exactly one %s", got, PluginAttr)
			}
		})
	}
}

func TestStyleSheetRender(t *testing.T) {
	s := NewStyleSheet()
	s.Set("b", ".b{}")
	s.Set("a", "</style><script>")

	out := s.Render()
	if strings.Index(out, StyleID("a")) > strings.Index(out, StyleID("b")) {
		t.Errorf("Render should order by plugin id: %s", out)
	}
	if strings.Contains(out, "</style><script>") {
		t.Errorf("Render must escape closing tags: %s", out)
	}
	if strings.Count(out, "<style") != 2 {
		t.Errorf("Render = %s, want two blocks", out)
	}
}

func TestCommandRegistry(t *testing.T) {
	r := NewCommandRegistry()
	rec := newRecorder()

	if _, err := r.Register("p1", "", rec.cb); err == nil {
		t.Error("empty command id should fail")
	}
	if _, err := r.Register("p1", "x", nil); err == nil {
		t.Error("nil handler should fail")
	}

	_, _ = r.Register("p1", "a", rec.cb)
	_, _ = r.Register("p1", "b", rec.cb)
	_, _ = r.Register("p2", "a", rec.cb)

	if got := r.List(); strings.Join(got, ",") != "p1.a,p1.b,p2.a" {
		t.Errorf("List = %v", got)
	}
	if n := r.UnregisterPlugin("p1"); n != 2 {
		t.Errorf("UnregisterPlugin = %d, want 2", n)
	}
	if !r.Has("p2.a") || r.Has("p1.a") {
		t.Error("only p1 commands should be removed")
	}
}
