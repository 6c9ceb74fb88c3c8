package cli

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	tea "github.com/charmbracelet/bubbletea"

	csemver "github.com/matzehuels/cratestack/pkg/semver"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sendKeys(m tea.Model, keys ...string) tea.Model {
	for _, k := range keys {
		m, _ = m.Update(keyMsg(k))
	}
	return m
}

func TestBumpModelOptions(t *testing.T) {
	m := NewBumpModel("core", semver.MustParse("1.2.3"), "beta")
	if len(m.Options) != len(csemver.Bumps) {
		t.Fatalf("options = %d, want %d", len(m.Options), len(csemver.Bumps))
	}
	want := map[csemver.Bump]string{
		csemver.Patch:    "1.2.4",
		csemver.Minor:    "1.3.0",
		csemver.Major:    "2.0.0",
		csemver.Prepatch: "1.2.4-beta.0",
		csemver.Skip:     "1.2.3",
	}
	for _, opt := range m.Options {
		if v, ok := want[opt.bump]; ok && opt.next != v {
			t.Errorf("%s preview = %q, want %q", opt.bump, opt.next, v)
		}
	}
}

func TestBumpModelSelect(t *testing.T) {
	m := sendKeys(NewBumpModel("core", semver.MustParse("0.1.0"), ""), "down", "enter").(BumpModel)
	if m.Selected == nil || m.Selected.Bump != csemver.Minor {
		t.Fatalf("selected = %+v, want minor", m.Selected)
	}
	if m.View() != "" {
		t.Error("view should be empty after selection")
	}
}

func TestBumpModelCursorBounds(t *testing.T) {
	m := sendKeys(NewBumpModel("core", semver.MustParse("0.1.0"), ""), "up", "k").(BumpModel)
	if m.Cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.Cursor)
	}
	keys := make([]string, 20)
	for i := range keys {
		keys[i] = "j"
	}
	m = sendKeys(m, keys...).(BumpModel)
	if m.Cursor != len(m.Options)-1 {
		t.Errorf("cursor = %d, want %d", m.Cursor, len(m.Options)-1)
	}
}

func TestBumpModelCustom(t *testing.T) {
	start := NewBumpModel("core", semver.MustParse("0.1.0"), "")
	custom := 0
	for i, opt := range start.Options {
		if opt.bump == csemver.Custom {
			custom = i
		}
	}
	var m tea.Model = start
	for i := 0; i < custom; i++ {
		m = sendKeys(m, "down")
	}
	m = sendKeys(m, "enter")
	if !m.(BumpModel).custom {
		t.Fatal("expected custom mode")
	}

	m = sendKeys(m, "0", ".", "0", ".", "1", "enter")
	bm := m.(BumpModel)
	if bm.Selected != nil {
		t.Fatal("a lower version must be rejected")
	}
	if bm.errMsg == "" {
		t.Error("expected an error message")
	}

	bm.input.SetValue("0.5.0")
	m = sendKeys(bm, "enter")
	bm = m.(BumpModel)
	if bm.Selected == nil || bm.Selected.Bump != csemver.Custom || bm.Selected.Custom != "0.5.0" {
		t.Errorf("selected = %+v, want custom 0.5.0", bm.Selected)
	}
}

func TestBumpModelAbort(t *testing.T) {
	for _, key := range []string{"q", "esc"} {
		m := sendKeys(NewBumpModel("core", semver.MustParse("0.1.0"), ""), key).(BumpModel)
		if !m.Aborted || m.Selected != nil {
			t.Errorf("%s: aborted = %v, selected = %+v", key, m.Aborted, m.Selected)
		}
	}
}

func TestConfirmModel(t *testing.T) {
	tests := []struct {
		keys      []string
		wantValue bool
		wantAbort bool
	}{
		{keys: []string{"y"}, wantValue: true},
		{keys: []string{"n"}, wantValue: false},
		{keys: []string{"enter"}, wantValue: false},
		{keys: []string{"l", "enter"}, wantValue: true},
		{keys: []string{"l", "h", "enter"}, wantValue: false},
		{keys: []string{"esc"}, wantAbort: true},
	}
	for _, tt := range tests {
		m := sendKeys(ConfirmModel{Title: "Release?"}, tt.keys...).(ConfirmModel)
		if m.Aborted != tt.wantAbort {
			t.Errorf("%v: aborted = %v, want %v", tt.keys, m.Aborted, tt.wantAbort)
		}
		if !tt.wantAbort && (!m.Done || m.Value != tt.wantValue) {
			t.Errorf("%v: done = %v value = %v, want value %v", tt.keys, m.Done, m.Value, tt.wantValue)
		}
	}
}

func TestUnitTitle(t *testing.T) {
	core := &workspace.Package{Name: "core"}
	cli := &workspace.Package{Name: "cli"}
	tests := []struct {
		unit *workspace.ReleaseUnit
		want string
	}{
		{&workspace.ReleaseUnit{Kind: workspace.UnitFixed, Members: []*workspace.Package{cli, core}}, "the workspace (cli, core)"},
		{&workspace.ReleaseUnit{Kind: workspace.UnitGroup, Group: "tools", Members: []*workspace.Package{cli}}, "group tools (cli)"},
		{&workspace.ReleaseUnit{Kind: workspace.UnitIndependent, Members: []*workspace.Package{core}}, "core"},
	}
	for _, tt := range tests {
		if got := unitTitle(tt.unit); got != tt.want {
			t.Errorf("unitTitle = %q, want %q", got, tt.want)
		}
	}
}
