package speaker

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTemplate_Render(t *testing.T) {
	body, err := DefaultTemplate().Render(ActionSetVolume, DefaultZone, "42")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	got := string(body)
	for _, want := range []string{
		"<name>set_system_volume</name>",
		"<zone>Main Zone</zone>",
		"<para>42</para>",
		"<harman>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered payload missing %q:\n%s", want, got)
		}
	}
}

func TestTemplate_RenderEmptyPara(t *testing.T) {
	body, err := DefaultTemplate().Render(ActionMuteOn, DefaultZone, "")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(string(body), "<para></para>") {
		t.Errorf("expected empty para slot:\n%s", body)
	}
}

func TestTemplate_EscapesValues(t *testing.T) {
	body, err := DefaultTemplate().Render(ActionMuteOn, "Bed & <Bath>", "")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(string(body), "<zone>Bed &amp; &lt;Bath&gt;</zone>") {
		t.Errorf("zone not escaped:\n%s", body)
	}
}

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "all slots", text: "{{.action}}|{{.zone}}|{{.para}}"},
		{name: "subset of slots", text: "<x>{{.action}}</x>", wantErr: true},
		{name: "no slots", text: "<harman/>", wantErr: true},
		{name: "dollar placeholders", text: "<name>$action</name><zone>$zone</zone><para>$para</para>", wantErr: true},
		{name: "unknown slot", text: "{{.action}} {{.volume}}", wantErr: true},
		{name: "syntax error", text: "{{.action", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate(tt.name, tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTemplate) {
					t.Errorf("ParseTemplate() error = %v, want ErrInvalidTemplate", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseTemplate() error = %v", err)
			}
		})
	}
}

func TestLoadTemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.xml")
	if err := os.WriteFile(path, []byte("<cmd a=\"{{.action}}\" z=\"{{.zone}}\">{{.para}}</cmd>"), 0600); err != nil {
		t.Fatalf("writing template: %v", err)
	}

	tmpl, err := LoadTemplateFile(path)
	if err != nil {
		t.Fatalf("LoadTemplateFile() error = %v", err)
	}

	body, err := tmpl.Render(ActionSetBass, "Zone 2", "10")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := `<cmd a="set_bass_level" z="Zone 2">10</cmd>`; string(body) != want {
		t.Errorf("Render() = %q, want %q", body, want)
	}
}

func TestLoadTemplateFile_Missing(t *testing.T) {
	if _, err := LoadTemplateFile("/nonexistent/request.xml"); err == nil {
		t.Error("LoadTemplateFile() expected error for missing file")
	}
}
