package web

import (
	"context"
	"strings"
	"testing"
)

func TestDashboardRendersShareURL(t *testing.T) {
	var sb strings.Builder
	err := Dashboard(Page{LANAddr: "192.168.1.20", Port: 8765}).Render(context.Background(), &sb)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := sb.String()

	for _, want := range []string{
		"http://192.168.1.20:8765",
		"LAN System Monitor",
		`/ws?token=`,
		`id="cpu"`,
		`id="ts"`,
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered page missing %q", want)
		}
	}
}

func TestDashboardEscapesTitle(t *testing.T) {
	var sb strings.Builder
	p := Page{Title: "<script>x</script>", LANAddr: "127.0.0.1", Port: 1}
	if err := Dashboard(p).Render(context.Background(), &sb); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(sb.String(), "<script>x</script>") {
		t.Fatalf("title not escaped")
	}
}

func TestPageDisplayTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"", "LAN System Monitor"},
		{"garage pi", "garage pi"},
	}
	for _, tt := range tests {
		if got := (Page{Title: tt.title}).DisplayTitle(); got != tt.want {
			t.Fatalf("DisplayTitle(%q) = %q; want %q", tt.title, got, tt.want)
		}
	}
}

func TestDashboardRendersEveryCard(t *testing.T) {
	var sb strings.Builder
	if err := Dashboard(Page{LANAddr: "10.0.0.2", Port: 9000}).Render(context.Background(), &sb); err != nil {
		t.Fatal(err)
	}
	html := sb.String()
	for _, id := range []string{"cpu", "ram", "disk", "procs", "net", "ts"} {
		if want := `id="` + id + `"`; !strings.Contains(html, want) {
			t.Fatalf("rendered page missing %q", want)
		}
	}
	if !strings.Contains(html, `<b id="share">http://10.0.0.2:9000</b>`) {
		t.Fatalf("share URL not rendered inside #share")
	}
}
