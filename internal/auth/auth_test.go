package auth

import "testing"

func TestAuthenticate(t *testing.T) {
	a := New("s3cr3t")

	cases := []struct {
		name      string
		presented string
		want      bool
	}{
		{"match", "s3cr3t", true},
		{"wrong", "wrong", false},
		{"empty", "", false},
		{"prefix", "s3cr3", false},
		{"longer", "s3cr3t!", false},
		{"case differs", "S3CR3T", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Authenticate(tc.presented); got != tc.want {
				t.Fatalf("Authenticate(%q) = %v; want %v", tc.presented, got, tc.want)
			}
		})
	}
}

func TestEmptySecretRejectsEverything(t *testing.T) {
	a := New("")
	if a.Authenticate("") || a.Authenticate("anything") {
		t.Fatalf("empty secret must not authenticate")
	}
}
