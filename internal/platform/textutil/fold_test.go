package textutil

import "testing"

func TestFoldStripsDiacriticsAndCase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Calça Jeans", "calca jeans"},
		{"CAMISETA", "camiseta"},
		{"  Tênis Esportivo  ", "tenis esportivo"},
		{"ação", "acao"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Fold(tc.in); got != tc.want {
			t.Fatalf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("Calça Jeans Premium", "calca") {
		t.Fatalf("expected accent-insensitive match")
	}
	if !ContainsFold("Camiseta Básica", "BÁSICA") {
		t.Fatalf("expected case-insensitive match")
	}
	if ContainsFold("Camiseta", "calca") {
		t.Fatalf("unexpected match")
	}
	if !ContainsFold("anything", "") {
		t.Fatalf("empty needle should always match")
	}
}
