package client

import "testing"

func TestForm_Encode(t *testing.T) {
	tests := []struct {
		name string
		form Form
		want string
	}{
		{"empty", nil, ""},
		{"plain", Form{{"name", "value"}}, "name=value"},
		{"ordered and repeated", Form{{"b", "2"}, {"a", "1"}, {"b", "3"}}, "b=2&a=1&b=3"},
		{"space and symbols", Form{{"q", "a b&c=d"}}, "q=a%20b%26c%3Dd"},
		{"unreserved are escaped too", Form{{"k", "-_.~"}}, "k=%2D%5F%2E%7E"},
		{"utf-8", Form{{"city", "Zürich"}}, "city=Z%C3%BCrich"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.form.Encode(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestForm_Add(t *testing.T) {
	var f Form
	f.Add("user", "ada")
	f.Add("lang", "go")
	if got := f.Encode(); got != "user=ada&lang=go" {
		t.Errorf("Expected %q, got %q", "user=ada&lang=go", got)
	}
}
