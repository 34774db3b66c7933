package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert("x")</script>hi`, "hi"},
		{"Tom & Jerry", "Tom & Jerry"},
		{"nul\x00byte", "nulbyte"},
		{"<img src=x onerror=alert(1)>", ""},
	}
	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 3); got != "hél" {
		t.Errorf("Truncate = %q, want %q", got, "hél")
	}
	if got := Truncate("ok", 5); got != "ok" {
		t.Errorf("Truncate = %q, want %q", got, "ok")
	}
}

func TestValidMobile(t *testing.T) {
	for _, m := range []string{"+44 7700 900123", "555-0100-22", "(020) 7946 0958"} {
		if !ValidMobile(m) {
			t.Errorf("ValidMobile(%q) = false, want true", m)
		}
	}
	for _, m := range []string{"", "12", "call me", "1234567890123456789"} {
		if ValidMobile(m) {
			t.Errorf("ValidMobile(%q) = true, want false", m)
		}
	}
}

func TestValidEmail(t *testing.T) {
	if !ValidEmail("harry@hogwarts.edu") {
		t.Error("expected valid email")
	}
	for _, e := range []string{"", "harry", "harry@", "a b@c.d", "@x.y"} {
		if ValidEmail(e) {
			t.Errorf("ValidEmail(%q) = true, want false", e)
		}
	}
}
