package wampuri

import "testing"

func TestValid(t *testing.T) {
	cases := []struct {
		uri  string
		want bool
	}{
		{"com.x.add", true},
		{"com.myapp.topic_1", true},
		{"a", true},
		{"", false},
		{".com.x", false},
		{"com.x.", false},
		{"com..x", false},
		{"com.x add", false},
		{"com.x!", false},
	}
	for _, c := range cases {
		if got := Valid(c.uri); got != c.want {
			t.Errorf("Valid(%q) = %t, want %t", c.uri, got, c.want)
		}
	}
}
