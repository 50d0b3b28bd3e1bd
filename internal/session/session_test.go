package session

import "testing"

func TestTranslate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want Disposition
	}{
		{StatusLoggedIn, DispositionConnected},
		{StatusInChat, DispositionConnected},
		{StatusChatsLoaded, DispositionConnected},
		{StatusCodeReady, DispositionCode},
		{StatusBrowserClose, DispositionTerminal},
		{StatusQRReadError, DispositionTerminal},
		{StatusServerClose, DispositionTerminal},
		{"desconnectedMobile", DispositionIgnore},
		{"", DispositionIgnore},
	}
	for _, tc := range cases {
		if got := Translate(tc.raw); got != tc.want {
			t.Fatalf("Translate(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
