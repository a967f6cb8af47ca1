package reconcile

import "testing"

func TestParseMapping(t *testing.T) {
	cases := []struct {
		in         string
		folder     string
		file       string
		shouldFail bool
	}{
		{`'2024-01-15 Session': 'recording.mp4'`, "2024-01-15 Session", "recording.mp4", false},
		{`"Quarterly Review": "review.mp4"`, "Quarterly Review", "review.mp4", false},
		{`'A': 'b.mp4'`, "A", "b.mp4", false},
		{`'folder' 'file.mp4'`, "", "", true}, // no colon
		{`folder: 'file.mp4'`, "", "", true},  // unquoted folder
		{`'folder': file.mp4`, "", "", true},  // unquoted file
		{``, "", "", true},
	}

	for _, tc := range cases {
		folder, file, err := ParseMapping(tc.in)
		if tc.shouldFail {
			if err == nil {
				t.Errorf("ParseMapping(%q) accepted malformed input", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMapping(%q) failed: %v", tc.in, err)
			continue
		}
		if folder != tc.folder || file != tc.file {
			t.Errorf("ParseMapping(%q) = %q/%q, want %q/%q", tc.in, folder, file, tc.folder, tc.file)
		}
	}
}
