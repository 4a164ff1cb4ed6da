package region

import "testing"

func TestDetector_Detect(t *testing.T) {
	d := NewDetector("source")

	tests := []struct {
		name      string
		text      string
		wantFound bool
		wantStart int
		wantEnd   int
		wantIndt  string
	}{
		{
			name:      "simple block with sibling after",
			text:      "name: x\nsource: |\n  a\n  b\nother: y\n",
			wantFound: true,
			wantStart: 2,
			wantEnd:   3,
			wantIndt:  "",
		},
		{
			name:      "block at end of document",
			text:      "source: |\n  a\n  b",
			wantFound: true,
			wantStart: 1,
			wantEnd:   2,
		},
		{
			name:      "trailing blank lines at EOF are included",
			text:      "source: |\n  a\n\n",
			wantFound: true,
			wantStart: 1,
			wantEnd:   3,
		},
		{
			name:      "trailing blanks before sibling are excluded",
			text:      "source: |\n  a\n\n\nother: y\n",
			wantFound: true,
			wantStart: 1,
			wantEnd:   1,
		},
		{
			name:      "interior blank lines are included",
			text:      "source: |\n  a\n\n  b\nother: y\n",
			wantFound: true,
			wantStart: 1,
			wantEnd:   3,
		},
		{
			name:      "nested introducer keeps its indent",
			text:      "job:\n  source: |\n    select 1\nnext: z\n",
			wantFound: true,
			wantStart: 2,
			wantEnd:   2,
			wantIndt:  "  ",
		},
		{
			name:      "folded indicator",
			text:      "source: >\n  a\n",
			wantFound: true,
			wantStart: 1,
			wantEnd:   2,
		},
		{
			name:      "chomping modifier",
			text:      "source: |-\n  a\n",
			wantFound: true,
			wantStart: 1,
			wantEnd:   2,
		},
		{
			name:      "indentation indicator with chomping",
			text:      "source: |2-\n  a\n",
			wantFound: true,
			wantStart: 1,
			wantEnd:   2,
		},
		{
			name:      "no introducer",
			text:      "name: x\nvalue: y\n",
			wantFound: false,
		},
		{
			name:      "introducer with inline value is not a block",
			text:      "source: | not a block\n  a\n",
			wantFound: false,
		},
		{
			name:      "introducer on last line",
			text:      "name: x\nsource: |",
			wantFound: false,
		},
		{
			name:      "block with no content lines",
			text:      "source: |\nother: y\n",
			wantFound: false,
		},
		{
			name:      "block with only blank lines",
			text:      "source: |\n\n\n",
			wantFound: false,
		},
		{
			name:      "under-indented content terminates immediately",
			text:      "  source: |\n  a\n",
			wantFound: false,
		},
		{
			name:      "only first introducer is honored",
			text:      "source: |\n  a\nsource: |\n  b\n",
			wantFound: true,
			wantStart: 1,
			wantEnd:   1,
		},
		{
			name:      "empty document",
			text:      "",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, found := d.Detect(tt.text)
			if found != tt.wantFound {
				t.Fatalf("Detect found = %v, want %v", found, tt.wantFound)
			}
			if !found {
				return
			}
			if r.StartLine != tt.wantStart {
				t.Errorf("StartLine = %d, want %d", r.StartLine, tt.wantStart)
			}
			if r.EndLine != tt.wantEnd {
				t.Errorf("EndLine = %d, want %d", r.EndLine, tt.wantEnd)
			}
			if r.Indent != tt.wantIndt {
				t.Errorf("Indent = %q, want %q", r.Indent, tt.wantIndt)
			}
		})
	}
}

func TestDetector_CustomKey(t *testing.T) {
	d := NewDetector("query")

	if _, found := d.Detect("source: |\n  a\n"); found {
		t.Error("detector for 'query' should not match 'source'")
	}

	r, found := d.Detect("query: |\n  a\n")
	if !found {
		t.Fatal("expected a region for the 'query' key")
	}
	if r.StartLine != 1 {
		t.Errorf("StartLine = %d, want 1", r.StartLine)
	}
}

func TestDetector_KeyWithMetacharacters(t *testing.T) {
	d := NewDetector("my.key")

	if _, found := d.Detect("myxkey: |\n  a\n"); found {
		t.Error("dot in key must match literally, not as a wildcard")
	}
	if _, found := d.Detect("my.key: |\n  a\n"); !found {
		t.Error("expected the literal dotted key to match")
	}
}

func TestRegion_Contains(t *testing.T) {
	r := Region{StartLine: 2, EndLine: 4}

	for line, want := range map[int]bool{1: false, 2: true, 3: true, 4: true, 5: false} {
		if got := r.Contains(line); got != want {
			t.Errorf("Contains(%d) = %v, want %v", line, got, want)
		}
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 1},
		{"a", 1},
		{"a\n", 2},
		{"a\nb", 2},
		{"a\nb\n", 3},
		{"\n\n", 3},
	}

	for _, tt := range tests {
		if got := len(SplitLines(tt.text)); got != tt.want {
			t.Errorf("SplitLines(%q) line count = %d, want %d", tt.text, got, tt.want)
		}
	}
}
