package dispatch

import (
	"strings"
	"testing"
)

func TestParseMentions(t *testing.T) {
	s := testSettings()
	team := s.Teams["dev"]

	tests := []struct {
		name     string
		from     string
		response string
		want     []mention
	}{
		{
			"tag form",
			"coder",
			"Done. [@reviewer: please check commit abc123]",
			[]mention{{agentID: "reviewer", handoff: "please check commit abc123"}},
		},
		{
			"bare fallback",
			"coder",
			"@reviewer take a look at the diff",
			[]mention{{agentID: "reviewer", handoff: "take a look at the diff"}},
		},
		{
			"tag form wins over bare",
			"coder",
			"@reviewer ignore this [@reviewer: use the tag]",
			[]mention{{agentID: "reviewer", handoff: "use the tag"}},
		},
		{
			"self mention ignored",
			"coder",
			"[@coder: talking to myself]",
			nil,
		},
		{
			"outside team ignored",
			"coder",
			"[@writer: not on this team]",
			nil,
		},
		{
			"unknown agent ignored",
			"coder",
			"@ghost do something",
			nil,
		},
		{
			"no mentions",
			"coder",
			"All done, nothing else needed.",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseMentions(s, team, tt.from, tt.response)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d mentions %v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("mention[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseMentionsDeduplicates(t *testing.T) {
	s := testSettings()
	team := s.Teams["dev"]

	got := parseMentions(s, team, "coder", "[@reviewer: first] [@reviewer: second]")
	if len(got) != 1 {
		t.Fatalf("got %d mentions, want 1", len(got))
	}
	if got[0].handoff != "first" {
		t.Errorf("handoff = %q, want the first occurrence", got[0].handoff)
	}
}

func TestTeammateMessage(t *testing.T) {
	got := teammateMessage("coder", "check the diff")
	want := "[Message from teammate @coder]:\ncheck the diff"
	if got != want {
		t.Errorf("teammateMessage = %q, want %q", got, want)
	}
}

func TestAggregateSteps(t *testing.T) {
	steps := []chainStep{
		{agentID: "coder", response: "Fixed it. [@reviewer: verify]"},
		{agentID: "reviewer", response: "Looks good."},
	}
	got := aggregateSteps(steps)

	if !strings.HasPrefix(got, "@coder: ") {
		t.Errorf("aggregate should prefix each step: %q", got)
	}
	if !strings.Contains(got, stepSeparator) {
		t.Error("aggregate should join steps with the separator")
	}
	if strings.Contains(got, "[@reviewer:") {
		t.Error("handoff tags should be stripped from aggregated output")
	}
	if !strings.Contains(got, "@reviewer: Looks good.") {
		t.Errorf("missing second step: %q", got)
	}
}
