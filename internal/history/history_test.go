package history

import (
	"fmt"
	"testing"

	"github.com/replydesk/replydesk/internal/models"
)

func TestAppendAndTurns(t *testing.T) {
	tr := NewTracker()
	tr.Append("+905551112233", models.ConversationTurn{Role: models.RoleUser, Content: "fiyat nedir"})
	tr.Append("+905551112233", models.ConversationTurn{Role: models.RoleAssistant, Content: "100 TL"})

	turns := tr.Turns("+905551112233")
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[0].Content != "fiyat nedir" {
		t.Errorf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != models.RoleAssistant || turns[1].Content != "100 TL" {
		t.Errorf("unexpected second turn: %+v", turns[1])
	}
}

func TestTurnsUnknownSender(t *testing.T) {
	tr := NewTracker()
	if got := tr.Turns("nobody"); len(got) != 0 {
		t.Errorf("expected empty history for unknown sender, got %+v", got)
	}
}

func TestCapEvictsOldestFirst(t *testing.T) {
	tr := NewTracker()
	sender := "+15550001111"
	// N paired appends; length must be min(2N, cap) at every step.
	for i := 0; i < 15; i++ {
		tr.Append(sender, models.ConversationTurn{Role: models.RoleUser, Content: fmt.Sprintf("u%d", i)})
		tr.Append(sender, models.ConversationTurn{Role: models.RoleAssistant, Content: fmt.Sprintf("a%d", i)})

		want := 2 * (i + 1)
		if want > MaxTurnsPerSender {
			want = MaxTurnsPerSender
		}
		if got := len(tr.Turns(sender)); got != want {
			t.Fatalf("after %d exchanges expected %d turns, got %d", i+1, want, got)
		}
	}

	turns := tr.Turns(sender)
	if len(turns) != MaxTurnsPerSender {
		t.Fatalf("expected %d turns, got %d", MaxTurnsPerSender, len(turns))
	}
	// 30 turns appended, so the first 10 were evicted; the log starts at u5.
	if turns[0].Content != "u5" {
		t.Errorf("expected oldest retained turn u5, got %q", turns[0].Content)
	}
	if turns[len(turns)-1].Content != "a14" {
		t.Errorf("expected newest turn a14, got %q", turns[len(turns)-1].Content)
	}
}

func TestSummariesAndDetail(t *testing.T) {
	tr := NewTracker()
	tr.Append("a", models.ConversationTurn{Role: models.RoleUser, Content: "hi"})
	tr.Append("a", models.ConversationTurn{Role: models.RoleAssistant, Content: "hello"})
	tr.Append("b", models.ConversationTurn{Role: models.RoleUser, Content: "yo"})

	sums := tr.Summaries()
	if len(sums) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(sums))
	}
	if sums["a"].MessageCount != 2 || sums["a"].LastMessage != "hello" {
		t.Errorf("unexpected summary for a: %+v", sums["a"])
	}
	if sums["a"].LastMessageTime.IsZero() {
		t.Error("expected last message time to be set")
	}

	detail, ok := tr.Detail("a")
	if !ok {
		t.Fatal("expected detail for known sender")
	}
	if detail.Phone != "a" || detail.MessageCount != 2 || len(detail.History) != 2 {
		t.Errorf("unexpected detail: %+v", detail)
	}
	if _, ok := tr.Detail("missing"); ok {
		t.Error("expected no detail for unknown sender")
	}
}

func TestDeleteAndClear(t *testing.T) {
	tr := NewTracker()
	tr.Append("a", models.ConversationTurn{Role: models.RoleUser, Content: "hi"})
	tr.Append("b", models.ConversationTurn{Role: models.RoleUser, Content: "yo"})

	tr.Delete("a")
	if _, ok := tr.Detail("a"); ok {
		t.Error("expected a deleted")
	}
	if _, ok := tr.Detail("b"); !ok {
		t.Error("expected b retained")
	}

	tr.Clear()
	if got := tr.Summaries(); len(got) != 0 {
		t.Errorf("expected empty tracker after clear, got %+v", got)
	}
}
