package history

import (
	"fmt"
	"sync"
	"testing"
)

func TestNew_RejectsInvalidLimit(t *testing.T) {
	for _, limit := range []int{0, -1, -100} {
		if _, err := New(limit); err == nil {
			t.Errorf("New(%d) should error", limit)
		}
	}
	if _, err := New(1); err != nil {
		t.Errorf("New(1) error: %v", err)
	}
}

func TestAppend_EvictsOldestFirst(t *testing.T) {
	s, err := New(2)
	if err != nil {
		t.Fatal(err)
	}

	s.Append("ch", Turn{Author: "alice", Content: "T1"})
	s.Append("ch", Turn{Author: "bob", Content: "T2"})
	s.Append("ch", Turn{Author: "alice", Content: "T3"})

	got := s.Snapshot("ch")
	if len(got) != 2 {
		t.Fatalf("Snapshot returned %d turns, want 2", len(got))
	}
	if got[0].Content != "T2" || got[1].Content != "T3" {
		t.Errorf("Snapshot = [%s, %s], want [T2, T3]", got[0].Content, got[1].Content)
	}
}

func TestAppend_BoundAlwaysHolds(t *testing.T) {
	const limit = 5
	s, err := New(limit)
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 12; i++ {
		s.Append("ch", Turn{Author: "alice", Content: fmt.Sprintf("m%d", i)})

		want := i
		if want > limit {
			want = limit
		}
		if got := s.Len("ch"); got != want {
			t.Fatalf("after %d appends Len = %d, want %d", i, got, want)
		}
	}

	// The survivors are the most recent ones, in arrival order.
	turns := s.Snapshot("ch")
	for i, turn := range turns {
		want := fmt.Sprintf("m%d", 12-limit+1+i)
		if turn.Content != want {
			t.Errorf("turns[%d].Content = %q, want %q", i, turn.Content, want)
		}
	}
}

func TestAppend_OrderIsStrict(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 6; i++ {
		s.Append("ch", Turn{Author: "alice", Content: fmt.Sprintf("m%d", i)})
	}

	turns := s.Snapshot("ch")
	for i := 1; i < len(turns); i++ {
		if turns[i].Seq <= turns[i-1].Seq {
			t.Errorf("turns[%d].Seq = %d not after turns[%d].Seq = %d",
				i, turns[i].Seq, i-1, turns[i-1].Seq)
		}
	}
}

func TestAppendExchange_Atomic(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatal(err)
	}

	s.AppendExchange("ch",
		Turn{Author: "alice", Content: "question"},
		Turn{Assistant: true, Content: "answer"},
	)

	turns := s.Snapshot("ch")
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Assistant || !turns[1].Assistant {
		t.Errorf("exchange order wrong: [%v, %v]", turns[0].Assistant, turns[1].Assistant)
	}
}

func TestAppendExchange_NeverObservedHalfway(t *testing.T) {
	s, err := New(100)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.AppendExchange("ch",
				Turn{Author: "alice", Content: "q"},
				Turn{Assistant: true, Content: "a"},
			)
		}
	}()

	// Every snapshot must contain complete exchanges: an even count,
	// alternating human/assistant.
	for i := 0; i < 200; i++ {
		turns := s.Snapshot("ch")
		if len(turns)%2 != 0 {
			t.Fatalf("snapshot saw %d turns, want even count", len(turns))
		}
		for j, turn := range turns {
			if turn.Assistant != (j%2 == 1) {
				t.Fatalf("turns[%d].Assistant = %v, exchange interleaved", j, turn.Assistant)
			}
		}
	}
	<-done
}

func TestSnapshot_IsACopy(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatal(err)
	}
	s.Append("ch", Turn{Author: "alice", Content: "original"})

	snap := s.Snapshot("ch")
	snap[0].Content = "mutated"

	if got := s.Snapshot("ch")[0].Content; got != "original" {
		t.Errorf("store content = %q, snapshot mutation leaked", got)
	}
}

func TestSnapshot_EmptyChannel(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot("never-seen"); len(got) != 0 {
		t.Errorf("Snapshot of fresh channel = %d turns, want 0", len(got))
	}
}

func TestSetModel(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatal(err)
	}

	if got := s.ActiveModel("ch"); got != "" {
		t.Errorf("fresh channel ActiveModel = %q, want empty", got)
	}

	s.SetModel("ch", "gpt-4")
	if got := s.ActiveModel("ch"); got != "gpt-4" {
		t.Errorf("ActiveModel = %q, want gpt-4", got)
	}

	// Overrides are scoped per channel.
	if got := s.ActiveModel("other"); got != "" {
		t.Errorf("other channel ActiveModel = %q, want empty", got)
	}

	s.SetModel("ch", "")
	if got := s.ActiveModel("ch"); got != "" {
		t.Errorf("cleared ActiveModel = %q, want empty", got)
	}
}

func TestChannels_AreIndependent(t *testing.T) {
	s, err := New(2)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, ch := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(ch string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Append(ch, Turn{Author: ch, Content: fmt.Sprintf("%s-%d", ch, i)})
			}
		}(ch)
	}
	wg.Wait()

	for _, ch := range []string{"a", "b", "c", "d"} {
		turns := s.Snapshot(ch)
		if len(turns) != 2 {
			t.Fatalf("channel %s has %d turns, want 2", ch, len(turns))
		}
		for _, turn := range turns {
			if turn.Author != ch {
				t.Errorf("channel %s contains turn from %s", ch, turn.Author)
			}
		}
	}
}
