package events

import "testing"

func TestBuffer_FlushInOrder(t *testing.T) {
	var b Buffer
	b.Add(EntityList, ActionCreated, 1, nil)
	b.Add(EntityTask, ActionCreated, 2, nil)

	rec := &Recorder{}
	b.Flush(Fanout{rec, Nop})

	got := rec.Events()
	if len(got) != 2 || got[0].Entity != EntityList || got[1].ID != 2 {
		t.Fatalf("Events() = %+v", got)
	}
	if b.Len() != 0 {
		t.Errorf("Len() after Flush = %d, want 0", b.Len())
	}
	if rec.Count(EntityTask, ActionCreated) != 1 {
		t.Errorf("Count(task, created) = %d, want 1", rec.Count(EntityTask, ActionCreated))
	}
}

func TestBuffer_NilIsSafe(t *testing.T) {
	var b *Buffer
	b.Add(EntityTag, ActionDeleted, 1, nil)
	b.Flush(Nop)
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}
