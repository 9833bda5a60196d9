package queue

import (
	"testing"
)

func TestNewWorkItem(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		direction  Direction
		wantDetail string
		wantList   string
		wantErr    bool
	}{
		{
			name:       "outgoing",
			id:         "a1",
			direction:  Outgoing,
			wantDetail: "#/postausgang/detail/a1",
			wantList:   "#/postausgang",
		},
		{
			name:       "incoming",
			id:         "b2",
			direction:  Incoming,
			wantDetail: "#/posteingang/detail/b2",
			wantList:   "#/posteingang",
		},
		{
			name:      "empty id",
			id:        "  ",
			direction: Incoming,
			wantErr:   true,
		},
		{
			name:      "unknown direction",
			id:        "c3",
			direction: Direction("drafts"),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := NewWorkItem(tt.id, tt.direction)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewWorkItem() error = %v", err)
			}
			if item.DetailLocation != tt.wantDetail {
				t.Errorf("DetailLocation = %q, want %q", item.DetailLocation, tt.wantDetail)
			}
			if item.ListLocation != tt.wantList {
				t.Errorf("ListLocation = %q, want %q", item.ListLocation, tt.wantList)
			}
			if item.ID != tt.id {
				t.Errorf("ID = %q, want %q", item.ID, tt.id)
			}
		})
	}
}

func TestBuild_OutgoingBeforeIncoming(t *testing.T) {
	outgoing := []Record{
		{MessageUUID: "out-1", CreationTime: "2024-01-01T08:00:00Z"},
		{MessageUUID: "out-2", CreationTime: "2024-01-02T08:00:00Z"},
	}
	incoming := []Record{
		{MessageUUID: "in-1", CreationTime: "2023-12-01T08:00:00Z"},
		{MessageUUID: "", CreationTime: "2023-12-02T08:00:00Z"},
		{MessageUUID: "in-2", CreationTime: "2023-12-03T08:00:00Z"},
	}

	q := Build(outgoing, incoming)

	want := []string{"out-1", "out-2", "in-1", "in-2"}
	if len(q) != len(want) {
		t.Fatalf("len(queue) = %d, want %d", len(q), len(want))
	}
	for i, id := range want {
		if q[i].ID != id {
			t.Errorf("queue[%d] = %s, want %s", i, q[i].ID, id)
		}
	}
	if q.Count(Outgoing) != 2 || q.Count(Incoming) != 2 {
		t.Errorf("Count = %d/%d, want 2/2", q.Count(Outgoing), q.Count(Incoming))
	}
}

func TestBuild_Empty(t *testing.T) {
	if q := Build(nil, nil); len(q) != 0 {
		t.Errorf("Build(nil, nil) = %v, want empty", q)
	}
}
