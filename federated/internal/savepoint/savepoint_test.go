package savepoint

import "testing"

func TestSetAscending(t *testing.T) {
	var s Stack
	if err := s.Set(1); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(3); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(3); err == nil {
		t.Fatal("expected error for non-ascending level")
	}
	if err := s.Set(2); err == nil {
		t.Fatal("expected error for level below top")
	}
	if got := s.Last(); got != 3 {
		t.Fatalf("last: got %d, want 3", got)
	}
}

func TestActual(t *testing.T) {
	var s Stack
	if got := s.Actual(); got != 0 {
		t.Fatalf("empty stack actual: got %d, want 0", got)
	}
	s.Set(1)
	s.Set(2)
	s.Set(3)
	if got := s.Actual(); got != 0 {
		t.Fatalf("unrealized actual: got %d, want 0", got)
	}
	s.entries[1].Flags |= Realized
	if got := s.Actual(); got != 2 {
		t.Fatalf("actual: got %d, want 2", got)
	}
}

func TestReleaseEmitsDeepestRealized(t *testing.T) {
	tests := []struct {
		name     string
		flags    map[uint64]Flag // level -> flags
		release  uint64
		wantEmit uint64
		wantOK   bool
		wantLast uint64
	}{
		{
			name:     "nothing realized",
			flags:    map[uint64]Flag{},
			release:  2,
			wantOK:   false,
			wantLast: 1,
		},
		{
			name:     "deepest realized wins",
			flags:    map[uint64]Flag{2: Realized, 3: Realized},
			release:  2,
			wantEmit: 2,
			wantOK:   true,
			wantLast: 1,
		},
		{
			name:     "restricted entries do not emit",
			flags:    map[uint64]Flag{2: Realized | Restrict, 3: Restrict},
			release:  2,
			wantOK:   false,
			wantLast: 1,
		},
		{
			name:     "release below keeps lower entries",
			flags:    map[uint64]Flag{3: Realized},
			release:  3,
			wantEmit: 3,
			wantOK:   true,
			wantLast: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Stack
			for _, level := range []uint64{1, 2, 3} {
				s.Set(level)
				if f, ok := tt.flags[level]; ok {
					s.entries[len(s.entries)-1].Flags = f
				}
			}
			emit, ok := s.Release(tt.release)
			if ok != tt.wantOK || (ok && emit != tt.wantEmit) {
				t.Fatalf("release: got (%d, %v), want (%d, %v)", emit, ok, tt.wantEmit, tt.wantOK)
			}
			if got := s.Last(); got != tt.wantLast {
				t.Fatalf("last: got %d, want %d", got, tt.wantLast)
			}
		})
	}
}

func TestRollback(t *testing.T) {
	tests := []struct {
		name     string
		flags    map[uint64]Flag
		rollback uint64
		wantEmit uint64
		wantOK   bool
		wantLast uint64
	}{
		{
			name:     "rollback to realized entry",
			flags:    map[uint64]Flag{2: Realized},
			rollback: 2,
			wantEmit: 2,
			wantOK:   true,
			wantLast: 2,
		},
		{
			name:     "entries above are popped",
			flags:    map[uint64]Flag{2: Realized, 3: Realized},
			rollback: 2,
			wantEmit: 2,
			wantOK:   true,
			wantLast: 2,
		},
		{
			name:     "restricted target stays silent",
			flags:    map[uint64]Flag{2: Realized | Restrict},
			rollback: 2,
			wantOK:   false,
			wantLast: 2,
		},
		{
			name:     "nothing realized stays silent",
			flags:    map[uint64]Flag{},
			rollback: 1,
			wantOK:   false,
			wantLast: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Stack
			for _, level := range []uint64{1, 2, 3} {
				s.Set(level)
				if f, ok := tt.flags[level]; ok {
					s.entries[len(s.entries)-1].Flags = f
				}
			}
			emit, ok := s.Rollback(tt.rollback)
			if ok != tt.wantOK || (ok && emit != tt.wantEmit) {
				t.Fatalf("rollback: got (%d, %v), want (%d, %v)", emit, ok, tt.wantEmit, tt.wantOK)
			}
			if got := s.Last(); got != tt.wantLast {
				t.Fatalf("last: got %d, want %d", got, tt.wantLast)
			}
		})
	}
}

func TestRestrict(t *testing.T) {
	var s Stack
	s.Set(1)
	s.Set(2)
	s.Restrict(2)
	if s.entries[1].Flags&Restrict == 0 {
		t.Fatal("level 2 not restricted")
	}
	if s.entries[0].Flags&Restrict != 0 {
		t.Fatal("level 1 must stay unrestricted")
	}
	// restricting an unknown level is a no-op
	s.Restrict(5)
}

func TestAllRestrict(t *testing.T) {
	var s Stack
	if s.AllRestrict() {
		t.Fatal("empty stack must not report all-restrict")
	}
	s.Set(1)
	if s.AllRestrict() {
		t.Fatal("unrestricted entry must not report all-restrict")
	}
	s.Restrict(1)
	if !s.AllRestrict() {
		t.Fatal("single restricted entry must report all-restrict")
	}
	s.Set(2)
	s.Restrict(2)
	s.entries[1].Flags |= Emitted
	if s.AllRestrict() {
		t.Fatal("emitted entry must veto all-restrict")
	}
}

func TestClear(t *testing.T) {
	var s Stack
	s.Set(1)
	s.Set(2)
	s.Clear()
	if s.Len() != 0 || s.Last() != 0 {
		t.Fatal("clear left entries behind")
	}
}
