package paginate

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// offsetSource serves pages of size pageSize over total sequential ints.
type offsetSource struct {
	total    int
	pageSize int
	offsets  []int
	// nilAt makes the fetch at this offset return a nil page.
	nilAt int
	// emptyAt makes the fetch at this offset return no items.
	emptyAt int
	errAt   int
}

func newOffsetSource(total, pageSize int) *offsetSource {
	return &offsetSource{total: total, pageSize: pageSize, nilAt: -1, emptyAt: -1, errAt: -1}
}

func (s *offsetSource) fetch(_ context.Context, offset int) (*OffsetPage[int], error) {
	s.offsets = append(s.offsets, offset)

	if offset == s.errAt {
		return nil, errors.New("boom")
	}
	if offset == s.nilAt {
		return nil, nil
	}
	page := &OffsetPage[int]{Total: s.total}
	if offset == s.emptyAt {
		return page, nil
	}
	for i := offset; i < s.total && i < offset+s.pageSize; i++ {
		page.Items = append(page.Items, i)
	}
	return page, nil
}

func TestOffset_FetchesUntilTotal(t *testing.T) {
	src := newOffsetSource(125, 50)

	items, err := Collect(Offset(context.Background(), src.fetch, Strict))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if want := []int{0, 50, 100}; !slices.Equal(src.offsets, want) {
		t.Errorf("fetched offsets = %v, want %v", src.offsets, want)
	}
	if len(items) != 125 {
		t.Fatalf("got %d items, want 125", len(items))
	}
	for i, v := range items {
		if v != i {
			t.Fatalf("item %d = %d, out of order", i, v)
		}
	}
}

func TestOffset_EmptyCollection(t *testing.T) {
	src := newOffsetSource(0, 50)

	items, err := Collect(Offset(context.Background(), src.fetch, Strict))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 0 || len(src.offsets) != 1 {
		t.Errorf("got %d items after %d fetches, want 0 after 1", len(items), len(src.offsets))
	}
}

func TestOffset_MissingPage(t *testing.T) {
	tests := []struct {
		name      string
		nilAt     int
		mode      Mode
		wantItems int
		wantErr   error
	}{
		{name: "strict first", nilAt: 0, mode: Strict, wantItems: 0, wantErr: ErrMissingPage},
		{name: "lenient first", nilAt: 0, mode: Lenient, wantItems: 0},
		{name: "strict later", nilAt: 50, mode: Strict, wantItems: 50, wantErr: ErrMissingPage},
		{name: "lenient later", nilAt: 50, mode: Lenient, wantItems: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newOffsetSource(120, 50)
			src.nilAt = tt.nilAt

			items, err := Collect(Offset(context.Background(), src.fetch, tt.mode))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if len(items) != tt.wantItems {
				t.Errorf("got %d items, want %d", len(items), tt.wantItems)
			}
		})
	}
}

func TestOffset_ShortPageDoesNotLoop(t *testing.T) {
	src := newOffsetSource(120, 50)
	src.emptyAt = 50

	_, err := Collect(Offset(context.Background(), src.fetch, Strict))
	if !errors.Is(err, ErrShortPage) {
		t.Errorf("strict error = %v, want ErrShortPage", err)
	}

	src = newOffsetSource(120, 50)
	src.emptyAt = 50
	items, err := Collect(Offset(context.Background(), src.fetch, Lenient))
	if err != nil {
		t.Errorf("lenient error = %v, want nil", err)
	}
	if len(items) != 50 {
		t.Errorf("lenient got %d items, want 50", len(items))
	}
}

func TestOffset_FetchErrorStops(t *testing.T) {
	src := newOffsetSource(200, 50)
	src.errAt = 100

	items, err := Collect(Offset(context.Background(), src.fetch, Lenient))
	if err == nil || err.Error() != "boom" {
		t.Errorf("error = %v, want boom", err)
	}
	if len(items) != 100 {
		t.Errorf("got %d items before error, want 100", len(items))
	}
	if len(src.offsets) != 3 {
		t.Errorf("expected 3 fetches, got %d", len(src.offsets))
	}
}

type cursorSource struct {
	pages [][]string
	flags []bool
	calls int
}

func (s *cursorSource) page(i int) *CursorPage[string] {
	s.calls++
	return &CursorPage[string]{Items: s.pages[i], HasNext: s.flags[i], Token: i}
}

func (s *cursorSource) first(_ context.Context) (*CursorPage[string], error) {
	return s.page(0), nil
}

func (s *cursorSource) next(_ context.Context, prev *CursorPage[string]) (*CursorPage[string], error) {
	return s.page(prev.Token.(int) + 1), nil
}

func TestCursor_FollowsNextFlag(t *testing.T) {
	src := &cursorSource{
		pages: [][]string{{"a", "b"}, {"c"}, {"d", "e"}, {"f"}},
		flags: []bool{true, true, true, false},
	}

	items, err := Collect(Cursor(context.Background(), src.first, src.next, Strict))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if src.calls != 4 {
		t.Errorf("fetches = %d, want 4", src.calls)
	}
	if want := []string{"a", "b", "c", "d", "e", "f"}; !slices.Equal(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
}

func TestCursor_MissingPage(t *testing.T) {
	nilFirst := func(context.Context) (*CursorPage[string], error) { return nil, nil }
	unused := func(context.Context, *CursorPage[string]) (*CursorPage[string], error) {
		t.Fatal("next should not be called")
		return nil, nil
	}

	items, err := Collect(Cursor(context.Background(), nilFirst, unused, Strict))
	if !errors.Is(err, ErrMissingPage) {
		t.Errorf("strict error = %v, want ErrMissingPage", err)
	}
	if len(items) != 0 {
		t.Errorf("strict got %d items", len(items))
	}

	items, err = Collect(Cursor(context.Background(), nilFirst, unused, Lenient))
	if err != nil || len(items) != 0 {
		t.Errorf("lenient = (%v, %v), want empty and nil", items, err)
	}

	first := func(context.Context) (*CursorPage[string], error) {
		return &CursorPage[string]{Items: []string{"a"}, HasNext: true}, nil
	}
	nilNext := func(context.Context, *CursorPage[string]) (*CursorPage[string], error) { return nil, nil }

	items, err = Collect(Cursor(context.Background(), first, nilNext, Strict))
	if !errors.Is(err, ErrMissingPage) || len(items) != 1 {
		t.Errorf("strict later = (%v, %v), want 1 item and ErrMissingPage", items, err)
	}

	items, err = Collect(Cursor(context.Background(), first, nilNext, Lenient))
	if err != nil || len(items) != 1 {
		t.Errorf("lenient later = (%v, %v), want 1 item and nil", items, err)
	}
}

func TestCursor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cursorSource{
		pages: [][]string{{"a"}, {"b"}},
		flags: []bool{true, false},
	}

	var got []string
	var gotErr error
	for item, err := range Cursor(ctx, src.first, src.next, Strict) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, item)
		cancel()
	}

	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", gotErr)
	}
	if src.calls != 1 {
		t.Errorf("fetches = %d, want 1", src.calls)
	}
	if len(got) != 1 {
		t.Errorf("items = %v, want one", got)
	}
}

func TestSequencesAreLazyAndRestartable(t *testing.T) {
	src := newOffsetSource(150, 50)
	seq := Offset(context.Background(), src.fetch, Strict)

	if len(src.offsets) != 0 {
		t.Fatal("building the sequence must not fetch")
	}

	for range seq {
		break
	}
	if len(src.offsets) != 1 {
		t.Errorf("early break fetched %d pages, want 1", len(src.offsets))
	}

	items, err := Collect(seq)
	if err != nil || len(items) != 150 {
		t.Errorf("second walk = (%d items, %v), want 150 and nil", len(items), err)
	}
}

func TestValues(t *testing.T) {
	src := newOffsetSource(120, 50)
	src.errAt = 50

	var err error
	items := slices.Collect(Values(Offset(context.Background(), src.fetch, Strict), &err))
	if len(items) != 50 {
		t.Errorf("got %d items, want 50", len(items))
	}
	if err == nil {
		t.Error("expected error to be captured")
	}
}

func TestModeString(t *testing.T) {
	if Strict.String() != "strict" || Lenient.String() != "lenient" {
		t.Errorf("unexpected mode names %q %q", Strict, Lenient)
	}
}
