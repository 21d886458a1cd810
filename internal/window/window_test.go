package window

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aremu/jobalert/internal/clock"
	"github.com/aremu/jobalert/internal/domain"
	"github.com/aremu/jobalert/internal/store"
)

func TestDueStageHighestCrossed(t *testing.T) {
	// 23h50m elapsed with S1-S3 already sent: only S5 fires, S4 is
	// skipped permanently.
	sent := map[string]bool{"S1": true, "S2": true, "S3": true}
	stage := DueStage(23*time.Hour+50*time.Minute, sent)
	require.NotNil(t, stage)
	assert.Equal(t, "S5", stage.Name)
}

func TestDueStageNothingCrossed(t *testing.T) {
	assert.Nil(t, DueStage(10*time.Hour, map[string]bool{}))
}

func TestDueStageFirstCrossing(t *testing.T) {
	stage := DueStage(16*time.Hour+time.Minute, map[string]bool{})
	require.NotNil(t, stage)
	assert.Equal(t, "S1", stage.Name)
}

func TestDueStageHigherSentCoversLower(t *testing.T) {
	// S5 already sent: nothing further is due even though S4 never
	// fired.
	sent := map[string]bool{"S5": true}
	assert.Nil(t, DueStage(23*time.Hour+55*time.Minute, sent))
}

func TestDueStageAlreadySent(t *testing.T) {
	sent := map[string]bool{"S1": true}
	assert.Nil(t, DueStage(17*time.Hour, sent))

	stage := DueStage(19*time.Hour+time.Second, sent)
	require.NotNil(t, stage)
	assert.Equal(t, "S2", stage.Name)
}

func TestReminderMessagesDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range Stages {
		msg := ReminderMessage(s.Name, nil, time.Hour)
		assert.NotEmpty(t, msg, s.Name)
		assert.False(t, seen[msg], "stage bodies must differ")
		seen[msg] = true
	}

	assert.Contains(t, ReminderMessage("S4", nil, 40*time.Minute), "hour")
	assert.Contains(t, ReminderMessage("S5", nil, 10*time.Minute), "Last call")
}

func TestReminderMessagePersonalization(t *testing.T) {
	prefs := &domain.Preferences{JobTitles: []string{"sales executive"}}
	msg := ReminderMessage("S2", prefs, 5*time.Hour)
	assert.Contains(t, msg, "sales executive")
}

type fakeWindowStore struct {
	mu       sync.Mutex
	windows  map[int64]*domain.Window
	nextID   int64
	expired  int64
	ledger   map[int64]map[string]bool
	users    map[int64]*domain.User
	prefs    map[int64]*domain.Preferences
}

func newFakeWindowStore() *fakeWindowStore {
	return &fakeWindowStore{
		windows: map[int64]*domain.Window{},
		ledger:  map[int64]map[string]bool{},
		users:   map[int64]*domain.User{},
		prefs:   map[int64]*domain.Preferences{},
	}
}

func (f *fakeWindowStore) OpenWindow(_ context.Context, userID int64, openedAt, expiresAt time.Time) (*domain.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[userID]; ok && w.Status == domain.WindowActive {
		w.OpenedAt, w.ExpiresAt = openedAt, expiresAt
		f.ledger[w.ID] = map[string]bool{}
		return w, nil
	}
	f.nextID++
	w := &domain.Window{ID: f.nextID, UserID: userID, OpenedAt: openedAt, ExpiresAt: expiresAt, Status: domain.WindowActive}
	f.windows[userID] = w
	return w, nil
}

func (f *fakeWindowStore) ActiveWindow(_ context.Context, userID int64, now time.Time) (*domain.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[userID]
	if !ok || w.Status != domain.WindowActive || !w.ExpiresAt.After(now) {
		return nil, store.ErrNotFound
	}
	return w, nil
}

func (f *fakeWindowStore) ExpireWindows(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, w := range f.windows {
		if w.Status == domain.WindowActive && !w.ExpiresAt.After(now) {
			w.Status = domain.WindowExpired
			n++
		}
	}
	f.expired += n
	return n, nil
}

func (f *fakeWindowStore) WindowsInReminderRange(_ context.Context, now time.Time, minElapsed time.Duration) ([]domain.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Window
	for _, w := range f.windows {
		if w.Status == domain.WindowActive && now.Sub(w.OpenedAt) >= minElapsed && w.ExpiresAt.After(now) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeWindowStore) SentReminderStages(_ context.Context, windowID int64) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for k, v := range f.ledger[windowID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeWindowStore) RecordReminder(_ context.Context, windowID int64, stage string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ledger[windowID] == nil {
		f.ledger[windowID] = map[string]bool{}
	}
	if f.ledger[windowID][stage] {
		return false, nil
	}
	f.ledger[windowID][stage] = true
	return true, nil
}

func (f *fakeWindowStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeWindowStore) GetPreferences(_ context.Context, id int64) (*domain.Preferences, error) {
	if p, ok := f.prefs[id]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) SendText(_ context.Context, _, body string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, body)
	return "wamid.r", nil
}

func TestManagerWindowBoundary(t *testing.T) {
	st := newFakeWindowStore()
	clk := clock.NewFake(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	m := NewManager(st, clk, 24*time.Hour)

	ctx := context.Background()
	_, err := m.Touch(ctx, 7)
	require.NoError(t, err)

	// 24h - 1s: still active
	clk.Advance(24*time.Hour - time.Second)
	ok, err := m.CanSend(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	// exactly 24h: expired
	clk.Advance(time.Second)
	ok, err = m.CanSend(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerTouchExtends(t *testing.T) {
	st := newFakeWindowStore()
	clk := clock.NewFake(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	m := NewManager(st, clk, 24*time.Hour)

	ctx := context.Background()
	w1, err := m.Touch(ctx, 7)
	require.NoError(t, err)

	clk.Advance(20 * time.Hour)
	w2, err := m.Touch(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, w1.ID, w2.ID, "active window is extended, not replaced")
	assert.Equal(t, clk.Now().Add(24*time.Hour), w2.ExpiresAt)
}

func TestDaemonScanCascade(t *testing.T) {
	st := newFakeWindowStore()
	opened := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(opened.Add(23*time.Hour + 50*time.Minute))

	st.windows[3] = &domain.Window{ID: 1, UserID: 3, OpenedAt: opened, ExpiresAt: opened.Add(24 * time.Hour), Status: domain.WindowActive}
	st.ledger[1] = map[string]bool{"S1": true, "S2": true, "S3": true}
	st.users[3] = &domain.User{ID: 3, Phone: "2348000000003"}

	sender := &recordingSender{}
	d := NewDaemon(st, sender, nil, clk, 5*time.Minute)

	d.Scan(context.Background())

	require.Len(t, sender.sent, 1, "exactly one outbound")
	assert.Contains(t, sender.sent[0], "Last call")
	assert.True(t, st.ledger[1]["S5"])
	assert.False(t, st.ledger[1]["S4"], "S4 is never backfilled")

	// A second scan sends nothing
	d.Scan(context.Background())
	assert.Len(t, sender.sent, 1)
}

type recordingRetrier struct {
	mu       sync.Mutex
	retried  []int64
	backfill []int64
}

func (r *recordingRetrier) RetryUndelivered(_ context.Context, userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retried = append(r.retried, userID)
	return 0
}

func (r *recordingRetrier) BackfillRecent(_ context.Context, userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backfill = append(r.backfill, userID)
	return 0
}

func TestDaemonBackfillsYoungWindows(t *testing.T) {
	// A window opened an hour ago is well below the first reminder
	// threshold, but its user must still get retry and catch-up
	// passes on every scan.
	st := newFakeWindowStore()
	opened := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(opened.Add(time.Hour))

	st.windows[3] = &domain.Window{ID: 1, UserID: 3, OpenedAt: opened, ExpiresAt: opened.Add(24 * time.Hour), Status: domain.WindowActive}
	st.users[3] = &domain.User{ID: 3, Phone: "2348000000003"}

	sender := &recordingSender{}
	retrier := &recordingRetrier{}
	d := NewDaemon(st, sender, retrier, clk, 5*time.Minute)
	d.Scan(context.Background())

	assert.Empty(t, sender.sent, "no reminder stage is due yet")
	assert.Equal(t, []int64{3}, retrier.retried)
	assert.Equal(t, []int64{3}, retrier.backfill)
}

func TestDaemonExpiresBeforeReminding(t *testing.T) {
	st := newFakeWindowStore()
	opened := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(opened.Add(25 * time.Hour))

	st.windows[3] = &domain.Window{ID: 1, UserID: 3, OpenedAt: opened, ExpiresAt: opened.Add(24 * time.Hour), Status: domain.WindowActive}
	st.users[3] = &domain.User{ID: 3, Phone: "2348000000003"}

	sender := &recordingSender{}
	d := NewDaemon(st, sender, nil, clk, 5*time.Minute)
	d.Scan(context.Background())

	assert.Empty(t, sender.sent, "expired windows get no reminders")
	assert.Equal(t, domain.WindowExpired, st.windows[3].Status)
}
