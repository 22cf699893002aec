package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLogName(t *testing.T) {
	cases := []struct {
		base    string
		channel string
		date    string
		ok      bool
	}{
		{"CH1 T 24-06-10.log", "CH1 T", "24-06-10", true},
		{"heaters_24-06-10.log", "heaters", "24-06-10", true},
		{"Status_24-06-10.log", "Status", "24-06-10", true},
		{"maxigauge 24-06-10.log", "maxigauge", "24-06-10", true},
		{"CH1 T 24-06-10.txt", "", "", false},
		{"24-06-10.log", "", "", false},
		{"CH1 T 24-13-10.log", "", "", false},
		{"notes.log", "", "", false},
	}
	for _, tc := range cases {
		channel, date, ok := ParseLogName(tc.base)
		assert.Equal(t, tc.ok, ok, tc.base)
		assert.Equal(t, tc.channel, channel, tc.base)
		assert.Equal(t, tc.date, date, tc.base)
	}
}

func TestOverseerEmitsCreateAndWrite(t *testing.T) {
	root := t.TempDir()
	date := time.Now().Format(DateLayout)
	require.NoError(t, os.MkdirAll(filepath.Join(root, date), 0755))

	o, err := NewOverseer(root, zap.NewNop())
	require.NoError(t, err)
	o.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	// Give the subscription a moment to attach.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(root, date, "CH1 T "+date+".log")
	require.NoError(t, os.WriteFile(path, []byte("10-06-24,12:00:00,1.0\n"), 0644))

	var created Event
	require.Eventually(t, func() bool {
		select {
		case ev := <-o.Events():
			created = ev
			return ev.Kind == Created
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "CH1 T", created.Channel)
	assert.Equal(t, date, created.Date)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("10-06-24,12:00:01,2.0\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		select {
		case ev := <-o.Events():
			return ev.Kind == Modified && ev.Channel == "CH1 T"
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestOverseerIgnoresNonLogFiles(t *testing.T) {
	root := t.TempDir()
	date := time.Now().Format(DateLayout)
	require.NoError(t, os.MkdirAll(filepath.Join(root, date), 0755))

	o, err := NewOverseer(root, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(
		filepath.Join(root, date, "notes.txt"), []byte("hello"), 0644))

	select {
	case ev := <-o.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestOverseerFollowsDateRollover(t *testing.T) {
	root := t.TempDir()
	day1 := "24-06-10"
	day2 := "24-06-11"
	require.NoError(t, os.MkdirAll(filepath.Join(root, day1), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, day2), 0755))

	o, err := NewOverseer(root, zap.NewNop())
	require.NoError(t, err)
	o.pollInterval = 10 * time.Millisecond
	o.backoff = 10 * time.Millisecond

	var mu sync.Mutex
	clock := time.Date(2024, 6, 10, 23, 59, 59, 0, time.Local)
	o.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	clock = time.Date(2024, 6, 11, 0, 0, 1, 0, time.Local)
	mu.Unlock()
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(root, day2, "CH1 T "+day2+".log")
	require.NoError(t, os.WriteFile(path, []byte("11-06-24,00:00:01,1.0\n"), 0644))

	require.Eventually(t, func() bool {
		select {
		case ev := <-o.Events():
			return ev.Date == day2 && ev.Channel == "CH1 T"
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}
