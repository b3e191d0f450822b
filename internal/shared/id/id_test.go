package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		prefix string
	}{
		{"notification", NewNotificationID().String(), NotificationPrefix},
		{"client", NewClientID().String(), ClientPrefix},
		{"socket", NewSocketID().String(), SocketPrefix},
		{"request", NewRequestID().String(), RequestPrefix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, _, err := Split(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}

func TestMessageIDIsUUID(t *testing.T) {
	_, err := uuid.Parse(NewMessageID().String())
	assert.NoError(t, err)
}

func TestSplitRejectsMalformed(t *testing.T) {
	_, _, err := Split("noprefix")
	assert.Error(t, err)
	_, _, err = Split("ntf_notaulid")
	assert.Error(t, err)
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewClientID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))
}

func TestConcurrentGenerationIsUniqueAndSorted(t *testing.T) {
	g := NewGenerator()
	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[string]bool)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := g.GenerateWithPrefix("x")
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)

	var ordered []string
	for i := 0; i < 50; i++ {
		ordered = append(ordered, g.GenerateWithPrefix("x"))
	}
	assert.True(t, sort.StringsAreSorted(ordered))
	assert.True(t, strings.HasPrefix(ordered[0], "x_"))
}
