package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnexium/memory-substrate/internal/bus"
)

func TestStreamEmitsConnectedThenRelaysEvents(t *testing.T) {
	b := bus.New()
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/memories", nil).WithContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- Stream(rec, req, b, "proj1", "sub1")
	}()

	// Give the subscription time to register before emitting.
	time.Sleep(20 * time.Millisecond)
	b.Emit("proj1", "sub1", "memory.created", map[string]string{"id": "mem_1"})

	<-done

	body := rec.Body.String()
	scanner := bufio.NewScanner(strings.NewReader(body))
	var events []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}

	require.NotEmpty(t, events)
	assert.Equal(t, "connected", events[0])
	assert.Contains(t, events, "memory.created")
}
