package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/facesort/internal/faces"
	"github.com/your-org/facesort/internal/models"
)

type idleRunner struct{ release chan struct{} }

func (r idleRunner) RunOnce(ctx context.Context) (*faces.RunStats, error) {
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return &faces.RunStats{}, nil
}

func TestControlHandler(t *testing.T) {
	r := idleRunner{release: make(chan struct{})}
	c := faces.NewController(r, 0)
	h := controlHandler(c)
	ctx := context.Background()

	reply := h(ctx, models.ControlCommand{Action: models.ActionStop})
	assert.Equal(t, string(faces.StatusNotRunning), reply.Status)

	reply = h(ctx, models.ControlCommand{Action: models.ActionStart})
	assert.Equal(t, string(faces.StatusStarted), reply.Status)
	assert.True(t, reply.Running)

	reply = h(ctx, models.ControlCommand{Action: models.ActionStatus})
	assert.True(t, reply.Running)
	assert.Empty(t, reply.Error)

	reply = h(ctx, models.ControlCommand{Action: "reboot"})
	assert.Contains(t, reply.Error, "unknown action")

	reply = h(ctx, models.ControlCommand{Action: models.ActionStop})
	assert.Equal(t, string(faces.StatusStopped), reply.Status)
	c.Wait()
	assert.False(t, c.Running())
}
