package tacplus

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Task tracks an ongoing activity through TACACS+ accounting records. The
// RFC8907 Section 8.3 bookkeeping arguments (task_id, start_time,
// elapsed_time, stop_time) are filled in automatically.
type Task struct {
	client    *Client
	id        string
	username  string
	startTime time.Time
}

// ID returns the task's unique identifier, sent as the task_id argument on
// every record.
func (t *Task) ID() string {
	return t.id
}

// StartTask sends a START accounting record for a new task and returns the
// Task handle together with the server's reply.
func (c *Client) StartTask(ctx context.Context, username string, args []Argument) (*Task, *AcctReply, error) {
	task := &Task{
		client:    c,
		id:        uuid.NewString(),
		username:  username,
		startTime: time.Now(),
	}

	full := make([]Argument, 0, len(args)+2)
	full = append(full,
		NewArgument("task_id", task.id),
		NewArgument("start_time", strconv.FormatInt(task.startTime.Unix(), 10)),
	)
	full = append(full, args...)

	reply, err := c.Accounting(ctx, AcctFlagStart, username, full)
	if err != nil {
		return nil, reply, err
	}

	return task, reply, nil
}

// Watchdog sends a WATCHDOG record updating the server about this task.
func (t *Task) Watchdog(ctx context.Context, args []Argument) (*AcctReply, error) {
	elapsed := int64(time.Since(t.startTime).Seconds())

	full := make([]Argument, 0, len(args)+2)
	full = append(full,
		NewArgument("task_id", t.id),
		NewArgument("elapsed_time", strconv.FormatInt(elapsed, 10)),
	)
	full = append(full, args...)

	return t.client.Accounting(ctx, AcctFlagWatchdog, t.username, full)
}

// Stop sends a STOP record marking this task complete. It should be called
// exactly once per task.
func (t *Task) Stop(ctx context.Context, args []Argument) (*AcctReply, error) {
	full := make([]Argument, 0, len(args)+2)
	full = append(full,
		NewArgument("task_id", t.id),
		NewArgument("stop_time", strconv.FormatInt(time.Now().Unix(), 10)),
	)
	full = append(full, args...)

	return t.client.Accounting(ctx, AcctFlagStop, t.username, full)
}
