package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const conversationCollection = "conversation"

// ConversationLog is the append-only history of turns. The durable log is
// unbounded; callers bound what they read back with Recent.
type ConversationLog struct {
	coll *collection[[]Turn]
}

func NewConversationLog(backend Backend, logger *zap.Logger) *ConversationLog {
	return &ConversationLog{coll: newCollection[[]Turn](conversationCollection, backend, logger)}
}

// SetRecoveryHook registers a callback for an unreadable persisted log.
func (l *ConversationLog) SetRecoveryHook(hook func(collection string)) {
	l.coll.onRecover = hook
}

// Append adds turn to the end of the log, filling ID and Timestamp when empty.
func (l *ConversationLog) Append(ctx context.Context, turn Turn) (Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	turn.Timestamp = turn.Timestamp.UTC()
	err := l.coll.update(ctx, func(turns *[]Turn) (bool, error) {
		*turns = append(*turns, turn)
		return true, nil
	})
	if err != nil {
		return Turn{}, err
	}
	return turn, nil
}

// Recent returns the last n turns, oldest first. n <= 0 returns all turns.
func (l *ConversationLog) Recent(ctx context.Context, n int) ([]Turn, error) {
	arr := l.coll.snapshot(ctx)
	if len(arr) == 0 {
		return nil, nil
	}
	if n <= 0 || n > len(arr) {
		n = len(arr)
	}
	out := make([]Turn, 0, n)
	for i := len(arr) - n; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

// Reset drops the whole history.
func (l *ConversationLog) Reset(ctx context.Context) error {
	return l.coll.update(ctx, func(turns *[]Turn) (bool, error) {
		if len(*turns) == 0 {
			return false, nil
		}
		*turns = []Turn{}
		return true, nil
	})
}
