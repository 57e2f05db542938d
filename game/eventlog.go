package game

import "fmt"

const (
	// EventLogCapacity はイベント ID の重複検出に使う環状バッファの大きさです。
	EventLogCapacity = 1024
	// EventLogForwardWindow は記録のたびに前方で空けておくスロット数です。
	// 記録時に id-EventLogForwardWindow のスロットを消すので、周回後も誤検出しません。
	EventLogForwardWindow = 256
)

// EventLog は id mod EventLogCapacity で引く既適用イベントの目印です。ペイロードは保持しません。
type EventLog struct {
	marks [EventLogCapacity]bool
}

func (l *EventLog) Has(id int) bool {
	return l.marks[slot(id)]
}

// Record は id を既適用として記録します。既に記録済みなら ErrDuplicateEvent を返します。
func (l *EventLog) Record(id int) error {
	if id < 0 {
		return fmt.Errorf("%w: negative event id %d", ErrProtocolViolation, id)
	}
	s := slot(id)
	if l.marks[s] {
		return fmt.Errorf("%w: event %d", ErrDuplicateEvent, id)
	}
	l.marks[s] = true
	l.marks[slot(id+EventLogCapacity-EventLogForwardWindow)] = false
	return nil
}

func (l *EventLog) Reset() {
	l.marks = [EventLogCapacity]bool{}
}

func slot(id int) int {
	return ((id % EventLogCapacity) + EventLogCapacity) % EventLogCapacity
}
