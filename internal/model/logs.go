package model

// LogRecord is one line emitted by an agent while running a pipeline.
type LogRecord struct {
	Stage string `json:"stage"`
	Line  string `json:"line"`
}

// StageLog groups log records by stage, stages kept in first-seen order.
type StageLog struct {
	order   []string
	byStage map[string][]LogRecord
}

func NewStageLog() *StageLog {
	return &StageLog{byStage: make(map[string][]LogRecord)}
}

// Append adds a record, creating its stage on first use.
func (l *StageLog) Append(r LogRecord) {
	if l.byStage == nil {
		l.byStage = make(map[string][]LogRecord)
	}
	if _, ok := l.byStage[r.Stage]; !ok {
		l.order = append(l.order, r.Stage)
	}
	l.byStage[r.Stage] = append(l.byStage[r.Stage], r)
}

func (l *StageLog) Stages() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.order...)
}

func (l *StageLog) Records(stage string) []LogRecord {
	if l == nil {
		return nil
	}
	return append([]LogRecord(nil), l.byStage[stage]...)
}

func (l *StageLog) Len() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, recs := range l.byStage {
		n += len(recs)
	}
	return n
}

// Clone returns a copy that shares no slices with l.
func (l *StageLog) Clone() *StageLog {
	out := NewStageLog()
	if l == nil {
		return out
	}
	for _, stage := range l.order {
		out.order = append(out.order, stage)
		out.byStage[stage] = append([]LogRecord(nil), l.byStage[stage]...)
	}
	return out
}
