package scan

// ScannerStatus is the scanner state as last reported, updated in place by
// status events.
type ScannerStatus struct {
	Time    string
	State   string
	Reasons []string

	// Active holds the raised conditions by id
	Active map[int]Condition

	// History holds cleared conditions by clear time
	History map[string]Condition
}

// NewScannerStatus returns an empty status
func NewScannerStatus() *ScannerStatus {
	return &ScannerStatus{
		Active:  make(map[int]Condition),
		History: make(map[string]Condition),
	}
}

// Raise records cond as active, replacing a condition with the same id
func (s *ScannerStatus) Raise(cond Condition) {
	s.Active[cond.ID] = cond
}

// Clear moves the active condition with id into the history under
// clearTime. It reports false when no such condition is active.
func (s *ScannerStatus) Clear(id int, clearTime string) bool {
	cond, ok := s.Active[id]
	if !ok {
		return false
	}
	s.History[clearTime] = cond
	delete(s.Active, id)
	return true
}

// ApplySummary takes the state and reasons from a summary event
func (s *ScannerStatus) ApplySummary(sum StatusSummary) {
	s.State = sum.State
	s.Reasons = append([]string(nil), sum.Reasons...)
}

type statusXML struct {
	CurrentTime string            `xml:"ScannerCurrentTime"`
	State       string            `xml:"ScannerState"`
	Active      []Condition       `xml:"ActiveConditions>DeviceCondition"`
	Reasons     []string          `xml:"ScannerStateReasons>ScannerStateReason"`
	History     []historyEntryXML `xml:"ConditionHistory>ConditionHistoryEntry"`
}

type historyEntryXML struct {
	Condition
	ClearTime string `xml:"ClearTime"`
}

func (x statusXML) decode() *ScannerStatus {
	s := NewScannerStatus()
	s.Time = x.CurrentTime
	s.State = x.State
	s.Reasons = x.Reasons
	for _, c := range x.Active {
		s.Raise(c)
	}
	for _, h := range x.History {
		s.History[h.ClearTime] = h.Condition
	}
	return s
}
