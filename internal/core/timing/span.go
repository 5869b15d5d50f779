package timing

import "fmt"

// Span breaks a millisecond duration into calendar-ish components. Days are
// taken modulo 365; whole years are reported separately.
type Span struct {
	Years   int64
	Days    int64
	Hours   int64
	Minutes int64
	Seconds int64
	Millis  int64
}

func SpanOf(ms int64) Span {
	if ms < 0 {
		ms = 0
	}
	return Span{
		Years:   ms / 1000 / 60 / 60 / 24 / 365,
		Days:    ms / 1000 / 60 / 60 / 24 % 365,
		Hours:   ms / 1000 / 60 / 60 % 24,
		Minutes: ms / 1000 / 60 % 60,
		Seconds: ms / 1000 % 60,
		Millis:  ms % 1000,
	}
}

// String renders the span as "[Yy ][Dd ]HH:MM:SS.mmm".
func (s Span) String() string {
	prefix := ""
	if s.Years > 0 {
		prefix += fmt.Sprintf("%dy ", s.Years)
	}
	if s.Years > 0 || s.Days > 0 {
		prefix += fmt.Sprintf("%dd ", s.Days)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d.%03d", prefix, s.Hours, s.Minutes, s.Seconds, s.Millis)
}
