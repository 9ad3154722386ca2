package metrics

import "time"

type nop struct{}

// NewNop returns a Metrics that records nothing.
func NewNop() Metrics { return nop{} }

func (nop) RecordReportIngested(string)                                {}
func (nop) RecordGeoResolution(string, string)                         {}
func (nop) RecordIndexOperation(string, bool)                          {}
func (nop) SetIndexSize(int)                                           {}
func (nop) RecordUseCaseExecution(string, bool, time.Duration)         {}
func (nop) ObserveHTTPRequestDuration(string, string, string, float64) {}
func (nop) ObserveGRPCRequestDuration(string, string, string, float64) {}
func (nop) SetOutboxDepth(int)                                         {}
func (nop) IncOutboxEventsProcessed(string)                            {}
func (nop) IncDuplicateMessages(string)                                {}
