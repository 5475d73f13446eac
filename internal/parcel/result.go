package parcel

// Result accumulates records and outcomes across a run. It is a value:
// Append returns a new Result and never touches the receiver's backing
// arrays, so a Result handed to a reader cannot change underneath it.
type Result struct {
	records  []CandidateRecord
	outcomes []Outcome
}

// Append folds one municipality's outcome into the result. Records of a
// failed outcome are discarded and CandidateCount is set from the records
// actually appended.
func (r Result) Append(outcome Outcome, records []CandidateRecord) Result {
	if outcome.Failed() {
		records = nil
	}
	outcome.CandidateCount = len(records)

	next := Result{
		records:  make([]CandidateRecord, 0, len(r.records)+len(records)),
		outcomes: make([]Outcome, 0, len(r.outcomes)+1),
	}
	next.records = append(next.records, r.records...)
	next.records = append(next.records, records...)
	next.outcomes = append(next.outcomes, r.outcomes...)
	next.outcomes = append(next.outcomes, outcome)
	return next
}

// Records returns a copy of the candidate records in pipeline order.
func (r Result) Records() []CandidateRecord {
	out := make([]CandidateRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Outcomes returns a copy of the outcomes in configuration order.
func (r Result) Outcomes() []Outcome {
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Len is the number of candidate records.
func (r Result) Len() int {
	return len(r.records)
}

// Empty reports whether the run found no candidates at all.
func (r Result) Empty() bool {
	return len(r.records) == 0
}

// Failures returns the outcomes that carry a failure.
func (r Result) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}
