package crowd

// LabellerAgreement summarises inter-labeller agreement for a label matrix.
type LabellerAgreement struct {
	TotalExamples      int     `json:"total_examples"`
	MultiLabelledCount int     `json:"multi_labelled_count"` // examples with >1 labeller
	AgreementRate      float64 `json:"agreement_rate"`       // fraction of multi-labelled examples with consensus
	DisagreementCount  int     `json:"disagreement_count"`   // examples where labellers disagree
}

// ComputeAgreement calculates labeller agreement from a matrix snapshot.
// Examples annotated by a single labeller are counted but do not contribute
// to the agreement rate.
func ComputeAgreement(snapshot *Snapshot) LabellerAgreement {
	if snapshot == nil {
		return LabellerAgreement{}
	}

	agreement := LabellerAgreement{}

	for _, i := range snapshot.ExampleIndices() {
		row := snapshot.AnnotationsFor(i)
		if len(row) == 0 {
			continue
		}
		agreement.TotalExamples++

		if len(row) <= 1 {
			continue
		}
		agreement.MultiLabelledCount++

		// Check if all labels agree.
		first := -1
		allAgree := true
		for _, label := range row {
			if first == -1 {
				first = label
				continue
			}
			if label != first {
				allAgree = false
				break
			}
		}
		if !allAgree {
			agreement.DisagreementCount++
		}
	}

	if agreement.MultiLabelledCount > 0 {
		agreed := agreement.MultiLabelledCount - agreement.DisagreementCount
		agreement.AgreementRate = float64(agreed) / float64(agreement.MultiLabelledCount)
	}

	return agreement
}
