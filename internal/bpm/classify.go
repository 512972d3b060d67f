package bpm

// Stage is a hypertension risk category per the ACC/AHA staging table.
type Stage int

const (
	StageNormal Stage = iota
	StageElevated
	StageHypertension1
	StageHypertension2
	StageCrisis
)

func (s Stage) String() string {
	switch s {
	case StageNormal:
		return "Normal"
	case StageElevated:
		return "Elevated"
	case StageHypertension1:
		return "Stage 1"
	case StageHypertension2:
		return "Stage 2"
	case StageCrisis:
		return "Crisis"
	default:
		return "Unknown"
	}
}

// Classify maps a systolic/diastolic pair (mmHg) onto a hypertension stage.
//
// Rules are evaluated top-down and the first match wins; the ranges overlap
// across systolic and diastolic, so reordering would silently change the
// risk category a patient is assigned.
func Classify(systolic, diastolic float64) Stage {
	switch {
	case systolic >= 180 || diastolic >= 120:
		return StageCrisis
	case systolic >= 140 || diastolic >= 90:
		return StageHypertension2
	case systolic >= 130 || diastolic >= 80:
		return StageHypertension1
	case systolic >= 120 && diastolic < 80:
		return StageElevated
	default:
		return StageNormal
	}
}
