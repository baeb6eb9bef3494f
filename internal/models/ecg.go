package models

// ECG case categories.
const (
	CategoryRhythm       = "rhythm"
	CategoryConduction   = "conduction"
	CategoryIschemia     = "ischemia"
	CategoryHypertrophy  = "hypertrophy"
	CategoryAxis         = "axis"
	CategoryElectrolytes = "electrolytes"
	CategoryPacing       = "pacing"
)

// AllCategories lists every category an attempt can be tagged with.
var AllCategories = []string{
	CategoryRhythm,
	CategoryConduction,
	CategoryIschemia,
	CategoryHypertrophy,
	CategoryAxis,
	CategoryElectrolytes,
	CategoryPacing,
}

// ECG finding tags.
const (
	FindingNormalSinus      = "normal_sinus_rhythm"
	FindingAtrialFib        = "atrial_fibrillation"
	FindingAtrialFlutter    = "atrial_flutter"
	FindingSVT              = "svt"
	FindingVT               = "ventricular_tachycardia"
	FindingVF               = "ventricular_fibrillation"
	FindingFirstDegreeAVB   = "first_degree_av_block"
	FindingMobitzI          = "second_degree_av_block_mobitz_1"
	FindingMobitzII         = "second_degree_av_block_mobitz_2"
	FindingThirdDegreeAVB   = "third_degree_av_block"
	FindingLBBB             = "lbbb"
	FindingRBBB             = "rbbb"
	FindingSTEMI            = "stemi"
	FindingNSTEMI           = "nstemi"
	FindingSTDepression     = "st_depression"
	FindingTWaveInversion   = "t_wave_inversion"
	FindingPathologicQWaves = "pathologic_q_waves"
	FindingLVH              = "lvh"
	FindingRVH              = "rvh"
	FindingLeftAxis         = "left_axis_deviation"
	FindingRightAxis        = "right_axis_deviation"
	FindingHyperkalemia     = "hyperkalemia"
	FindingHypokalemia      = "hypokalemia"
	FindingLongQT           = "long_qt"
	FindingWPW              = "wpw"
	FindingPacedRhythm      = "paced_rhythm"
)

// FindingIschemia is the virtual finding tag that aggregates every ischemic finding.
const FindingIschemia = "ischemia"

var allFindings = map[string]struct{}{}

func init() {
	for _, f := range []string{
		FindingNormalSinus, FindingAtrialFib, FindingAtrialFlutter, FindingSVT, FindingVT, FindingVF,
		FindingFirstDegreeAVB, FindingMobitzI, FindingMobitzII, FindingThirdDegreeAVB, FindingLBBB, FindingRBBB,
		FindingSTEMI, FindingNSTEMI, FindingSTDepression, FindingTWaveInversion, FindingPathologicQWaves,
		FindingLVH, FindingRVH, FindingLeftAxis, FindingRightAxis, FindingHyperkalemia, FindingHypokalemia,
		FindingLongQT, FindingWPW, FindingPacedRhythm,
	} {
		allFindings[f] = struct{}{}
	}
}

// FindingGroups maps a named group to its member findings.
var FindingGroups = map[string][]string{
	"conduction_blocks": {
		FindingFirstDegreeAVB, FindingMobitzI, FindingMobitzII, FindingThirdDegreeAVB, FindingLBBB, FindingRBBB,
	},
	"ischemic_changes": {
		FindingSTEMI, FindingNSTEMI, FindingSTDepression, FindingTWaveInversion, FindingPathologicQWaves,
	},
	"tachyarrhythmias": {
		FindingAtrialFib, FindingAtrialFlutter, FindingSVT, FindingVT, FindingVF,
	},
	"electrolyte_disturbances": {
		FindingHyperkalemia, FindingHypokalemia, FindingLongQT,
	},
}

// IsKnownCategory reports whether c is a recognized category tag.
func IsKnownCategory(c string) bool {
	for _, known := range AllCategories {
		if known == c {
			return true
		}
	}
	return false
}

// IsKnownFinding reports whether f is a recognized concrete finding tag.
func IsKnownFinding(f string) bool {
	_, ok := allFindings[f]
	return ok
}

// FindingCount returns the correct count for a finding, expanding the virtual ischemia tag.
func FindingCount(c Counter, finding string) int {
	if finding == FindingIschemia {
		return c.Sum(FindingGroups["ischemic_changes"]...)
	}
	return c.Get(finding)
}
