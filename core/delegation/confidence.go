package delegation

// Level is a coarse confidence tier for an agent-task pairing.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Scores per tier. An exact role/type match outranks any related pairing,
// which outranks the default.
const (
	HighScore   = 0.95
	MediumScore = 0.7
	LowScore    = 0.3
)

// relatedTypes maps an agent role to the task types it can credibly take
// on beyond its own specialty.
var relatedTypes = map[string][]TaskType{
	"writing":   {TypePlanning, TypeAlignment},
	"planning":  {TypeResearch, TypeWriting},
	"critique":  {TypeWriting, TypeAlignment},
	"alignment": {TypeWriting, TypeCritique},
	"research":  {TypePlanning},
}

// EstimateConfidence scores how well an agent role fits a task type.
// Exact match is high, a related pairing is medium, anything else is low.
// Pure lookup, no failure mode.
func EstimateConfidence(agentRole string, taskType TaskType) (Level, float64) {
	if agentRole == string(taskType) {
		return LevelHigh, HighScore
	}
	for _, related := range relatedTypes[agentRole] {
		if related == taskType {
			return LevelMedium, MediumScore
		}
	}
	return LevelLow, LowScore
}
