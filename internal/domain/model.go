package domain

// Role names a pipeline stage for model selection.
type Role string

const (
	RoleExtractor      Role = "extractor"
	RoleStrategist     Role = "strategist"
	RoleScorer         Role = "scorer"
	RoleWriter         Role = "writer"
	RoleCritic         Role = "critic"
	RoleCriticFallback Role = "critic_fallback"
	RoleRefiner        Role = "refiner"
	RoleEmergency      Role = "emergency"
)

// Roles lists every role in pipeline order.
var Roles = []Role{
	RoleExtractor,
	RoleStrategist,
	RoleScorer,
	RoleWriter,
	RoleCritic,
	RoleCriticFallback,
	RoleRefiner,
	RoleEmergency,
}

// ModelRef identifies a backend and the model to request from it.
type ModelRef struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
}

func (m ModelRef) String() string {
	return m.Provider + "/" + m.Model
}
