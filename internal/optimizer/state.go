package optimizer

// Stage identifies one step of the optimization sequence.
type Stage string

const (
	StageGuide           Stage = "guide"
	StagePrompt          Stage = "prompt"
	StageEvaluationGuide Stage = "evaluation_guide"
	StageEvaluation      Stage = "evaluation"
	StageImprovement     Stage = "improvement"
	StageFinalize        Stage = "finalize"
)

// Step is the tag of the last stage a State went through.
type Step string

const (
	StepStarted                  Step = "started"
	StepGuideGenerated           Step = "guide_generated"
	StepGuideFallback            Step = "guide_fallback"
	StepPromptGenerated          Step = "prompt_generated"
	StepPromptFallback           Step = "prompt_fallback"
	StepEvaluationGuideGenerated Step = "evaluation_guide_generated"
	StepEvaluationGuideFallback  Step = "evaluation_guide_fallback"
	StepPromptEvaluated          Step = "prompt_evaluated"
	StepEvaluationFallback       Step = "evaluation_fallback"
	StepAlternativesGenerated    Step = "alternatives_generated"
	StepImprovementFallback      Step = "improvement_fallback"
	StepCompleted                Step = "completed"
	StepCompletedFallback        Step = "completed_fallback"
)

// AlternativeCount is the number of alternatives every run produces.
const AlternativeCount = 3

// State is the value threaded through the sequence. Steps never modify the
// State they receive; they return a new one.
type State struct {
	Role                   string
	BasicRequirements      string
	AdditionalRequirements string
	ModelType              string
	Examples               []Example

	EngineeringGuide    string
	EvaluationGuide     string
	CurrentPrompt       string
	Evaluations         []string
	AlternativePrompts  []string
	FinalRecommendation string

	Step      Step
	Fallbacks []Stage
}

// NewState seeds the initial State from a normalized request.
func NewState(req Request) State {
	return State{
		Role:                   req.Role,
		BasicRequirements:      req.BasicRequirements,
		AdditionalRequirements: req.AdditionalRequirements,
		ModelType:              req.ModelType,
		Examples:               append([]Example(nil), req.Examples...),
		Step:                   StepStarted,
	}
}

// Degraded reports whether any stage substituted its fallback value.
func (s State) Degraded() bool {
	return len(s.Fallbacks) > 0
}

// clone returns a copy that shares no slice memory with s.
func (s State) clone() State {
	next := s
	next.Examples = append([]Example(nil), s.Examples...)
	next.Evaluations = append([]string(nil), s.Evaluations...)
	next.AlternativePrompts = append([]string(nil), s.AlternativePrompts...)
	next.Fallbacks = append([]Stage(nil), s.Fallbacks...)
	return next
}
