package models

// GenerationRequest is the submission payload for a new generation job.
// Validation tags are enforced at the service boundary before a job row is
// created; defaults are applied after validation.
type GenerationRequest struct {
	UserID          string         `json:"user_id" validate:"required"`
	Kind            JobKind        `json:"job_type" validate:"omitempty,oneof=image video text"`
	Prompt          string         `json:"prompt" validate:"required"`
	NegativePrompt  string         `json:"negative_prompt,omitempty"`
	CheckpointModel string         `json:"checkpoint_model,omitempty"`
	LoraModels      []LoraModel    `json:"lora_models,omitempty" validate:"dive"`
	Width           int            `json:"width,omitempty" validate:"omitempty,min=64,max=4096"`
	Height          int            `json:"height,omitempty" validate:"omitempty,min=64,max=4096"`
	BatchSize       int            `json:"batch_size,omitempty" validate:"omitempty,min=1,max=8"`
	Sampler         *SamplerParams `json:"sampler_params,omitempty"`
	FilenamePrefix  string         `json:"filename_prefix,omitempty"`
	Backend         BackendKind    `json:"backend,omitempty" validate:"omitempty,oneof=primary mock"`

	Params map[string]interface{} `json:"params,omitempty"`
}

// ApplyDefaults fills zero-valued fields with submission defaults. Called
// after validation so explicit values always win.
func (r *GenerationRequest) ApplyDefaults() {
	if r.Kind == "" {
		r.Kind = JobKindImage
	}
	if r.Width == 0 {
		r.Width = 512
	}
	if r.Height == 0 {
		r.Height = 512
	}
	if r.BatchSize == 0 {
		r.BatchSize = 1
	}
	if r.Backend == "" {
		r.Backend = BackendPrimary
	}
	if r.Sampler == nil {
		defaults := DefaultSamplerParams()
		r.Sampler = &defaults
	}
}
