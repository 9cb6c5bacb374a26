// -----------------------------------------------------------------------
// Workflow builder - assembles the node graph submitted to the renderer
// -----------------------------------------------------------------------

package backend

import (
	"fmt"
	"strconv"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// StandardWorkflowBuilder produces the text-to-image node graph: checkpoint
// loader, optional LoRA chain, prompt encoders, sampler, decoder, saver.
type StandardWorkflowBuilder struct {
	defaultCheckpoint string
}

// NewStandardWorkflowBuilder creates a builder with a fallback checkpoint
// for jobs that do not name one.
func NewStandardWorkflowBuilder(defaultCheckpoint string) interfaces.WorkflowBuilder {
	return &StandardWorkflowBuilder{defaultCheckpoint: defaultCheckpoint}
}

// Build assembles the workflow graph for a job. Node ids are strings keyed
// into a flat map; links are [nodeID, outputIndex] pairs.
func (b *StandardWorkflowBuilder) Build(job *models.Job) (map[string]interface{}, error) {
	if job == nil {
		return nil, fmt.Errorf("job is required")
	}
	if job.Kind != models.JobKindImage {
		return nil, models.NewValidationError("unsupported job type for workflow: %s", job.Kind)
	}

	checkpoint := job.CheckpointModel
	if checkpoint == "" {
		checkpoint = b.defaultCheckpoint
	}

	workflow := map[string]interface{}{}

	workflow["1"] = node("CheckpointLoaderSimple", map[string]interface{}{
		"ckpt_name": checkpoint,
	})

	// LoRA nodes chain off the checkpoint loader; each feeds the next.
	modelLink := link("1", 0)
	clipLink := link("1", 1)
	nextID := 2
	for _, lora := range job.LoraModels {
		id := strconv.Itoa(nextID)
		workflow[id] = node("LoraLoader", map[string]interface{}{
			"lora_name":      lora.Name,
			"strength_model": lora.StrengthModel,
			"strength_clip":  lora.StrengthClip,
			"model":          modelLink,
			"clip":           clipLink,
		})
		modelLink = link(id, 0)
		clipLink = link(id, 1)
		nextID++
	}

	positiveID := strconv.Itoa(nextID)
	workflow[positiveID] = node("CLIPTextEncode", map[string]interface{}{
		"text": job.Prompt,
		"clip": clipLink,
	})
	nextID++

	negativeID := strconv.Itoa(nextID)
	workflow[negativeID] = node("CLIPTextEncode", map[string]interface{}{
		"text": job.Negative,
		"clip": clipLink,
	})
	nextID++

	latentID := strconv.Itoa(nextID)
	workflow[latentID] = node("EmptyLatentImage", map[string]interface{}{
		"width":      job.Width,
		"height":     job.Height,
		"batch_size": job.BatchSize,
	})
	nextID++

	samplerID := strconv.Itoa(nextID)
	workflow[samplerID] = node("KSampler", map[string]interface{}{
		"seed":         job.Sampler.Seed,
		"steps":        job.Sampler.Steps,
		"cfg":          job.Sampler.CFG,
		"sampler_name": job.Sampler.SamplerName,
		"scheduler":    job.Sampler.Scheduler,
		"denoise":      job.Sampler.Denoise,
		"model":        modelLink,
		"positive":     link(positiveID, 0),
		"negative":     link(negativeID, 0),
		"latent_image": link(latentID, 0),
	})
	nextID++

	decodeID := strconv.Itoa(nextID)
	workflow[decodeID] = node("VAEDecode", map[string]interface{}{
		"samples": link(samplerID, 0),
		"vae":     link("1", 2),
	})
	nextID++

	prefix := fmt.Sprintf("gen_job_%d", job.ID)
	saveID := strconv.Itoa(nextID)
	workflow[saveID] = node("SaveImage", map[string]interface{}{
		"filename_prefix": prefix,
		"images":          link(decodeID, 0),
	})

	return workflow, nil
}

func node(classType string, inputs map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"class_type": classType,
		"inputs":     inputs,
	}
}

func link(nodeID string, output int) []interface{} {
	return []interface{}{nodeID, output}
}
