package workflow

import (
	"loom/internal/queue"
	"loom/internal/stage"
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Extractor stage.Handler
	Drafter   stage.Handler
	Enricher  stage.Handler
	Imagery   stage.Handler
	Syncer    stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
	index            int
	total            int
}

// overallProgress maps a stage-local percentage onto the whole pipeline.
func (p pipelineStage) overallProgress(local float64) float64 {
	if p.total <= 0 {
		return local
	}
	if local < 0 {
		local = 0
	}
	if local > 100 {
		local = 100
	}
	overall := (float64(p.index) + local/100) / float64(p.total) * 100
	if overall > 100 {
		overall = 100
	}
	return overall
}
