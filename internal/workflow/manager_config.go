package workflow

import "loom/internal/queue"

// ConfigureStages registers the concrete stage handlers the workflow will
// run. Stages keep their fixed relative order; each registered stage starts
// from the done status of the stage before it, so a partially configured
// pipeline still forms an unbroken chain. The imagery stage participates
// only when enabled in configuration.
func (m *Manager) ConfigureStages(set StageSet) {
	stages := make([]pipelineStage, 0, 5)
	start := queue.StatusPending

	if set.Extractor != nil {
		stages = append(stages, pipelineStage{
			name:             "extract",
			handler:          set.Extractor,
			startStatus:      start,
			processingStatus: queue.StatusExtracting,
			doneStatus:       queue.StatusExtracted,
		})
		start = queue.StatusExtracted
	}
	if set.Drafter != nil {
		stages = append(stages, pipelineStage{
			name:             "draft",
			handler:          set.Drafter,
			startStatus:      start,
			processingStatus: queue.StatusDrafting,
			doneStatus:       queue.StatusDrafted,
		})
		start = queue.StatusDrafted
	}
	if set.Enricher != nil {
		stages = append(stages, pipelineStage{
			name:             "enrich",
			handler:          set.Enricher,
			startStatus:      start,
			processingStatus: queue.StatusEnriching,
			doneStatus:       queue.StatusEnriched,
		})
		start = queue.StatusEnriched
	}
	if set.Imagery != nil && m.cfg.Stages.ImagesEnabled {
		stages = append(stages, pipelineStage{
			name:             "images",
			handler:          set.Imagery,
			startStatus:      start,
			processingStatus: queue.StatusImaging,
			doneStatus:       queue.StatusImaged,
		})
		start = queue.StatusImaged
	}
	if set.Syncer != nil {
		stages = append(stages, pipelineStage{
			name:             "sync",
			handler:          set.Syncer,
			startStatus:      start,
			processingStatus: queue.StatusSyncing,
			doneStatus:       queue.StatusCompleted,
		})
	}

	byStart := make(map[queue.Status]pipelineStage, len(stages))
	transitions := make(map[queue.Status]queue.Status, len(stages))
	for i := range stages {
		stages[i].index = i
		stages[i].total = len(stages)
		byStart[stages[i].startStatus] = stages[i]
		transitions[stages[i].processingStatus] = stages[i].startStatus
	}

	m.mu.Lock()
	m.stages = stages
	m.stageByStart = byStart
	m.reclaimTransitions = transitions
	m.mu.Unlock()
}
