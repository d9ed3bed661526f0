package journey

import "onboarding/internal/model"

// ComputeProgress summarises tasks. Percentage is rounded half up and is 0
// for an empty journey, which is never complete.
func ComputeProgress(tasks []model.TaskWithStatus) model.Progress {
	total := len(tasks)
	completed := 0
	for _, t := range tasks {
		if t.Completed {
			completed++
		}
	}

	percentage := 0
	if total > 0 {
		// integer form of Math.round(100*completed/total) for non-negative operands
		percentage = (200*completed + total) / (2 * total)
	}

	return model.Progress{
		Completed:   completed,
		Total:       total,
		Percentage:  percentage,
		IsCompleted: total > 0 && completed == total,
	}
}
