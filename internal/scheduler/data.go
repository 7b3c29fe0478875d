package scheduler

import (
	"github.com/webharvest/webharvest/internal/storage"
)

type CrawlingExecution struct {
	WriteResults []storage.WriteResult
}

type PipelineOutcome struct {
	Continue bool
	Retry    bool
	Abort    bool
}
