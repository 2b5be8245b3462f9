package api

import (
	"time"

	"github.com/contentloop/crossposter/app/community"
	"github.com/contentloop/crossposter/app/database"
	"github.com/contentloop/crossposter/app/tasks"
)

// TaskFactory builds a fully wired processing task for one community. The
// main application provides it so handlers stay free of pipeline plumbing.
type TaskFactory func(name string, config *community.Config) tasks.TaskInterface

type Handler struct {
	recordRepo  database.RecordRepository
	accountRepo database.AccountRepository
	configCache *community.ConfigCache
	scheduler   tasks.TaskSchedulerInterface
	newTask     TaskFactory
	startedAt   time.Time
}
