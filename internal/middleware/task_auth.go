package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/tasker/internal/constants"
	apierrors "github.com/yukikurage/tasker/internal/errors"
	"github.com/yukikurage/tasker/internal/repository"
)

// RequireTask loads the live task named by the :id parameter into the
// context. Trashed tasks answer 404 like missing ones.
func RequireTask(tasks repository.TaskRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("id")
		if taskID == "" {
			apierrors.BadRequest(c, "Invalid task ID")
			c.Abort()
			return
		}

		task, err := tasks.FindByID(c.Request.Context(), taskID)
		if err != nil {
			if errors.Is(err, repository.ErrTaskNotFound) {
				apierrors.NotFound(c, "Task not found")
			} else {
				apierrors.InternalError(c, "Failed to load task")
			}
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyTask, *task)
		c.Next()
	}
}
