package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sheenhq/sitesmith/internal/repository"
	"github.com/sheenhq/sitesmith/internal/storage"
)

// ProjectHandler handles generated-project endpoints.
type ProjectHandler struct {
	projects *repository.ProjectRepository
	store    storage.ObjectStorage
}

// NewProjectHandler creates a new project handler.
// Parameters:
//   - projects: generated-project repository.
//   - store: object storage, used to build download URLs.
// Returns:
//   - *ProjectHandler: initialized handler.
func NewProjectHandler(projects *repository.ProjectRepository, store storage.ObjectStorage) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		store:    store,
	}
}

// Get handles GET /api/v1/projects/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projects.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Project not found",
		})
		return
	}

	type fileView struct {
		Path              string   `json:"path"`
		Size              int64    `json:"size"`
		URL               string   `json:"url"`
		PendingComponents []string `json:"pending_components,omitempty"`
	}
	files := make([]fileView, 0, len(project.Manifest))
	for _, file := range project.Manifest {
		files = append(files, fileView{
			Path:              file.Path,
			Size:              file.Size,
			URL:               h.store.GetURL(file.StorageKey),
			PendingComponents: file.PendingComponents,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"project": project,
		"files":   files,
	})
}
