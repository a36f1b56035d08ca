package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListTags(c *gin.Context) {
	const op = "server.handleListTags"

	tags, err := s.repo.ListTags(c.Request.Context())
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (s *Server) handleAddTag(c *gin.Context) {
	const op = "server.handleAddTag"

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		errorJSON(c, http.StatusBadRequest, "tag name is empty")
		return
	}
	tag, err := s.repo.AddTag(c.Request.Context(), name)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "message": "Tag added.", "tag": tag})
}

// handleAddTags takes the names either as a JSON array in "names" or as
// repeated "names[]" fields.
func (s *Server) handleAddTags(c *gin.Context) {
	const op = "server.handleAddTags"

	names := c.PostFormArray("names[]")
	if raw := c.PostForm("names"); raw != "" {
		var decoded []string
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			errorJSON(c, http.StatusBadRequest, "names must be a JSON array of strings")
			return
		}
		names = append(names, decoded...)
	}
	if len(names) == 0 {
		errorJSON(c, http.StatusBadRequest, "tag name list is empty")
		return
	}

	added, err := s.repo.AddTags(c.Request.Context(), names)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "added_count": added})
}

func (s *Server) handleRenameTag(c *gin.Context) {
	const op = "server.handleRenameTag"

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		errorJSON(c, http.StatusBadRequest, "tag name is empty")
		return
	}
	if err := s.repo.RenameTag(c.Request.Context(), c.Param("id"), name); err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Tag renamed."})
}

func (s *Server) handleDeleteTag(c *gin.Context) {
	const op = "server.handleDeleteTag"

	if err := s.repo.DeleteTag(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Tag deleted."})
}
