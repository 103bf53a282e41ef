package api

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"legischat/types"
)

// FileHandler stores uploaded documents in the corpus directory of their
// type, where the loader picks them up.
type FileHandler struct {
	dirs   map[types.DocType]string
	logger *slog.Logger
}

// NewFileHandler maps every document type to its directory under dataPath.
func NewFileHandler(dataPath string, corpus map[string]types.DocType) *FileHandler {
	dirs := make(map[types.DocType]string, len(corpus))
	for dir, dt := range corpus {
		dirs[dt] = filepath.Join(dataPath, dir)
	}
	return &FileHandler{dirs: dirs, logger: slog.Default()}
}

func (h *FileHandler) HandleUpload(c *fiber.Ctx) error {
	params := types.UploadParams{DocType: c.Params("doc_type")}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}
	dir, ok := h.dirs[types.DocType(params.DocType)]
	if !ok {
		return ErrNotFound(params.DocType, "corpus directory for doc_type")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}
	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) || !types.SupportedFile(name) {
		return NewError(fiber.StatusUnsupportedMediaType, fmt.Sprintf("unsupported file %q", file.Filename))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return NewError(fiber.StatusConflict, fmt.Sprintf("%s already exists", name))
	}
	if err := c.SaveFile(file, path); err != nil {
		return err
	}
	h.logger.Info("[UPLOAD] file saved", "path", path, "doc_type", params.DocType)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"path": path, "doc_type": params.DocType})
}
