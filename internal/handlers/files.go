package handlers

import (
	"path/filepath"
	"strings"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/internal/services"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type FilesHandler struct {
	Files    *services.FileService
	Dirs     *services.DirectoryService
	Access   *services.AccessService
	Bin      *services.BinService
	Archives *services.ArchiveService
	// RemoveArchives deletes temporary zip files once they are sent.
	RemoveArchives bool
}

func NewFilesHandler(files *services.FileService, dirs *services.DirectoryService, access *services.AccessService, bin *services.BinService, archives *services.ArchiveService, removeArchives bool) *FilesHandler {
	return &FilesHandler{
		Files:          files,
		Dirs:           dirs,
		Access:         access,
		Bin:            bin,
		Archives:       archives,
		RemoveArchives: removeArchives,
	}
}

type updateNodeRequest struct {
	Name     *string    `json:"name"`
	ParentID optionalID `json:"parentId"`
}

type createFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

type selectionRequest struct {
	FileIDs   []string `json:"fileIds" validate:"omitempty,dive,objectid"`
	FolderIDs []string `json:"folderIds" validate:"omitempty,dive,objectid"`
}

// liveParent resolves an optional parent ID to a live directory of user. An
// empty ID means the user's root.
func (h *FilesHandler) liveParent(c *fiber.Ctx, parentID *string, user *models.User) (*models.Directory, error) {
	if parentID == nil || strings.TrimSpace(*parentID) == "" {
		return h.Dirs.RootOf(c.UserContext(), user.ID)
	}
	return h.Access.LiveDirectory(c.UserContext(), strings.TrimSpace(*parentID), user)
}

// moveTarget returns the directory a PATCH body asks to move into, or nil
// when parentId was left out.
func (h *FilesHandler) moveTarget(c *fiber.Ctx, req *updateNodeRequest, user *models.User) (*models.Directory, error) {
	if !req.ParentID.Set {
		return nil, nil
	}
	return h.liveParent(c, req.ParentID.Value, user)
}

func (h *FilesHandler) List(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	parentID := c.Query("parentId")
	dir, err := h.liveParent(c, &parentID, user)
	if err != nil {
		return Fail(c, err)
	}

	content, err := h.Dirs.Content(c.UserContext(), dir)
	if err != nil {
		return Fail(c, err)
	}
	return utils.Success(c, fiber.StatusOK, toContentDTO(dir.ID, dir.Name, content.Directories, content.Files))
}

func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return Fail(c, badRequest("FILE_REQUIRED", "A file is required", nil))
	}

	parentID := c.FormValue("parentId")
	dir, err := h.liveParent(c, &parentID, user)
	if err != nil {
		return Fail(c, err)
	}

	stream, err := fileHeader.Open()
	if err != nil {
		logger.ErrorWithUser(user.ID, "upload_open_failed", err, map[string]interface{}{
			"filename": fileHeader.Filename,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "UPLOAD_FAILED", "Failed reading the uploaded file")
	}
	defer stream.Close()

	file, err := h.Files.Upload(c.UserContext(), dir, services.UploadInput{
		Reader:       stream,
		OriginalName: filepath.Base(fileHeader.Filename),
		Name:         c.FormValue("name"),
		Size:         fileHeader.Size,
	})
	if err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(user.ID, "file_uploaded", map[string]interface{}{
		"file_id":      file.ID,
		"file_name":    file.FullName(),
		"file_size":    file.Size,
		"mime_type":    file.MimeType,
		"directory_id": dir.ID,
	})
	return utils.SuccessMessage(c, fiber.StatusCreated, "File uploaded", toFileDTO(file))
}

func (h *FilesHandler) UpdateFile(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	var req updateNodeRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}

	file, err := h.Access.LiveFile(c.UserContext(), c.Params("id"), user)
	if err != nil {
		return Fail(c, err)
	}
	target, err := h.moveTarget(c, &req, user)
	if err != nil {
		return Fail(c, err)
	}

	updated, err := h.Files.Update(c.UserContext(), file, target, req.Name)
	if err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(user.ID, "file_updated", map[string]interface{}{
		"file_id":      updated.ID,
		"name":         updated.Name,
		"directory_id": updated.DirectoryID,
	})
	return utils.Success(c, fiber.StatusOK, toFileDTO(updated))
}

// DeleteFile moves the file to the bin, or removes it for good when
// permanent=true is passed.
func (h *FilesHandler) DeleteFile(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}
	ctx := c.UserContext()
	id := c.Params("id")

	if c.QueryBool("permanent") {
		file, err := h.Files.Get(ctx, id)
		if err != nil {
			return Fail(c, err)
		}
		if err := h.Access.AssertFileAccess(ctx, file, user); err != nil {
			return Fail(c, err)
		}
		if err := h.Files.Delete(ctx, file); err != nil {
			return Fail(c, err)
		}
		logger.InfoWithUser(user.ID, "file_purged", map[string]interface{}{"file_id": id})
		return utils.SuccessMessage(c, fiber.StatusOK, "File deleted", nil)
	}

	file, err := h.Access.LiveFile(ctx, id, user)
	if err != nil {
		return Fail(c, err)
	}
	if err := h.Bin.MoveFile(ctx, file); err != nil {
		return Fail(c, err)
	}
	logger.InfoWithUser(user.ID, "file_binned", map[string]interface{}{"file_id": id})
	return utils.SuccessMessage(c, fiber.StatusOK, "File moved to bin", nil)
}

func (h *FilesHandler) CreateFolder(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	var req createFolderRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}

	parent, err := h.liveParent(c, req.ParentID, user)
	if err != nil {
		return Fail(c, err)
	}
	dir, err := h.Dirs.Create(c.UserContext(), parent, req.Name)
	if err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(user.ID, "folder_created", map[string]interface{}{
		"folder_id": dir.ID,
		"name":      dir.Name,
		"parent_id": parent.ID,
	})
	return utils.SuccessMessage(c, fiber.StatusCreated, "Folder created", toDirectoryDTO(dir))
}

func (h *FilesHandler) UpdateFolder(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	var req updateNodeRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}

	dir, err := h.Access.LiveDirectory(c.UserContext(), c.Params("id"), user)
	if err != nil {
		return Fail(c, err)
	}
	target, err := h.moveTarget(c, &req, user)
	if err != nil {
		return Fail(c, err)
	}

	updated, err := h.Dirs.Update(c.UserContext(), dir, target, req.Name)
	if err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(user.ID, "folder_updated", map[string]interface{}{
		"folder_id": updated.ID,
		"name":      updated.Name,
	})
	return utils.Success(c, fiber.StatusOK, toDirectoryDTO(updated))
}

func (h *FilesHandler) DeleteFolder(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}
	ctx := c.UserContext()
	id := c.Params("id")

	if c.QueryBool("permanent") {
		dir, err := h.Dirs.Get(ctx, id)
		if err != nil {
			return Fail(c, err)
		}
		if err := h.Access.AssertDirectoryAccess(ctx, dir, user); err != nil {
			return Fail(c, err)
		}
		if err := h.Dirs.Delete(ctx, dir); err != nil {
			return Fail(c, err)
		}
		logger.InfoWithUser(user.ID, "folder_purged", map[string]interface{}{"folder_id": id})
		return utils.SuccessMessage(c, fiber.StatusOK, "Folder deleted", nil)
	}

	dir, err := h.Access.LiveDirectory(ctx, id, user)
	if err != nil {
		return Fail(c, err)
	}
	if err := h.Bin.MoveDirectory(ctx, dir); err != nil {
		return Fail(c, err)
	}
	logger.InfoWithUser(user.ID, "folder_binned", map[string]interface{}{"folder_id": id})
	return utils.SuccessMessage(c, fiber.StatusOK, "Folder moved to bin", nil)
}

// Download streams a single file unchanged, or a zip of the whole selection.
func (h *FilesHandler) Download(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	var req selectionRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}
	ctx := c.UserContext()

	files := make([]*models.File, 0, len(req.FileIDs))
	for _, id := range req.FileIDs {
		file, err := h.Access.LiveFile(ctx, id, user)
		if err != nil {
			return Fail(c, err)
		}
		files = append(files, file)
	}
	dirs := make([]*models.Directory, 0, len(req.FolderIDs))
	for _, id := range req.FolderIDs {
		dir, err := h.Access.LiveDirectory(ctx, id, user)
		if err != nil {
			return Fail(c, err)
		}
		dirs = append(dirs, dir)
	}

	download, err := h.Archives.BuildDownload(ctx, dirs, files)
	if err != nil {
		return Fail(c, err)
	}
	body, size, err := download.Body(h.RemoveArchives)
	if err != nil {
		download.Discard()
		logger.ErrorWithUser(user.ID, "download_open_failed", err, map[string]interface{}{
			"path": download.Path,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "DOWNLOAD_FAILED", "Failed preparing the download")
	}

	filename := download.Filename
	if filename == "" {
		filename = filepath.Base(download.Path)
	}

	logger.InfoWithUser(user.ID, "download_started", map[string]interface{}{
		"filename": filename,
		"size":     size,
		"files":    len(files),
		"folders":  len(dirs),
	})

	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, download.ContentType)
	return c.SendStream(body, int(size))
}
