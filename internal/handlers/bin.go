package handlers

import (
	"github.com/darusc/Fileknight/internal/services"
	"github.com/darusc/Fileknight/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const binListingID = "bin"

type BinHandler struct {
	Bin *services.BinService
}

func NewBinHandler(bin *services.BinService) *BinHandler {
	return &BinHandler{Bin: bin}
}

// List returns the items that were moved to the bin directly, newest first.
func (h *BinHandler) List(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	content, err := h.Bin.List(c.UserContext(), user)
	if err != nil {
		return Fail(c, err)
	}
	return utils.Success(c, fiber.StatusOK, toContentDTO(binListingID, binListingID, content.Directories, content.Files))
}

func (h *BinHandler) Restore(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	var req selectionRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}
	if err := h.Bin.Restore(c.UserContext(), user, req.FileIDs, req.FolderIDs); err != nil {
		return Fail(c, err)
	}
	return utils.SuccessMessage(c, fiber.StatusOK, "Items restored", nil)
}

func (h *BinHandler) Delete(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	var req selectionRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}
	if err := h.Bin.Purge(c.UserContext(), user, req.FileIDs, req.FolderIDs); err != nil {
		return Fail(c, err)
	}
	return utils.SuccessMessage(c, fiber.StatusOK, "Items deleted", nil)
}

func (h *BinHandler) Empty(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	if err := h.Bin.EmptyAll(c.UserContext(), user); err != nil {
		return Fail(c, err)
	}
	return utils.SuccessMessage(c, fiber.StatusOK, "Bin emptied", nil)
}
