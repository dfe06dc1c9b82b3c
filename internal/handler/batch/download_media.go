package batch

import (
	"fmt"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// DownloadMedia 下载条目的归档成片
// @Summary      下载归档成片
// @Description  从归档存储读取条目的成片文件并以流式返回。
// @Tags         批次管理
// @Produce      video/mp4
// @Param        id       path      string  true  "批次ID"
// @Param        item_id  path      string  true  "条目ID"
// @Success      200  {file}    binary  "成片文件"
// @Failure      404  {object}  ErrorResponse  "成片不存在或归档未启用"
// @Router       /api/v1/batches/{id}/items/{item_id}/media [get]
func (h *Handler) DownloadMedia(c *gin.Context) {
	itemID := c.Param("item_id")
	ctx := c.Request.Context()

	if h.archive == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    40402,
			Message: "Archive storage not enabled",
		})
		return
	}

	key := path.Join("shorts", itemID+".mp4")
	info, err := h.archive.GetFileInfo(ctx, key)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    40403,
			Message: "Media not found",
			Detail:  fmt.Sprintf("item %s has no archived media", itemID),
		})
		return
	}

	reader, err := h.archive.Download(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: err.Error(),
		})
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.mp4"`, itemID))
	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, reader, nil)
}
