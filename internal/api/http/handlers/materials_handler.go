package handlers

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dumaterial/materials-api/internal/api/dto"
	"github.com/dumaterial/materials-api/internal/auth"
	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/media"
	"github.com/dumaterial/materials-api/internal/repository"
	"github.com/dumaterial/materials-api/internal/service"
	apperrors "github.com/dumaterial/materials-api/pkg/util"
)

// MaterialsHandler exposes study material endpoints.
type MaterialsHandler struct {
	materials    *service.MaterialService
	maxFileBytes int64
}

// NewMaterialsHandler constructs handler. Files larger than maxFileBytes are
// rejected; zero disables the check.
func NewMaterialsHandler(materials *service.MaterialService, maxFileBytes int64) *MaterialsHandler {
	return &MaterialsHandler{materials: materials, maxFileBytes: maxFileBytes}
}

// Upload handles POST /du_material/upload.
func (h *MaterialsHandler) Upload(c *fiber.Ctx) error {
	adminID, ok := auth.AdminID(c)
	if !ok {
		return apperrors.NewUnauthorized("no token provided")
	}

	// A body that is not multipart simply carries no files.
	form, _ := c.MultipartForm()
	uploads, closeAll, err := uploadsFromForm(form, h.maxFileBytes)
	if err != nil {
		return err
	}
	defer closeAll()

	material, err := h.materials.Create(c.UserContext(), adminID, dto.MaterialFieldsFromForm(form), uploads)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Material uploaded",
		"data":    material,
	})
}

// Update handles PUT /du_material/update/:id.
func (h *MaterialsHandler) Update(c *fiber.Ctx) error {
	adminID, ok := auth.AdminID(c)
	if !ok {
		return apperrors.NewUnauthorized("no token provided")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return apperrors.NewValidationError("multipart form expected", nil)
	}
	uploads, closeAll, err := uploadsFromForm(form, h.maxFileBytes)
	if err != nil {
		return err
	}
	defer closeAll()

	material, err := h.materials.Update(c.UserContext(), adminID, c.Params("id"), dto.MaterialPatchFromForm(form), uploads)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Material updated",
		"data":    material,
	})
}

// Delete handles DELETE /du_material/delete/:id.
func (h *MaterialsHandler) Delete(c *fiber.Ctx) error {
	adminID, ok := auth.AdminID(c)
	if !ok {
		return apperrors.NewUnauthorized("no token provided")
	}
	if err := h.materials.Delete(c.UserContext(), adminID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Material deleted"})
}

// List handles GET /du_material/get.
func (h *MaterialsHandler) List(c *fiber.Ctx) error {
	filter := repository.MaterialFilter{
		Sem:     c.Query("sem"),
		Subject: c.Query("subject"),
		Limit:   c.QueryInt("limit", 0),
		Offset:  c.QueryInt("offset", 0),
	}
	materials, err := h.materials.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": materials})
}

// Get handles GET /du_material/get/:id.
func (h *MaterialsHandler) Get(c *fiber.Ctx) error {
	material, err := h.materials.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": material})
}

// Download handles GET /du_material/download/:id?field=<upload field>.
func (h *MaterialsHandler) Download(c *fiber.Ctx) error {
	url, err := h.materials.DownloadURL(c.UserContext(), c.Params("id"), c.Query("field"))
	if err != nil {
		return err
	}
	return c.Redirect(url, http.StatusFound)
}

// uploadsFromForm opens the first file of every known upload field. Unknown
// file fields and oversized files are rejected.
func uploadsFromForm(form *multipart.Form, maxFileBytes int64) ([]media.Upload, func(), error) {
	var opened []io.Closer
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	if form == nil {
		return nil, closeAll, nil
	}

	for name, files := range form.File {
		if _, ok := domain.ParseAssetField(name); !ok && len(files) > 0 {
			return nil, closeAll, apperrors.NewValidationError("unexpected file field", map[string]any{"field": name})
		}
	}

	var uploads []media.Upload
	for _, field := range domain.AssetFields {
		files := form.File[string(field)]
		if len(files) == 0 {
			continue
		}
		header := files[0]
		if maxFileBytes > 0 && header.Size > maxFileBytes {
			closeAll()
			return nil, func() {}, apperrors.NewDomainError("PAYLOAD_TOO_LARGE", "file too large",
				http.StatusRequestEntityTooLarge, map[string]any{"field": string(field)})
		}
		f, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, apperrors.NewValidationError("unreadable file", map[string]any{"field": string(field)})
		}
		opened = append(opened, f)
		uploads = append(uploads, media.Upload{
			Field:       field,
			Filename:    header.Filename,
			ContentType: header.Header.Get(fiber.HeaderContentType),
			Size:        header.Size,
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}
